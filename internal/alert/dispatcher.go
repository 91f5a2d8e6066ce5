package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopwatch/internal/ledger"
	"shopwatch/internal/metrics"
	"shopwatch/internal/notify"
)

// Job is one accepted alert waiting for delivery
type Job struct {
	Entry ledger.Entry
	// Image is the stored snapshot name, empty when none was saved
	Image string
}

// ImageReader loads stored snapshots
type ImageReader interface {
	Read(name string) ([]byte, error)
}

// Config sizes the worker pool
type Config struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher fans accepted alerts out to the notification senders on a
// fixed pool of workers. Delivery is best effort with no retries.
type Dispatcher struct {
	senders []notify.Sender
	images  ImageReader
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Job
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers workers
func NewDispatcher(senders []notify.Sender, images ImageReader, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	d := &Dispatcher{
		senders: senders,
		images:  images,
		timeout: cfg.SendTimeout,
		metrics: m,
		logger:  logger,
		queue:   make(chan Job, cfg.QueueSize),
	}

	for _, s := range senders {
		if !s.Enabled() {
			logger.Warn("notification channel not configured, alerts will skip it", zap.String("channel", s.Name()))
		}
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch queues job without blocking. It reports false when the job was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.DispatchDropped.Inc()
		d.logger.Warn("dispatcher closed, dropping alert", zap.String("id", job.Entry.ID))
		return false
	}

	select {
	case d.queue <- job:
		return true
	default:
		d.metrics.DispatchDropped.Inc()
		d.logger.Warn("alert queue full, dropping notifications", zap.String("id", job.Entry.ID))
		return false
	}
}

// Close stops intake and waits for queued jobs to finish or ctx to expire
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job Job) {
	var image []byte
	if job.Image != "" && d.images != nil {
		data, err := d.images.Read(job.Image)
		if err != nil {
			d.logger.Warn("snapshot unreadable, sending without attachment",
				zap.String("image", job.Image), zap.Error(err))
		} else {
			image = data
		}
	}
	n := BuildNotification(job.Entry, image, job.Image)

	var wg sync.WaitGroup
	for _, s := range d.senders {
		if !s.Enabled() {
			d.metrics.Deliveries.WithLabelValues(s.Name(), "skipped").Inc()
			continue
		}
		wg.Add(1)
		go func(s notify.Sender) {
			defer wg.Done()
			d.send(s, job.Entry.ID, n)
		}(s)
	}
	wg.Wait()
}

func (d *Dispatcher) send(s notify.Sender, id string, n notify.Notification) {
	log := d.logger.With(zap.String("channel", s.Name()), zap.String("id", id))
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Deliveries.WithLabelValues(s.Name(), "panic").Inc()
			log.Error("notification sender panicked", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	err := s.Send(ctx, n)
	switch {
	case err == nil:
		d.metrics.Deliveries.WithLabelValues(s.Name(), "sent").Inc()
		log.Info("alert notification sent")
	case errors.Is(err, notify.ErrNotConfigured):
		d.metrics.Deliveries.WithLabelValues(s.Name(), "skipped").Inc()
		log.Warn("notification channel not configured, skipping")
	default:
		d.metrics.Deliveries.WithLabelValues(s.Name(), "error").Inc()
		log.Error("alert notification failed", zap.Error(err))
	}
}
