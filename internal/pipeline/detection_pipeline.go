package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"go.uber.org/zap"

	"shopwatch/internal/alert"
	"shopwatch/internal/detection"
	"shopwatch/internal/ledger"
	"shopwatch/internal/metrics"
	"shopwatch/internal/overlay"
	"shopwatch/internal/snapshot"
)

// Deps are the shared collaborators of every pipeline run
type Deps struct {
	Detector   Detector
	Mode       ModeReader
	Gate       Gate
	Ledger     Recorder
	Bus        *EventBus
	Dispatcher Dispatcher
	Snapshots  SnapshotStore
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Pipeline runs detection on uploaded images and live streams and turns
// qualifying detections into alerts. One Pipeline serves all concurrent
// callers; shared state lives in the injected collaborators.
type Pipeline struct {
	Deps
	cfg Config
	now func() time.Time
}

// New creates a pipeline. Zero fields in cfg take DefaultConfig values.
func New(deps Deps, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = def.Width, def.Height
	}
	if cfg.MaxReadErrors <= 0 {
		cfg.MaxReadErrors = def.MaxReadErrors
	}
	if cfg.PlaceholderFPS <= 0 {
		cfg.PlaceholderFPS = def.PlaceholderFPS
	}
	return &Pipeline{Deps: deps, cfg: cfg, now: time.Now}
}

// ProcessImage runs one uploaded image through detection and alerting.
// The annotated image is stored as annotated_<name>. A detector failure is
// returned wrapping detection.ErrUnavailable.
func (p *Pipeline) ProcessImage(ctx context.Context, img image.Image, name string) (*Outcome, error) {
	res, err := p.Detector.Detect(ctx, img)
	p.Metrics.FramesProcessed.Inc()
	if err != nil {
		p.Metrics.DetectionFailures.Inc()
		p.Logger.Warn("detection failed for upload", zap.String("file", name), zap.Error(err))
		return &Outcome{Detection: res}, err
	}

	annotatedName := "annotated_" + name
	if err := p.storeAnnotated(res.Annotated, annotatedName); err != nil {
		p.Metrics.SnapshotFailures.Inc()
		p.Logger.Error("failed to store annotated image", zap.String("file", annotatedName), zap.Error(err))
		annotatedName = ""
	}

	ev := AlertEvent{Detection: res, Secured: p.Mode.Get(), Now: p.now()}
	entry := p.evaluate(ctx, ev, ledger.OriginUpload, func() string { return annotatedName })

	return &Outcome{
		Detection:    res,
		Secured:      ev.Secured,
		Alert:        entry,
		AnnotatedRef: snapshot.URL(annotatedName),
	}, nil
}

func (p *Pipeline) storeAnnotated(img image.Image, name string) error {
	if img == nil {
		return errors.New("no annotated image")
	}
	data, err := overlay.EncodeJPEG(img)
	if err != nil {
		return err
	}
	return p.Snapshots.WriteFile(data, name)
}

// Stream runs the live loop until ctx is cancelled, yield fails or the
// source ends. When the source cannot be opened, or reports itself
// unavailable before its first frame, a placeholder is used. The source is
// closed on every return path.
func (p *Pipeline) Stream(ctx context.Context, open SourceOpener, yield func(*Frame) error) error {
	src, err := open(ctx)
	placeholder := false
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			return fmt.Errorf("failed to open source: %w", err)
		}
		p.Logger.Warn("camera unavailable, streaming placeholder", zap.Error(err))
		src = NewPlaceholderSource(p.cfg.Width, p.cfg.Height, p.cfg.PlaceholderFPS)
		placeholder = true
	}
	defer func() { src.Close() }()

	p.Metrics.ActiveStreams.Inc()
	defer p.Metrics.ActiveStreams.Dec()

	var seq uint64
	readErrors := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := src.Next(ctx)
		if err != nil {
			if seq == 0 && !placeholder && errors.Is(err, ErrSourceUnavailable) {
				p.Logger.Warn("camera produced no frames, streaming placeholder", zap.Error(err))
				src.Close()
				src = NewPlaceholderSource(p.cfg.Width, p.cfg.Height, p.cfg.PlaceholderFPS)
				placeholder = true
				readErrors = 0
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			readErrors++
			p.Metrics.SourceErrors.Inc()
			if readErrors >= p.cfg.MaxReadErrors {
				return fmt.Errorf("source failed %d times in a row: %w", readErrors, err)
			}
			p.Logger.Debug("skipping unreadable frame", zap.Error(err))
			continue
		}
		readErrors = 0

		// no detection once the consumer has gone
		if err := ctx.Err(); err != nil {
			return err
		}

		seq++
		if err := yield(p.processFrame(ctx, img, seq)); err != nil {
			return err
		}
	}
}

func (p *Pipeline) processFrame(ctx context.Context, img image.Image, seq uint64) *Frame {
	canvas := overlay.Resize(img, p.cfg.Width, p.cfg.Height)

	res, err := p.Detector.Detect(ctx, canvas)
	p.Metrics.FramesProcessed.Inc()
	available := err == nil
	if !available {
		p.Metrics.DetectionFailures.Inc()
		p.Logger.Warn("detection failed for live frame", zap.Uint64("seq", seq), zap.Error(err))
	} else if res.Annotated != nil {
		canvas = overlay.Clone(res.Annotated)
	}

	secured := p.Mode.Get()
	status := drawStatus(canvas, res, available, secured)

	ev := AlertEvent{Detection: res, Secured: secured, Now: p.now()}
	entry := p.evaluate(ctx, ev, ledger.OriginLive, func() string {
		name, err := p.Snapshots.Write(canvas, "alert")
		if err != nil {
			p.Metrics.SnapshotFailures.Inc()
			p.Logger.Error("failed to store alert snapshot", zap.Error(err))
			return ""
		}
		return name
	})

	return &Frame{
		Seq:       seq,
		Image:     canvas,
		Status:    status,
		Detection: res,
		Available: available,
		Secured:   secured,
		Alert:     entry,
	}
}

// evaluate applies the alert policy: a person must be present, the shop
// must be secured and the cooldown gate must accept, checked in that order.
// snap is called only for accepted alerts and returns the stored name.
func (p *Pipeline) evaluate(ctx context.Context, ev AlertEvent, origin ledger.Origin, snap func() string) *ledger.Entry {
	if ev.Detection == nil || !ev.Detection.Present {
		return nil
	}
	if !ev.Secured {
		p.Metrics.AlertsSuppressed.WithLabelValues("open").Inc()
		return nil
	}
	if !p.Gate.TryAccept(ev.Now) {
		p.Metrics.AlertsSuppressed.WithLabelValues("cooldown").Inc()
		return nil
	}

	p.Metrics.AlertsAccepted.WithLabelValues(string(origin)).Inc()

	name := snap()
	entry := ledger.NewEntry(ev.Now, ev.Detection.Confidence, snapshot.URL(name), origin)
	p.Ledger.Append(ctx, entry)
	if p.Bus != nil {
		p.Bus.Publish(entry)
	}
	p.Dispatcher.Dispatch(alert.Job{Entry: entry, Image: name})

	p.Logger.Info("alert raised",
		zap.String("id", entry.ID),
		zap.String("origin", string(origin)),
		zap.Float64("confidence", entry.Confidence),
		zap.String("image", entry.Image))
	return &entry
}

func drawStatus(canvas *image.RGBA, res *detection.Result, available, secured bool) string {
	var status string
	color := overlay.Red
	switch {
	case !available:
		status = "NO DETECTION (detector unavailable)"
		color = overlay.Orange
	case res.Present:
		status = fmt.Sprintf("PERSON DETECTED (Conf: %.2f)", res.Confidence)
		color = overlay.Green
	default:
		status = fmt.Sprintf("NO PERSON (Conf: %.2f)", res.Confidence)
	}
	overlay.DrawLabel(canvas, 10, 10, status, color)

	if secured {
		overlay.DrawLabel(canvas, 10, 30, "SECURE MODE ON", overlay.Red)
	} else {
		overlay.DrawLabel(canvas, 10, 30, "OPEN MODE", overlay.Green)
	}
	return status
}
