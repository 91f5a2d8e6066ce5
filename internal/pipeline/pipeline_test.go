package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopwatch/internal/alert"
	"shopwatch/internal/cooldown"
	"shopwatch/internal/detection"
	"shopwatch/internal/ledger"
	"shopwatch/internal/metrics"
	"shopwatch/internal/snapshot"
)

// scriptedDetector reports one person box per call with the next confidence
type scriptedDetector struct {
	mu    sync.Mutex
	confs []float64
	err   error
	calls atomic.Int32
}

func (s *scriptedDetector) Name() string { return "scripted" }

func (s *scriptedDetector) Infer(ctx context.Context, jpeg []byte) ([]detection.Box, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conf := 0.9
	if len(s.confs) > 0 {
		conf, s.confs = s.confs[0], s.confs[1:]
	}
	return []detection.Box{{Label: "person", Confidence: conf, X1: 10, Y1: 10, X2: 50, Y2: 90}}, nil
}

type staticMode struct{ on atomic.Bool }

func (m *staticMode) Get() bool { return m.on.Load() }

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []alert.Job
}

func (d *recordingDispatcher) Dispatch(job alert.Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return true
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type fixture struct {
	pipeline   *Pipeline
	detector   *scriptedDetector
	mode       *staticMode
	ledger     *ledger.Ledger
	dispatcher *recordingDispatcher
	bus        *EventBus
	dir        string
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := snapshot.New(dir)
	require.NoError(t, err)

	m := metrics.New()
	f := &fixture{
		detector:   &scriptedDetector{},
		mode:       &staticMode{},
		ledger:     ledger.New(0, nil, m, zap.NewNop()),
		dispatcher: &recordingDispatcher{},
		bus:        NewEventBus(),
		dir:        dir,
		clock:      time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
	}
	f.pipeline = New(Deps{
		Detector:   detection.NewAdapter(f.detector, 0.2, time.Second, zap.NewNop()),
		Mode:       f.mode,
		Gate:       cooldown.New(120 * time.Second),
		Ledger:     f.ledger,
		Bus:        f.bus,
		Dispatcher: f.dispatcher,
		Snapshots:  store,
		Metrics:    m,
		Logger:     zap.NewNop(),
	}, Config{PlaceholderFPS: 200})
	f.pipeline.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) at(offset time.Duration) {
	f.clock = time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC).Add(offset)
}

func upload() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 320, 240))
}

func TestCooldownScenario(t *testing.T) {
	f := newFixture(t)
	f.mode.on.Store(true)
	f.detector.confs = []float64{0.5, 0.9, 0.3}
	ctx := context.Background()

	f.at(0)
	out, err := f.pipeline.ProcessImage(ctx, upload(), "a.jpg")
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.Equal(t, 1, f.ledger.Total())

	f.at(10 * time.Second)
	out, err = f.pipeline.ProcessImage(ctx, upload(), "b.jpg")
	require.NoError(t, err)
	assert.True(t, out.Detection.Present)
	assert.Nil(t, out.Alert)
	assert.Equal(t, 1, f.ledger.Total())

	f.at(130 * time.Second)
	out, err = f.pipeline.ProcessImage(ctx, upload(), "c.jpg")
	require.NoError(t, err)
	require.NotNil(t, out.Alert)
	assert.Equal(t, 2, f.ledger.Total())
	assert.Equal(t, 2, f.dispatcher.count())

	assert.Equal(t, "/uploads/annotated_c.jpg", out.AnnotatedRef)
	assert.Equal(t, "/uploads/annotated_c.jpg", out.Alert.Image)
	assert.Equal(t, ledger.OriginUpload, out.Alert.Origin)
	assert.Equal(t, 0.3, out.Alert.Confidence)
	_, err = os.Stat(filepath.Join(f.dir, "annotated_c.jpg"))
	assert.NoError(t, err)
}

func TestOpenShopNeverAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, conf := range []float64{0.3, 0.99, 0.7, 1.0} {
		f.detector.confs = []float64{conf}
		f.at(time.Duration(i) * time.Hour)
		out, err := f.pipeline.ProcessImage(ctx, upload(), "x.jpg")
		require.NoError(t, err)
		assert.True(t, out.Detection.Present)
		assert.False(t, out.Secured)
		assert.Nil(t, out.Alert)
	}
	assert.Equal(t, 0, f.ledger.Total())
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestBelowThresholdNeverAlerts(t *testing.T) {
	f := newFixture(t)
	f.mode.on.Store(true)
	f.detector.confs = []float64{0.1, 0.19}

	for i := 0; i < 2; i++ {
		f.at(time.Duration(i) * time.Hour)
		out, err := f.pipeline.ProcessImage(context.Background(), upload(), "x.jpg")
		require.NoError(t, err)
		assert.False(t, out.Detection.Present)
	}
	assert.Equal(t, 0, f.ledger.Total())
}

func TestUploadDetectorUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mode.on.Store(true)
	f.detector.err = errors.New("model not loaded")

	out, err := f.pipeline.ProcessImage(context.Background(), upload(), "x.jpg")
	assert.ErrorIs(t, err, detection.ErrUnavailable)
	require.NotNil(t, out)
	assert.False(t, out.Detection.Present)
	assert.Equal(t, 0, f.ledger.Total())
}

func TestConcurrentUploadsAcceptOnce(t *testing.T) {
	f := newFixture(t)
	f.mode.on.Store(true)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.ProcessImage(context.Background(), upload(), "same.jpg")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.ledger.Total())
	assert.Equal(t, 1, f.dispatcher.count())
}

type fakeSource struct {
	mu     sync.Mutex
	limit  int
	served int
	err    error
	closed atomic.Bool
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.served >= s.limit {
		return nil, io.EOF
	}
	s.served++
	return image.NewRGBA(image.Rect(0, 0, 1280, 720)), nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func opener(src Source) SourceOpener {
	return func(context.Context) (Source, error) { return src, nil }
}

var errStop = errors.New("consumer gone")

func TestStreamKeepsGoingWhenDetectorFails(t *testing.T) {
	f := newFixture(t)
	f.mode.on.Store(true)
	f.detector.err = errors.New("backend down")
	src := &fakeSource{}

	var frames []*Frame
	err := f.pipeline.Stream(context.Background(), opener(src), func(fr *Frame) error {
		frames = append(frames, fr)
		if len(frames) == 50 {
			return errStop
		}
		return nil
	})

	assert.ErrorIs(t, err, errStop)
	require.Len(t, frames, 50)
	for _, fr := range frames {
		assert.False(t, fr.Available)
		assert.Equal(t, "NO DETECTION (detector unavailable)", fr.Status)
		assert.Equal(t, image.Rect(0, 0, 640, 480), fr.Image.Bounds())
		assert.Nil(t, fr.Alert)
	}
	assert.True(t, src.closed.Load())
	assert.Equal(t, 0, f.ledger.Total())
}

func TestStreamCancellationReleasesSource(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	yielded := 0
	err := f.pipeline.Stream(ctx, opener(src), func(fr *Frame) error {
		yielded++
		if yielded == 3 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, yielded)
	assert.Equal(t, int32(3), f.detector.calls.Load())
	assert.True(t, src.closed.Load())
}

func TestStreamRaisesLiveAlert(t *testing.T) {
	f := newFixture(t)
	f.mode.on.Store(true)
	f.detector.confs = []float64{0.53, 0.8}
	alerts, unsubscribe := f.bus.Subscribe(4)
	defer unsubscribe()
	src := &fakeSource{limit: 2}

	var frames []*Frame
	err := f.pipeline.Stream(context.Background(), opener(src), func(fr *Frame) error {
		frames = append(frames, fr)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)

	// second frame falls inside the cooldown window
	require.NotNil(t, frames[0].Alert)
	assert.Nil(t, frames[1].Alert)
	assert.Equal(t, "PERSON DETECTED (Conf: 0.53)", frames[0].Status)
	assert.True(t, frames[0].Secured)

	entry := *frames[0].Alert
	assert.Equal(t, ledger.OriginLive, entry.Origin)
	assert.Regexp(t, `^/uploads/alert_\d{8}_\d{6}_\d{6}\.jpg$`, entry.Image)
	_, err = os.Stat(filepath.Join(f.dir, filepath.Base(entry.Image)))
	assert.NoError(t, err)

	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, filepath.Base(entry.Image), f.dispatcher.jobs[0].Image)

	select {
	case got := <-alerts:
		assert.Equal(t, entry.ID, got.ID)
	default:
		t.Fatal("alert was not published")
	}
	assert.True(t, src.closed.Load())
}

func TestStreamStatusWhenOpen(t *testing.T) {
	f := newFixture(t)
	f.detector.confs = []float64{0.05}

	var frame *Frame
	err := f.pipeline.Stream(context.Background(), opener(&fakeSource{limit: 1}), func(fr *Frame) error {
		frame = fr
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, "NO PERSON (Conf: 0.05)", frame.Status)
	assert.False(t, frame.Secured)
}

func TestStreamFallsBackToPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.detector.err = errors.New("offline")
	open := func(context.Context) (Source, error) {
		return nil, ErrSourceUnavailable
	}

	count := 0
	err := f.pipeline.Stream(context.Background(), open, func(fr *Frame) error {
		count++
		assert.Equal(t, image.Rect(0, 0, 640, 480), fr.Image.Bounds())
		if count == 3 {
			return errStop
		}
		return nil
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 3, count)
}

func TestStreamFallsBackWhenSourceDiesBeforeFirstFrame(t *testing.T) {
	f := newFixture(t)
	f.detector.err = errors.New("offline")
	src := &fakeSource{err: fmt.Errorf("ffmpeg exited: %w", ErrSourceUnavailable)}

	count := 0
	err := f.pipeline.Stream(context.Background(), opener(src), func(fr *Frame) error {
		count++
		assert.Equal(t, image.Rect(0, 0, 640, 480), fr.Image.Bounds())
		if count == 2 {
			return errStop
		}
		return nil
	})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 2, count)
	assert.True(t, src.closed.Load())
}

func TestStreamOpenErrorPropagates(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("permission denied")
	err := f.pipeline.Stream(context.Background(), func(context.Context) (Source, error) {
		return nil, boom
	}, func(*Frame) error { return nil })
	assert.ErrorIs(t, err, boom)
}

func TestStreamEndsAfterRepeatedReadErrors(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{err: errors.New("device unplugged")}

	err := f.pipeline.Stream(context.Background(), opener(src), func(*Frame) error {
		t.Fatal("no frame expected")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "30 times")
	assert.True(t, src.closed.Load())
	assert.Equal(t, int32(0), f.detector.calls.Load())
}
