package pipeline

import (
	"context"
	"errors"
	"image"
	"time"

	"shopwatch/internal/alert"
	"shopwatch/internal/detection"
	"shopwatch/internal/ledger"
)

// ErrSourceUnavailable means no image source could be opened
var ErrSourceUnavailable = errors.New("pipeline: image source unavailable")

// Source produces images until it returns io.EOF
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// SourceOpener acquires a source for one live stream
type SourceOpener func(ctx context.Context) (Source, error)

// Detector runs person detection on one image
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*detection.Result, error)
}

// ModeReader reports whether the shop is secured
type ModeReader interface {
	Get() bool
}

// Gate throttles accepted alerts
type Gate interface {
	TryAccept(now time.Time) bool
}

// Recorder is the alert history
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry)
}

// Dispatcher hands accepted alerts to the notification senders
type Dispatcher interface {
	Dispatch(job alert.Job) bool
}

// SnapshotStore persists annotated images
type SnapshotStore interface {
	Write(img image.Image, prefix string) (string, error)
	WriteFile(data []byte, name string) error
}
