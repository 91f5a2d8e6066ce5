package pipeline

import (
	"image"
	"time"

	"shopwatch/internal/detection"
	"shopwatch/internal/ledger"
)

// AlertEvent is the per-image decision input
type AlertEvent struct {
	Detection *detection.Result
	Secured   bool
	Now       time.Time
}

// Frame is one processed live image ready for the consumer
type Frame struct {
	Seq   uint64
	Image *image.RGBA
	// Status is the detection line burned into Image
	Status    string
	Detection *detection.Result
	// Available is false when the detector failed for this frame
	Available bool
	Secured   bool
	// Alert is set when this frame raised an alert
	Alert *ledger.Entry
}

// Outcome is the result of a single-shot image
type Outcome struct {
	Detection *detection.Result
	Secured   bool
	Alert     *ledger.Entry
	// AnnotatedRef is the public path of the stored annotated image
	AnnotatedRef string
}

// Config holds live stream parameters
type Config struct {
	Width          int
	Height         int
	MaxReadErrors  int
	PlaceholderFPS int
}

// DefaultConfig returns the working resolution and pacing used by the live path
func DefaultConfig() Config {
	return Config{
		Width:          640,
		Height:         480,
		MaxReadErrors:  30,
		PlaceholderFPS: 30,
	}
}
