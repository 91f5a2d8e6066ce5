package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopwatch/internal/overlay"
)

// ErrUnavailable means the detector could not produce a result
var ErrUnavailable = errors.New("detection: detector unavailable")

// PersonLabel is the only class that counts as an intruder
const PersonLabel = "person"

// Box is one object reported by the detector, in pixel coordinates
type Box struct {
	Label      string
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

// Rect returns the box as an integer rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}

// Result is the normalized outcome of one detection call
type Result struct {
	Present    bool
	Confidence float64
	// Boxes holds person boxes only
	Boxes []Box
	// Annotated is nil when detection failed
	Annotated image.Image
}

// Detector is an external object detection backend
type Detector interface {
	Name() string
	Infer(ctx context.Context, jpeg []byte) ([]Box, error)
}

// Adapter turns raw detector output into a person/no-person decision
type Adapter struct {
	detector  Detector
	threshold float64
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAdapter wraps detector. A nil detector makes every call unavailable.
func NewAdapter(detector Detector, threshold float64, timeout time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		detector:  detector,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
	}
}

// Detect runs the detector on img. On failure it returns an empty result
// together with an error wrapping ErrUnavailable.
func (a *Adapter) Detect(ctx context.Context, img image.Image) (*Result, error) {
	if a.detector == nil {
		return &Result{}, fmt.Errorf("%w: no detector configured", ErrUnavailable)
	}

	data, err := overlay.EncodeJPEG(img)
	if err != nil {
		return &Result{}, fmt.Errorf("%w: encode frame: %v", ErrUnavailable, err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	boxes, err := a.detector.Infer(ctx, data)
	if err != nil {
		return &Result{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, a.detector.Name(), err)
	}

	result := &Result{Boxes: []Box{}}
	for _, b := range boxes {
		if !strings.EqualFold(b.Label, PersonLabel) {
			continue
		}
		result.Boxes = append(result.Boxes, b)
		if b.Confidence > result.Confidence {
			result.Confidence = b.Confidence
		}
	}
	result.Present = len(result.Boxes) > 0 && result.Confidence > 0 && result.Confidence >= a.threshold
	result.Annotated = annotate(img, boxes)

	return result, nil
}

func annotate(img image.Image, boxes []Box) image.Image {
	rgba := overlay.Clone(img)
	for _, b := range boxes {
		c := overlay.Blue
		if strings.EqualFold(b.Label, PersonLabel) {
			c = overlay.Green
		}
		r := b.Rect().Add(rgba.Bounds().Min)
		overlay.DrawBox(rgba, r, c, 2)
		overlay.DrawLabel(rgba, r.Min.X, r.Min.Y-16, fmt.Sprintf("%s %.2f", b.Label, b.Confidence), c)
	}
	return rgba
}
