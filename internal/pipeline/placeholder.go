package pipeline

import (
	"context"
	"image"
	"time"

	"shopwatch/internal/overlay"
)

// PlaceholderSource repeats the "no webcam" frame at a fixed rate
type PlaceholderSource struct {
	frame  *image.RGBA
	ticker *time.Ticker
}

func NewPlaceholderSource(width, height, fps int) *PlaceholderSource {
	if fps <= 0 {
		fps = 30
	}
	return &PlaceholderSource{
		frame:  overlay.Placeholder(width, height),
		ticker: time.NewTicker(time.Second / time.Duration(fps)),
	}
}

// Next waits for the next tick. Each call returns a fresh copy.
func (s *PlaceholderSource) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
		return overlay.Clone(s.frame), nil
	}
}

func (s *PlaceholderSource) Close() error {
	s.ticker.Stop()
	return nil
}
