package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"shopwatch/internal/pipeline"
)

// HTTPSource polls a URL that serves one still image per request
type HTTPSource struct {
	url    string
	client *http.Client
	ticker *time.Ticker

	// fetched is set after the first decoded frame
	fetched bool
}

// NewHTTPSource polls at most 10 times per second
func NewHTTPSource(url string, fps int, timeout time.Duration) *HTTPSource {
	interval := time.Second
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		ticker: time.NewTicker(interval),
	}
}

func (s *HTTPSource) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	img, err := s.fetch(ctx)
	if err != nil {
		if !s.fetched && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	s.fetched = true
	return img, nil
}

func (s *HTTPSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("frame endpoint returned status %d", resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

func (s *HTTPSource) Close() error {
	s.ticker.Stop()
	s.client.CloseIdleConnections()
	return nil
}
