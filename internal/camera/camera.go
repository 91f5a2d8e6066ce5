package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopwatch/internal/pipeline"
)

// Config describes the capture device
type Config struct {
	// Device is a V4L2 path, an rtsp:// or http(s):// stream, or an
	// http(s) URL serving single JPEG snapshots
	Device string
	Width  int
	Height int
	FPS    int
}

// Open returns an opener for the configured device. Every failure to get a
// working source wraps pipeline.ErrSourceUnavailable so the live path can
// fall back to the placeholder.
func Open(cfg Config, logger *zap.Logger) pipeline.SourceOpener {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return func(ctx context.Context) (pipeline.Source, error) {
		if cfg.Device == "" || cfg.Device == "none" {
			return nil, fmt.Errorf("no camera configured: %w", pipeline.ErrSourceUnavailable)
		}

		if isHTTPImageEndpoint(cfg.Device) {
			logger.Info("polling snapshot endpoint", zap.String("url", cfg.Device))
			return NewHTTPSource(cfg.Device, cfg.FPS, 10*time.Second), nil
		}

		if !deviceAccessible(cfg.Device) {
			return nil, fmt.Errorf("camera device %s is not accessible: %w", cfg.Device, pipeline.ErrSourceUnavailable)
		}
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", pipeline.ErrSourceUnavailable)
		}

		src, err := StartFFmpeg(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, err)
		}
		return src, nil
	}
}

// isNetworkSource checks if device is an HTTP/RTSP URL
func isNetworkSource(device string) bool {
	return strings.HasPrefix(device, "http://") ||
		strings.HasPrefix(device, "https://") ||
		strings.HasPrefix(device, "rtsp://")
}

func isHTTPImageEndpoint(device string) bool {
	return (strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://")) &&
		(strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") || strings.Contains(device, "image"))
}

// deviceAccessible checks that a local device exists and can be opened.
// Network sources are verified when ffmpeg connects.
func deviceAccessible(device string) bool {
	if isNetworkSource(device) {
		return true
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

// ffmpegArgs builds an MJPEG-to-stdout command line for the device type
func ffmpegArgs(cfg Config) []string {
	rate := fmt.Sprintf("%d", cfg.FPS)
	switch {
	case strings.HasPrefix(cfg.Device, "rtsp://"):
		return []string{
			"-rtsp_transport", "tcp",
			"-i", cfg.Device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", rate,
			"-q:v", "5",
			"-",
		}
	case isNetworkSource(cfg.Device):
		return []string{
			"-i", cfg.Device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", rate,
			"-q:v", "5",
			"-",
		}
	default:
		args := []string{"-f", "v4l2"}
		if cfg.Width > 0 && cfg.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
		}
		return append(args,
			"-framerate", rate,
			"-i", cfg.Device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		)
	}
}
