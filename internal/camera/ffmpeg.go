package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"shopwatch/internal/pipeline"
)

// FFmpegSource decodes frames from an ffmpeg MJPEG pipe. Only the newest
// frame is kept; a slow consumer skips frames instead of backing up ffmpeg.
type FFmpegSource struct {
	cmd    *exec.Cmd
	frames chan []byte
	done   chan struct{}
	logger *zap.Logger

	produced atomic.Bool

	mu         sync.Mutex
	err        error
	lastStderr string
	once       sync.Once
}

// StartFFmpeg launches ffmpeg for the device and starts reading its output
func StartFFmpeg(cfg Config, logger *zap.Logger) (*FFmpegSource, error) {
	cmd := exec.Command("ffmpeg", ffmpegArgs(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := newFFmpegSource(cmd, logger)

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			logger.Debug("ffmpeg", zap.String("line", line))
			s.mu.Lock()
			s.lastStderr = line
			s.mu.Unlock()
		}
	}()
	go s.read(stdout)

	logger.Info("camera capture started", zap.String("device", cfg.Device), zap.Int("fps", cfg.FPS))
	return s, nil
}

func newFFmpegSource(cmd *exec.Cmd, logger *zap.Logger) *FFmpegSource {
	return &FFmpegSource{
		cmd:    cmd,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// read pumps stdout until ffmpeg exits. An exit before the first frame
// (unreachable camera, bad URL) is reported as an unavailable source.
func (s *FFmpegSource) read(r io.Reader) {
	defer close(s.frames)

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&buffer)
				if frame == nil {
					break
				}
				s.offer(frame)
			}
		}
		if err != nil {
			switch {
			case err != io.EOF:
				s.setErr(err)
			case !s.produced.Load():
				s.mu.Lock()
				reason := s.lastStderr
				s.mu.Unlock()
				s.setErr(fmt.Errorf("ffmpeg exited before the first frame (%s): %w", reason, pipeline.ErrSourceUnavailable))
			}
			return
		}
	}
}

// offer replaces any unread frame with the new one
func (s *FFmpegSource) offer(frame []byte) {
	s.produced.Store(true)
	for {
		select {
		case s.frames <- frame:
			return
		case <-s.done:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

func (s *FFmpegSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Next blocks until a frame is decoded, ctx ends or ffmpeg exits. A clean
// exit after at least one frame reports io.EOF.
func (s *FFmpegSource) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data, ok := <-s.frames:
		if !ok {
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("ffmpeg output failed: %w", err)
			}
			return nil, io.EOF
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame: %w", err)
		}
		return img, nil
	}
}

// Close kills ffmpeg and reaps it. Safe to call more than once.
func (s *FFmpegSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.cmd == nil {
			return
		}
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.cmd.Wait()
		s.logger.Info("camera capture stopped")
	})
	return nil
}

// extractJPEGFrame extracts a complete JPEG frame from buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := bytes.Index(*buffer, []byte{0xFF, 0xD8})
	if startIdx == -1 {
		// keep a trailing 0xFF that may start the next marker
		if (*buffer)[len(*buffer)-1] == 0xFF {
			*buffer = (*buffer)[len(*buffer)-1:]
		} else {
			*buffer = (*buffer)[:0]
		}
		return nil
	}

	// Find JPEG end marker (FFD9)
	end := bytes.Index((*buffer)[startIdx+2:], []byte{0xFF, 0xD9})
	if end == -1 {
		return nil
	}
	endIdx := startIdx + 2 + end + 2

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
