package stream

import (
	"errors"
	"fmt"
	"image"
	"net/http"

	"shopwatch/internal/overlay"
)

// Boundary separates parts of the multipart stream
const Boundary = "frame"

// ErrFlushUnsupported is returned when the response cannot be streamed
var ErrFlushUnsupported = errors.New("streaming not supported")

// MJPEGWriter writes frames as a multipart/x-mixed-replace response
type MJPEGWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	frames  uint64
}

// NewMJPEGWriter sets the streaming headers. Nothing is written to the body
// until the first frame.
func NewMJPEGWriter(w http.ResponseWriter) (*MJPEGWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrFlushUnsupported
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+Boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &MJPEGWriter{w: w, flusher: flusher}, nil
}

// WriteFrame writes one JPEG part and flushes it to the client
func (m *MJPEGWriter) WriteFrame(frame []byte) error {
	if _, err := fmt.Fprintf(m.w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(frame)); err != nil {
		return err
	}
	if _, err := m.w.Write(frame); err != nil {
		return err
	}
	if _, err := m.w.Write([]byte("\r\n")); err != nil {
		return err
	}
	m.flusher.Flush()
	m.frames++
	return nil
}

// WriteImage encodes img and writes it as the next part
func (m *MJPEGWriter) WriteImage(img image.Image) error {
	data, err := overlay.EncodeJPEG(img)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return m.WriteFrame(data)
}

// Frames returns the number of parts written so far
func (m *MJPEGWriter) Frames() uint64 {
	return m.frames
}
