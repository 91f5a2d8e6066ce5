package camera

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopwatch/internal/pipeline"
)

func encodeFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestExtractJPEGFrame(t *testing.T) {
	first := []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 4, 0xFF, 0xD9}

	buffer := append([]byte{9, 9}, first...)
	buffer = append(buffer, second[:3]...)

	assert.Equal(t, first, extractJPEGFrame(&buffer))
	assert.Nil(t, extractJPEGFrame(&buffer), "second frame is incomplete")

	buffer = append(buffer, second[3:]...)
	assert.Equal(t, second, extractJPEGFrame(&buffer))
	assert.Empty(t, buffer)
}

func TestExtractJPEGFrameDiscardsGarbage(t *testing.T) {
	buffer := []byte{1, 2, 3, 4, 0xFF}
	assert.Nil(t, extractJPEGFrame(&buffer))
	assert.Equal(t, []byte{0xFF}, buffer)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs(Config{Device: "/dev/video0", Width: 640, Height: 480, FPS: 15})
	assert.Equal(t, []string{
		"-f", "v4l2", "-video_size", "640x480", "-framerate", "15",
		"-i", "/dev/video0", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-",
	}, args)

	args = ffmpegArgs(Config{Device: "rtsp://cam.local/stream", FPS: 10})
	assert.Equal(t, []string{"-rtsp_transport", "tcp"}, args[:2])
	assert.Contains(t, args, "rtsp://cam.local/stream")
}

func TestOpenMissingDevice(t *testing.T) {
	open := Open(Config{Device: filepath.Join(t.TempDir(), "video9")}, zap.NewNop())
	_, err := open(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceUnavailable)

	_, err = Open(Config{}, zap.NewNop())(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceUnavailable)
}

func TestHTTPSourcePollsSnapshots(t *testing.T) {
	frame := encodeFrame(t, 64, 48)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(frame)
	}))
	defer srv.Close()

	src, err := Open(Config{Device: srv.URL + "/snapshot.jpg", FPS: 50}, zap.NewNop())(context.Background())
	require.NoError(t, err)
	defer src.Close()

	img, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

	_, err = src.Next(context.Background())
	assert.Error(t, err)

	_, err = src.Next(context.Background())
	assert.NoError(t, err)
}

func TestHTTPSourceHonorsContext(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:1/image.jpg", 1, 0)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFFmpegExitBeforeFirstFrameIsUnavailable(t *testing.T) {
	src := newFFmpegSource(nil, zap.NewNop())
	go src.read(bytes.NewReader(nil))
	defer src.Close()

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceUnavailable)
}

func TestFFmpegExitAfterFramesIsEOF(t *testing.T) {
	src := newFFmpegSource(nil, zap.NewNop())
	defer src.Close()

	pr, pw := io.Pipe()
	go src.read(pr)

	_, err := pw.Write(encodeFrame(t, 32, 24))
	require.NoError(t, err)

	img, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())

	pw.Close()
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestHTTPSourceUnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/snapshot.jpg"
	srv.Close()

	src := NewHTTPSource(url, 50, 0)
	defer src.Close()

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrSourceUnavailable)
}
