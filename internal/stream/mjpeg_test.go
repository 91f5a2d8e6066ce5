package stream

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMJPEGWriterProducesMultipart(t *testing.T) {
	rec := httptest.NewRecorder()
	mw, err := NewMJPEGWriter(rec)
	require.NoError(t, err)

	require.NoError(t, mw.WriteFrame([]byte{0xFF, 0xD8, 0xFF, 0xD9}))
	require.NoError(t, mw.WriteImage(image.NewRGBA(image.Rect(0, 0, 32, 24))))
	assert.Equal(t, uint64(2), mw.Frames())
	assert.True(t, rec.Flushed)

	mediaType, params, err := mime.ParseMediaType(rec.Header().Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	// the live stream never closes its boundary; terminate it for parsing
	body := io.MultiReader(rec.Body, strings.NewReader("--"+params["boundary"]+"--\r\n"))
	reader := multipart.NewReader(body, params["boundary"])

	part, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	assert.Equal(t, "4", part.Header.Get("Content-Length"))
	data, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, data)

	part, err = reader.NextPart()
	require.NoError(t, err)
	data, err = io.ReadAll(part)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

type plainWriter struct{ http.ResponseWriter }

func TestMJPEGWriterRequiresFlusher(t *testing.T) {
	_, err := NewMJPEGWriter(plainWriter{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrFlushUnsupported)
}
