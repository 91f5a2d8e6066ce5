package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	out := Resize(src, 640, 480)
	assert.Equal(t, image.Rect(0, 0, 640, 480), out.Bounds())

	same := Resize(out, 640, 480)
	assert.NotSame(t, out, same)
	assert.Equal(t, out.Bounds(), same.Bounds())
}

func TestDrawBoxStaysInBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	DrawBox(img, image.Rect(-20, 10, 150, 50), Green, 2)

	assert.Equal(t, Green, img.RGBAAt(50, 10))
	assert.Equal(t, Green, img.RGBAAt(50, 50))
	assert.Equal(t, color.RGBA{}, img.RGBAAt(50, 30))
}

func TestPlaceholder(t *testing.T) {
	img := Placeholder(640, 480)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())
	assert.Equal(t, color.RGBA{50, 50, 50, 255}, img.RGBAAt(5, 5))

	// some text pixels are drawn near the centre
	var bright int
	for x := 0; x < 640; x++ {
		for y := 220; y < 260; y++ {
			if img.RGBAAt(x, y).R > 200 {
				bright++
			}
		}
	}
	assert.Greater(t, bright, 0)
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(Placeholder(64, 48))
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}
