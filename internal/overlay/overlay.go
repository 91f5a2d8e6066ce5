package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// JPEGQuality is used for every frame and snapshot we encode
const JPEGQuality = 85

var (
	Green  = color.RGBA{0, 255, 0, 255}
	Red    = color.RGBA{255, 0, 0, 255}
	Orange = color.RGBA{255, 165, 0, 255}
	White  = color.RGBA{255, 255, 255, 255}
	Yellow = color.RGBA{255, 255, 0, 255}
	Gray   = color.RGBA{200, 200, 200, 255}
	Blue   = color.RGBA{0, 128, 255, 255}
)

// Clone copies img into a new RGBA so callers can draw on it freely
func Clone(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

// Resize scales img to w x h. A frame already at that size is only copied.
func Resize(img image.Image, w, h int) *image.RGBA {
	bounds := img.Bounds()
	if bounds.Dx() == w && bounds.Dy() == h {
		return Clone(img)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// DrawBox draws a rectangle outline on the image
func DrawBox(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	r = r.Canon()
	set := func(x, y int) {
		if (image.Point{x, y}).In(bounds) {
			img.SetRGBA(x, y, c)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			set(x, r.Min.Y+t)
			set(x, r.Max.Y-t)
		}
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			set(r.Min.X+t, y)
			set(r.Max.X-t, y)
		}
	}
}

// DrawLabel draws text with a dark background; (x, y) is the top-left corner
func DrawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	bg := image.NewUniform(color.RGBA{0, 0, 0, 180})
	width := font.MeasureString(basicfont.Face7x13, label).Ceil()
	box := image.Rect(x-2, y-2, x+width+2, y+14).Intersect(img.Bounds())
	draw.Draw(img, box, bg, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}

// DrawCentered draws text horizontally centered with its baseline at y
func DrawCentered(img *image.RGBA, y int, text string, c color.RGBA) {
	width := font.MeasureString(basicfont.Face7x13, text).Ceil()
	x := (img.Bounds().Dx() - width) / 2
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(img.Bounds().Min.X + x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// Placeholder renders the frame shown while no camera is attached
func Placeholder(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{50, 50, 50, 255}), image.Point{}, draw.Src)
	DrawCentered(img, h/2-10, "No Webcam Connected", Yellow)
	DrawCentered(img, h/2+15, "Please attach a webcam or upload images", Gray)
	return img
}

// EncodeJPEG encodes img at JPEGQuality
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
