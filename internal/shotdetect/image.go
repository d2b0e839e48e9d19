package shotdetect

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// grayImage is a row-major luma plane on the 0-255 scale.
type grayImage struct {
	w, h int
	pix  []float64
}

func (g *grayImage) at(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= g.w {
		x = g.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.h {
		y = g.h - 1
	}
	return g.pix[y*g.w+x]
}

// checkFrame rejects frames the extractor cannot describe.
func checkFrame(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidFrame)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: zero area (%dx%d)", ErrInvalidFrame, b.Dx(), b.Dy())
	}
	return nil
}

// prepare downsizes img to width (aspect preserved) when it is wider, and
// returns an RGBA copy anchored at the origin.
func prepare(img image.Image, width int) *image.RGBA {
	if width > 0 && img.Bounds().Dx() > width {
		img = resize.Resize(uint(width), 0, img, resize.Bilinear)
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba
}

// toGray converts an RGBA image to BT.601 luma.
func toGray(rgba *image.RGBA) *grayImage {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	g := &grayImage{w: w, h: h, pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			r, gg, b := row[x*4], row[x*4+1], row[x*4+2]
			g.pix[y*w+x] = 0.299*float64(r) + 0.587*float64(gg) + 0.114*float64(b)
		}
	}
	return g
}
