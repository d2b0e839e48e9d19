package shotdetect

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func checkerImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

// splitImage is black on the left half and white on the right half, or
// black on top and white below when horizontal is true.
func splitImage(w, h int, horizontal bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			white := x >= w/2
			if horizontal {
				white = y >= h/2
			}
			if white {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func flatCurve(n int, v float64) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = v
	}
	return c
}

func noiseCurve(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	c := make([]float64, n)
	for i := range c {
		c[i] = rng.Float64()
	}
	return c
}

// sceneFrames builds a sampled sequence of solid-color scenes at 8 fps.
func sceneFrames(perScene int, colors ...color.Color) []models.Frame {
	var frames []models.Frame
	for _, c := range colors {
		img := solidImage(32, 24, c)
		for i := 0; i < perScene; i++ {
			idx := len(frames)
			frames = append(frames, models.Frame{
				Index:     idx * 3,
				Timestamp: float64(idx) * 0.125,
				Image:     img,
			})
		}
	}
	return frames
}

func sumOf(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
