package shotdetect

import (
	"fmt"
	"image"
	"math"
)

const (
	// ColorBinsPerChannel is the per-channel bin count of the HSV histogram.
	ColorBinsPerChannel = 8
	// ColorBins is the total color histogram length (H x S x V).
	ColorBins = ColorBinsPerChannel * ColorBinsPerChannel * ColorBinsPerChannel
	// EdgeBins is the edge histogram length. Bin 0 holds non-edge pixels,
	// bins 1..EdgeBins-1 hold edge pixels by gradient orientation.
	EdgeBins = 16
)

// Descriptor summarizes one frame. Both histograms are L1-normalized, so
// descriptors of frames with different resolutions are comparable.
type Descriptor struct {
	Color [ColorBins]float64
	Edge  [EdgeBins]float64
}

// FeatureOptions controls frame preprocessing and the edge map.
type FeatureOptions struct {
	// ResizeWidth downsizes wider frames before extraction; 0 keeps full size.
	ResizeWidth int
	// EdgeThreshold is the Sobel magnitude (0-255 luma scale) at which a
	// pixel counts as an edge.
	EdgeThreshold float64
}

// DefaultFeatureOptions returns the extraction defaults.
func DefaultFeatureOptions() FeatureOptions {
	return FeatureOptions{
		ResizeWidth:   320,
		EdgeThreshold: 100,
	}
}

// Validate checks feature options
func (o FeatureOptions) Validate() error {
	if o.ResizeWidth < 0 {
		return fmt.Errorf("%w: resize width %d is negative", ErrInvalidConfig, o.ResizeWidth)
	}
	if o.EdgeThreshold <= 0 {
		return fmt.Errorf("%w: edge threshold must be positive", ErrInvalidConfig)
	}
	return nil
}

// Extract computes the descriptor of a single frame.
func Extract(img image.Image, opts FeatureOptions) (Descriptor, error) {
	var d Descriptor
	if err := checkFrame(img); err != nil {
		return d, err
	}

	rgba := prepare(img, opts.ResizeWidth)
	colorHistogram(rgba, &d.Color)
	edgeHistogram(toGray(rgba), opts.EdgeThreshold, &d.Edge)
	return d, nil
}

func colorHistogram(rgba *image.RGBA, hist *[ColorBins]float64) {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	const n = ColorBinsPerChannel

	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			hue, sat, val := rgbToHSV(row[x*4], row[x*4+1], row[x*4+2])
			hb := binOf(hue/360, n)
			sb := binOf(sat, n)
			vb := binOf(val, n)
			hist[(hb*n+sb)*n+vb]++
		}
	}

	normalize(hist[:], float64(w*h))
}

// edgeHistogram bins every pixel: non-edge pixels into bin 0, edge pixels by
// orientation in [0, pi) into the remaining bins.
func edgeHistogram(g *grayImage, threshold float64, hist *[EdgeBins]float64) {
	const orientBins = EdgeBins - 1

	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			gx := (g.at(x+1, y-1) + 2*g.at(x+1, y) + g.at(x+1, y+1)) -
				(g.at(x-1, y-1) + 2*g.at(x-1, y) + g.at(x-1, y+1))
			gy := (g.at(x-1, y+1) + 2*g.at(x, y+1) + g.at(x+1, y+1)) -
				(g.at(x-1, y-1) + 2*g.at(x, y-1) + g.at(x+1, y-1))

			if math.Hypot(gx, gy) < threshold {
				hist[0]++
				continue
			}

			theta := math.Atan2(gy, gx)
			if theta < 0 {
				theta += math.Pi
			}
			hist[1+binOf(theta/math.Pi, orientBins)]++
		}
	}

	normalize(hist[:], float64(g.w*g.h))
}

// rgbToHSV returns hue in degrees [0,360) and saturation/value in [0,1].
func rgbToHSV(r8, g8, b8 uint8) (h, s, v float64) {
	r, g, b := float64(r8)/255, float64(g8)/255, float64(b8)/255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	v = maxC
	if maxC > 0 {
		s = delta / maxC
	}
	if delta == 0 {
		return 0, s, v
	}

	switch maxC {
	case r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}

// binOf maps a value in [0,1] onto [0,n).
func binOf(f float64, n int) int {
	b := int(f * float64(n))
	if b >= n {
		b = n - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

func normalize(hist []float64, total float64) {
	if total <= 0 {
		return
	}
	for i := range hist {
		hist[i] /= total
	}
}
