package shotdetect

import "fmt"

// Smooth applies a centered moving average. A window of w covers w/2
// samples to the left and w-1-w/2 to the right; near the ends the window
// shrinks to the in-range samples instead of padding with zeros.
func Smooth(curve []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: smoothing window %d < 1", ErrInvalidConfig, window)
	}

	out := make([]float64, len(curve))
	if window == 1 {
		copy(out, curve)
		return out, nil
	}

	left := window / 2
	right := window - 1 - left

	for i := range curve {
		lo := i - left
		if lo < 0 {
			lo = 0
		}
		hi := i + right + 1
		if hi > len(curve) {
			hi = len(curve)
		}

		var sum float64
		for _, v := range curve[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out, nil
}
