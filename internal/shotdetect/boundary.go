package shotdetect

import (
	"fmt"
	"math"
	"sort"
)

// Shot is a contiguous span of sampled frames. Consecutive shots share their
// boundary index: shots[i].End == shots[i+1].Start.
type Shot struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Duration returns the shot length in sampled frames.
func (s Shot) Duration() int {
	return s.End - s.Start
}

// DetectOptions configures boundary detection.
type DetectOptions struct {
	Percentile  float64
	MinDuration int
	// NMSSpacing is the minimum distance between two kept candidates.
	// Zero means MinDuration.
	NMSSpacing int
}

// Detection is the output of the boundary detector.
type Detection struct {
	Threshold float64 `json:"threshold"`
	// Candidates are curve indices that exceeded the threshold, before
	// suppression.
	Candidates []int  `json:"candidates"`
	Boundaries []int  `json:"boundaries"`
	Shots      []Shot `json:"shots"`
}

// Detect finds shot boundaries in a distance curve using the given
// percentile as an adaptive threshold. Non-maximum suppression uses
// minDuration as its spacing.
func Detect(curve []float64, percentile float64, minDuration int) (*Detection, error) {
	return DetectWithOptions(curve, DetectOptions{
		Percentile:  percentile,
		MinDuration: minDuration,
	})
}

// DetectWithOptions is Detect with an explicit NMS spacing.
//
// Curve index i scores the change between frame i and i+1, so a peak at i
// becomes a boundary at frame i+1. The timeline runs from frame 0 to frame
// len(curve).
func DetectWithOptions(curve []float64, opts DetectOptions) (*Detection, error) {
	if opts.Percentile < 0 || opts.Percentile > 100 || math.IsNaN(opts.Percentile) {
		return nil, fmt.Errorf("%w: percentile %g outside [0,100]", ErrInvalidConfig, opts.Percentile)
	}
	if opts.MinDuration <= 0 {
		return nil, fmt.Errorf("%w: min duration %d must be positive", ErrInvalidConfig, opts.MinDuration)
	}
	if opts.NMSSpacing < 0 {
		return nil, fmt.Errorf("%w: nms spacing %d is negative", ErrInvalidConfig, opts.NMSSpacing)
	}

	spacing := opts.NMSSpacing
	if spacing == 0 {
		spacing = opts.MinDuration
	}

	last := len(curve)
	det := &Detection{
		Candidates: []int{},
		Boundaries: []int{},
	}

	if len(curve) == 0 {
		det.Shots = []Shot{{Start: 0, End: 0}}
		return det, nil
	}

	det.Threshold = Percentile(curve, opts.Percentile)
	if !flat(curve) {
		for i, v := range curve {
			if v > det.Threshold {
				det.Candidates = append(det.Candidates, i)
			}
		}
	}

	peaks := suppress(det.Candidates, curve, spacing)

	bounds := make([]int, 0, len(peaks)+2)
	bounds = append(bounds, 0)
	for _, p := range peaks {
		if b := p + 1; b < last {
			bounds = append(bounds, b)
		}
	}
	bounds = append(bounds, last)
	bounds = mergeShort(bounds, opts.MinDuration)

	det.Boundaries = append(det.Boundaries, bounds[1:len(bounds)-1]...)
	det.Shots = BuildShots(det.Boundaries, last)
	return det, nil
}

// BuildShots turns interior boundaries into a contiguous shot list covering
// [0, last].
func BuildShots(boundaries []int, last int) []Shot {
	shots := make([]Shot, 0, len(boundaries)+1)
	start := 0
	for _, b := range boundaries {
		shots = append(shots, Shot{Start: start, End: b})
		start = b
	}
	return append(shots, Shot{Start: start, End: last})
}

// Percentile returns the p-th percentile of values using linear
// interpolation between the closest ranks.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// flat reports whether the curve has (numerically) zero variance.
func flat(curve []float64) bool {
	lo, hi := curve[0], curve[0]
	for _, v := range curve[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	scale := math.Max(1, math.Abs(hi))
	return hi-lo <= 1e-12*scale
}

// suppress keeps the strongest candidate in every neighborhood of the given
// spacing. Candidates are visited by descending score, earliest index first
// on ties, and the survivors are returned in ascending order.
func suppress(candidates []int, curve []float64, spacing int) []int {
	order := make([]int, len(candidates))
	copy(order, candidates)
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := curve[order[a]], curve[order[b]]
		if va != vb {
			return va > vb
		}
		return order[a] < order[b]
	})

	// No two indices of the curve are further apart than its length.
	spacing = min(spacing, len(curve))

	kept := newFenwick(len(curve))
	peaks := make([]int, 0, len(order))
	for _, i := range order {
		if kept.count(i-spacing+1, i+spacing-1) > 0 {
			continue
		}
		kept.add(i)
		peaks = append(peaks, i)
	}

	sort.Ints(peaks)
	return peaks
}

// fenwick is a binary indexed tree over curve indices, counting the peaks
// kept so far.
type fenwick []int

func newFenwick(n int) fenwick {
	return make(fenwick, n+1)
}

func (f fenwick) add(i int) {
	for i++; i < len(f); i += i & -i {
		f[i]++
	}
}

// prefix counts kept indices in [0, i].
func (f fenwick) prefix(i int) int {
	n := 0
	for i++; i > 0; i -= i & -i {
		n += f[i]
	}
	return n
}

// count counts kept indices in [lo, hi], clamped to the curve.
func (f fenwick) count(lo, hi int) int {
	lo, hi = max(lo, 0), min(hi, len(f)-2)
	if lo > hi {
		return 0
	}
	return f.prefix(hi) - f.prefix(lo-1)
}

// mergeShort walks the shot list left to right and folds every shot shorter
// than minDuration into the following shot, or into the preceding one when
// it is the last shot. bounds includes both timeline ends.
func mergeShort(bounds []int, minDuration int) []int {
	end := bounds[len(bounds)-1]
	out := make([]int, 1, len(bounds))
	out[0] = bounds[0]

	for _, b := range bounds[1 : len(bounds)-1] {
		if b-out[len(out)-1] >= minDuration {
			out = append(out, b)
		}
	}
	if end-out[len(out)-1] < minDuration && len(out) > 1 {
		out = out[:len(out)-1]
	}
	return append(out, end)
}
