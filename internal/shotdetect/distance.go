package shotdetect

import "math"

// ChiSquare returns 0.5 * sum((p-q)^2 / (p+q)) over bins where p+q > 0.
// Empty bins contribute nothing, so ChiSquare(p, p) is exactly 0.
func ChiSquare(p, q []float64) float64 {
	var sum float64
	for i := range p {
		den := p[i] + q[i]
		if den <= 0 {
			continue
		}
		diff := p[i] - q[i]
		sum += diff * diff / den
	}
	return 0.5 * sum
}

// Euclidean returns the L2 distance between two equal-length vectors.
func Euclidean(p, q []float64) float64 {
	var sum float64
	for i := range p {
		diff := p[i] - q[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// Distance combines the chi-square color distance and the Euclidean edge
// distance of two descriptors.
func Distance(a, b Descriptor, w Weights) float64 {
	dc := ChiSquare(a.Color[:], b.Color[:])
	de := Euclidean(a.Edge[:], b.Edge[:])
	return w.Color*dc + w.Edge*de
}

// DistanceCurve returns one score per consecutive descriptor pair. Index i
// holds the dissimilarity between descriptor i and i+1.
func DistanceCurve(descs []Descriptor, w Weights) []float64 {
	if len(descs) < 2 {
		return []float64{}
	}

	curve := make([]float64, len(descs)-1)
	for i := range curve {
		curve[i] = Distance(descs[i], descs[i+1], w)
	}
	return curve
}
