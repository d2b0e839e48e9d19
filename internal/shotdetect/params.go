package shotdetect

import (
	"fmt"
	"math"
	"runtime"
	"strings"
)

// KeyframePolicy selects how a shot's representative frame is chosen.
type KeyframePolicy int

const (
	// PolicyMidpoint picks the temporal center of the shot.
	PolicyMidpoint KeyframePolicy = iota
	// PolicySharpest picks the frame with the highest Laplacian variance.
	PolicySharpest
)

// String returns the policy's config name
func (p KeyframePolicy) String() string {
	switch p {
	case PolicySharpest:
		return "sharpest"
	default:
		return "midpoint"
	}
}

// ParsePolicy resolves a config string into a KeyframePolicy.
// The empty string maps to PolicyMidpoint.
func ParsePolicy(s string) (KeyframePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "midpoint", "middle":
		return PolicyMidpoint, nil
	case "sharpest", "best":
		return PolicySharpest, nil
	default:
		return PolicyMidpoint, fmt.Errorf("%w: unknown keyframe policy %q", ErrInvalidConfig, s)
	}
}

// Weights balances the color and edge components of the frame distance.
type Weights struct {
	Color float64
	Edge  float64
}

// DefaultWeights biases toward color composition.
func DefaultWeights() Weights {
	return Weights{Color: 0.7, Edge: 0.3}
}

// Validate checks that both weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	if w.Color < 0 || w.Edge < 0 {
		return fmt.Errorf("%w: weights must be non-negative (color=%g, edge=%g)", ErrInvalidConfig, w.Color, w.Edge)
	}
	if math.Abs(w.Color+w.Edge-1) > 1e-9 {
		return fmt.Errorf("%w: weights must sum to 1 (color=%g, edge=%g)", ErrInvalidConfig, w.Color, w.Edge)
	}
	return nil
}

// Params is the parameter bundle for one pipeline run. Build it once,
// validate it once, and never mutate it while a run is in flight.
//
// MinShotFrames takes precedence over MinShotSeconds when positive.
// NMSSpacing of 0 means "same as the minimum shot length".
type Params struct {
	SampleFPS           float64
	ThresholdPercentile float64
	MinShotFrames       int
	MinShotSeconds      float64
	NMSSpacing          int
	SmoothWindow        int
	KeyframePolicy      KeyframePolicy
	Weights             Weights
	Features            FeatureOptions
	Sharpness           SharpnessOptions
	SecsPerShot         float64
	MaxDuration         float64
	Workers             int
}

// DefaultParams returns the engine defaults.
func DefaultParams() Params {
	return Params{
		SampleFPS:           8,
		ThresholdPercentile: 95,
		MinShotSeconds:      1.0,
		SmoothWindow:        5,
		KeyframePolicy:      PolicyMidpoint,
		Weights:             DefaultWeights(),
		Features:            DefaultFeatureOptions(),
		Sharpness:           DefaultSharpnessOptions(),
		SecsPerShot:         1.5,
		Workers:             runtime.GOMAXPROCS(0),
	}
}

// Validate rejects out-of-range or nonsensical parameters.
func (p Params) Validate() error {
	if p.ThresholdPercentile < 0 || p.ThresholdPercentile > 100 || math.IsNaN(p.ThresholdPercentile) {
		return fmt.Errorf("%w: threshold percentile %g outside [0,100]", ErrInvalidConfig, p.ThresholdPercentile)
	}
	if p.MinShotFrames < 0 {
		return fmt.Errorf("%w: min shot frames %d is negative", ErrInvalidConfig, p.MinShotFrames)
	}
	if p.MinShotFrames == 0 && p.MinShotSeconds <= 0 {
		return fmt.Errorf("%w: minimum shot duration must be positive", ErrInvalidConfig)
	}
	if p.NMSSpacing < 0 {
		return fmt.Errorf("%w: nms spacing %d is negative", ErrInvalidConfig, p.NMSSpacing)
	}
	if p.SmoothWindow < 1 {
		return fmt.Errorf("%w: smoothing window %d < 1", ErrInvalidConfig, p.SmoothWindow)
	}
	if p.KeyframePolicy != PolicyMidpoint && p.KeyframePolicy != PolicySharpest {
		return fmt.Errorf("%w: unknown keyframe policy %d", ErrInvalidConfig, int(p.KeyframePolicy))
	}
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if err := p.Features.Validate(); err != nil {
		return err
	}
	if p.Sharpness.Ceiling <= 0 {
		return fmt.Errorf("%w: sharpness ceiling must be positive", ErrInvalidConfig)
	}
	if p.MaxDuration > 0 && p.SecsPerShot <= 0 {
		return fmt.Errorf("%w: secs per shot must be positive when max duration is set", ErrInvalidConfig)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers %d is negative", ErrInvalidConfig, p.Workers)
	}
	return nil
}

// MinShotSamples converts the minimum shot duration into a sample count.
// Seconds are converted with the median timestamp step, or with 1/SampleFPS
// when fewer than two timestamps are given.
func (p Params) MinShotSamples(timestamps []float64) int {
	if p.MinShotFrames > 0 {
		return p.MinShotFrames
	}

	dt := medianStep(timestamps)
	if dt <= 0 && p.SampleFPS > 0 {
		dt = 1 / p.SampleFPS
	}
	if dt <= 0 {
		return 1
	}

	n := int(math.Round(p.MinShotSeconds / dt))
	if n < 1 {
		n = 1
	}
	return n
}
