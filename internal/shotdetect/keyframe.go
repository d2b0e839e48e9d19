package shotdetect

import (
	"fmt"
	"image"
	"math"
)

// Keyframe is the representative frame of one shot.
type Keyframe struct {
	ShotID     int `json:"shot_id"`
	FrameIndex int `json:"frame_index"`
	// QualityScore is in [0,1]; nil when the policy does not score frames.
	QualityScore *float64 `json:"quality_score,omitempty"`
}

// SharpnessOptions configures the sharpest-frame policy.
type SharpnessOptions struct {
	// Ceiling is the Laplacian variance mapped to a quality score of 1.
	Ceiling float64
	// ResizeWidth downsizes frames before scoring; 0 keeps full size.
	ResizeWidth int
}

// DefaultSharpnessOptions returns the scoring defaults.
func DefaultSharpnessOptions() SharpnessOptions {
	return SharpnessOptions{Ceiling: 1000, ResizeWidth: 320}
}

// SelectKeyframe picks the keyframe of shot among frames. The frames of a
// shot are [Start, End), plus End itself when it is the final frame.
func SelectKeyframe(shotID int, shot Shot, frames []image.Image, policy KeyframePolicy, opts SharpnessOptions) (Keyframe, error) {
	kf := Keyframe{ShotID: shotID}

	lo, hi, err := shotRange(shot, len(frames))
	if err != nil {
		return kf, err
	}

	switch policy {
	case PolicyMidpoint:
		kf.FrameIndex = (shot.Start + shot.End) / 2
		if kf.FrameIndex >= len(frames) {
			kf.FrameIndex = len(frames) - 1
		}
		return kf, nil
	case PolicySharpest:
		return sharpest(kf, frames, lo, hi, opts)
	default:
		return kf, fmt.Errorf("%w: unknown keyframe policy %d", ErrInvalidConfig, int(policy))
	}
}

// SelectKeyframes runs SelectKeyframe for every shot in order.
func SelectKeyframes(shots []Shot, frames []image.Image, policy KeyframePolicy, opts SharpnessOptions) ([]Keyframe, error) {
	keyframes := make([]Keyframe, 0, len(shots))
	for i, shot := range shots {
		kf, err := SelectKeyframe(i, shot, frames, policy, opts)
		if err != nil {
			return nil, fmt.Errorf("shot %d: %w", i, err)
		}
		keyframes = append(keyframes, kf)
	}
	return keyframes, nil
}

// Sharpness returns the variance of the 4-neighbour Laplacian response of
// the frame's luma.
func Sharpness(img image.Image, resizeWidth int) (float64, error) {
	if err := checkFrame(img); err != nil {
		return 0, err
	}
	return laplacianVariance(toGray(prepare(img, resizeWidth))), nil
}

func sharpest(kf Keyframe, frames []image.Image, lo, hi int, opts SharpnessOptions) (Keyframe, error) {
	best := -1.0
	for i := lo; i < hi; i++ {
		score, err := Sharpness(frames[i], opts.ResizeWidth)
		if err != nil {
			return kf, fmt.Errorf("frame %d: %w", i, err)
		}
		// strict comparison keeps the earliest frame on ties
		if score > best {
			best = score
			kf.FrameIndex = i
		}
	}

	q := math.Min(best/opts.Ceiling, 1)
	kf.QualityScore = &q
	return kf, nil
}

func shotRange(shot Shot, n int) (int, int, error) {
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: no frames", ErrEmptySequence)
	}
	if shot.Start < 0 || shot.End < shot.Start || shot.End >= n {
		return 0, 0, fmt.Errorf("%w: shot [%d,%d] outside %d frames", ErrInvalidConfig, shot.Start, shot.End, n)
	}

	hi := shot.End
	if hi == n-1 || hi == shot.Start {
		hi++
	}
	return shot.Start, hi, nil
}

func laplacianVariance(g *grayImage) float64 {
	n := float64(g.w * g.h)
	var sum, sumSq float64
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			l := g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
			sum += l
			sumSq += l * l
		}
	}
	mean := sum / n
	v := sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}
