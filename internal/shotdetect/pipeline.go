package shotdetect

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// Result is the complete output of one pipeline run.
type Result struct {
	Descriptors   []Descriptor
	RawCurve      []float64
	SmoothedCurve []float64
	Detection     *Detection
	MinShotFrames int
	Keyframes     []Keyframe
	// Shots lists every detected shot; Selected is the trimmed list.
	Shots    []models.Shot
	Selected []models.Shot
	Segments []models.Segment
}

// Run chains the whole engine over a sampled frame sequence:
// descriptors, distance curve, smoothing, boundary detection, keyframes and
// trimming. Either a complete result is returned or an error, never both.
func Run(frames []models.Frame, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}

	images := make([]image.Image, len(frames))
	timestamps := make([]float64, len(frames))
	for i, f := range frames {
		if err := checkFrame(f.Image); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		images[i] = f.Image
		timestamps[i] = f.Timestamp
	}

	descs, err := ExtractAll(images, params.Features, params.Workers)
	if err != nil {
		return nil, err
	}

	res := &Result{Descriptors: descs}
	res.RawCurve = DistanceCurve(descs, params.Weights)
	res.SmoothedCurve, err = Smooth(res.RawCurve, params.SmoothWindow)
	if err != nil {
		return nil, err
	}

	res.MinShotFrames = params.MinShotSamples(timestamps)
	res.Detection, err = DetectWithOptions(res.SmoothedCurve, DetectOptions{
		Percentile:  params.ThresholdPercentile,
		MinDuration: res.MinShotFrames,
		NMSSpacing:  params.NMSSpacing,
	})
	if err != nil {
		return nil, err
	}

	res.Keyframes, err = SelectKeyframes(res.Detection.Shots, images, params.KeyframePolicy, params.Sharpness)
	if err != nil {
		return nil, err
	}

	res.Shots = toModelShots(res.Detection.Shots, res.Keyframes, frames)
	res.Selected, err = Trim(res.Shots, params.SecsPerShot, params.MaxDuration)
	if err != nil {
		return nil, err
	}
	res.Segments = PlanSegments(res.Selected, params.SecsPerShot, params.MaxDuration)
	return res, nil
}

// ExtractAll computes descriptors on a fixed pool of workers. Results land
// in per-index slots, so the output order matches the input order. When
// several frames fail, the error of the lowest index is returned.
func ExtractAll(images []image.Image, opts FeatureOptions, workers int) ([]Descriptor, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(images) {
		workers = len(images)
	}

	descs := make([]Descriptor, len(images))
	errs := make([]error, len(images))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				descs[i], errs[i] = Extract(images[i], opts)
			}
		}()
	}

	for i := range images {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return descs, nil
}

func toModelShots(shots []Shot, keyframes []Keyframe, frames []models.Frame) []models.Shot {
	out := make([]models.Shot, len(shots))
	for i, s := range shots {
		kf := keyframes[i]
		out[i] = models.Shot{
			ID:                  i,
			StartFrame:          s.Start,
			EndFrame:            s.End,
			DurationFrames:      s.Duration(),
			SourceStartFrame:    frames[s.Start].Index,
			SourceEndFrame:      frames[s.End].Index,
			StartSec:            frames[s.Start].Timestamp,
			EndSec:              frames[s.End].Timestamp,
			DurationSec:         frames[s.End].Timestamp - frames[s.Start].Timestamp,
			KeyframeIndex:       kf.FrameIndex,
			KeyframeSourceIndex: frames[kf.FrameIndex].Index,
			KeyframeSec:         frames[kf.FrameIndex].Timestamp,
			QualityScore:        kf.QualityScore,
		}
	}
	return out
}

// medianStep returns the median difference between consecutive timestamps,
// or 0 when there are fewer than two.
func medianStep(ts []float64) float64 {
	if len(ts) < 2 {
		return 0
	}
	steps := make([]float64, len(ts)-1)
	for i := range steps {
		steps[i] = ts[i+1] - ts[i]
	}
	sort.Float64s(steps)

	mid := len(steps) / 2
	if len(steps)%2 == 1 {
		return steps[mid]
	}
	return (steps[mid-1] + steps[mid]) / 2
}

// ParamsFrom overlays the set fields of a job's overrides on base.
func ParamsFrom(base Params, o models.DetectionParams) (Params, error) {
	p := base
	if o.SampleFPS > 0 {
		p.SampleFPS = o.SampleFPS
	}
	if o.ThresholdPercentile != nil {
		p.ThresholdPercentile = *o.ThresholdPercentile
	}
	if o.MinShotFrames != 0 {
		p.MinShotFrames = o.MinShotFrames
	}
	if o.MinShotSeconds != 0 {
		p.MinShotSeconds = o.MinShotSeconds
		if o.MinShotFrames == 0 {
			p.MinShotFrames = 0
		}
	}
	if o.NMSSpacing != 0 {
		p.NMSSpacing = o.NMSSpacing
	}
	if o.SmoothWindow != 0 {
		p.SmoothWindow = o.SmoothWindow
	}
	if o.KeyframePolicy != "" {
		policy, err := ParsePolicy(o.KeyframePolicy)
		if err != nil {
			return base, err
		}
		p.KeyframePolicy = policy
	}
	if o.ColorWeight != nil {
		p.Weights = Weights{Color: *o.ColorWeight, Edge: 1 - *o.ColorWeight}
	}
	if o.SecsPerShot != 0 {
		p.SecsPerShot = o.SecsPerShot
	}
	if o.MaxDuration != 0 {
		p.MaxDuration = o.MaxDuration
	}

	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}

// Summary converts the result into the serializable record set stored for
// a video. Params echoes the overrides the job was run with.
func (r *Result) Summary(videoID string, sourceDuration float64, overrides models.DetectionParams) *models.Summary {
	s := &models.Summary{
		VideoID:        videoID,
		FramesSampled:  len(r.Descriptors),
		SourceDuration: sourceDuration,
		MinShotFrames:  r.MinShotFrames,
		RawCurve:       r.RawCurve,
		SmoothedCurve:  r.SmoothedCurve,
		Shots:          r.Shots,
		Selected:       r.Selected,
		Segments:       r.Segments,
		Params:         overrides,
	}
	if r.Detection != nil {
		s.Threshold = r.Detection.Threshold
		s.Boundaries = r.Detection.Boundaries
	}
	if s.Boundaries == nil {
		s.Boundaries = []int{}
	}
	return s
}
