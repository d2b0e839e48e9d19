package analytics

import (
	"math"
	"sort"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// DistributionBins is the number of equal timeline slices used to judge
// how evenly the kept shots cover the source.
const DistributionBins = 10

// defaultQuality stands in for shots selected without a sharpness score
const defaultQuality = 0.5

// Report is the quantitative evaluation of one summary
type Report struct {
	Compression    Compression   `json:"compression"`
	Coverage       Coverage      `json:"coverage"`
	Distribution   Distribution  `json:"distribution"`
	QualityScores  Stats         `json:"quality_scores"`
	ShotDurations  DurationStats `json:"shot_durations"`
	SummaryScore   Score         `json:"summary_score"`
	SelectedShots  int           `json:"selected_shots"`
	DetectedShots  int           `json:"detected_shots"`
	FramesSampled  int           `json:"frames_sampled"`
	BoundaryCount  int           `json:"boundary_count"`
	ThresholdValue float64       `json:"threshold"`
}

// Compression compares summary and source length
type Compression struct {
	SourceDurationSec  float64 `json:"source_duration_sec"`
	SummaryDurationSec float64 `json:"summary_duration_sec"`
	// Ratio is summary/source; Factor is source/summary ("15:1").
	Ratio            float64 `json:"compression_ratio"`
	Factor           float64 `json:"compression_factor"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// Coverage measures how much of the timeline the kept shots span
type Coverage struct {
	TimelinePercent    float64 `json:"timeline_coverage_percent"`
	NumShots           int     `json:"num_shots"`
	AvgClipDurationSec float64 `json:"avg_clip_duration_sec"`
}

// Distribution describes where kept shots fall on the timeline
type Distribution struct {
	Bins           []int   `json:"bins"`
	Uniformity     float64 `json:"uniformity"`
	CoverageGaps   int     `json:"coverage_gaps"`
	TemporalSpread float64 `json:"temporal_spread"`
}

// Stats summarizes a list of scores
type Stats struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// DurationStats summarizes shot lengths in seconds
type DurationStats struct {
	MeanSec  float64 `json:"mean_sec"`
	StdSec   float64 `json:"std_sec"`
	MinSec   float64 `json:"min_sec"`
	MaxSec   float64 `json:"max_sec"`
	TotalSec float64 `json:"total_sec"`
}

// Score is a weighted overall grade in [0, 1]
type Score struct {
	Overall      float64 `json:"overall"`
	Compression  float64 `json:"compression_score"`
	Distribution float64 `json:"distribution_score"`
	Coverage     float64 `json:"coverage_score"`
	Quality      float64 `json:"quality_score"`
}

// Evaluate builds the evaluation report of a summary
func Evaluate(s *models.Summary) *Report {
	shots := []models.Shot(s.Selected)
	summaryDur := s.SummaryDuration()

	r := &Report{
		Compression:    compression(s.SourceDuration, summaryDur),
		Coverage:       coverage(shots, s.SourceDuration, summaryDur),
		Distribution:   distribution(shots, s.SourceDuration, DistributionBins),
		QualityScores:  qualityStats(shots),
		ShotDurations:  durationStats(shots),
		SelectedShots:  len(shots),
		DetectedShots:  len(s.Shots),
		FramesSampled:  s.FramesSampled,
		BoundaryCount:  len(s.Boundaries),
		ThresholdValue: round(s.Threshold, 4),
	}
	r.SummaryScore = overall(r)
	return r
}

func compression(source, summary float64) Compression {
	c := Compression{
		SourceDurationSec:  round(source, 2),
		SummaryDurationSec: round(summary, 2),
	}
	if source > 0 {
		c.Ratio = round(summary/source, 4)
		c.ReductionPercent = round((1-summary/source)*100, 1)
	}
	if summary > 0 {
		c.Factor = round(source/summary, 2)
	}
	return c
}

func coverage(shots []models.Shot, source, summary float64) Coverage {
	c := Coverage{NumShots: len(shots)}
	if source > 0 {
		var covered float64
		for _, shot := range shots {
			covered += shot.EndSec - shot.StartSec
		}
		c.TimelinePercent = round(covered/source*100, 2)
	}
	if len(shots) > 0 {
		c.AvgClipDurationSec = round(summary/float64(len(shots)), 2)
	}
	return c
}

// distribution counts shot midpoints per bin. Uniformity is 1 minus the
// coefficient of variation of the counts, floored at 0.
func distribution(shots []models.Shot, source float64, bins int) Distribution {
	d := Distribution{Bins: make([]int, bins), CoverageGaps: bins}
	if source <= 0 || len(shots) == 0 {
		return d
	}

	binSize := source / float64(bins)
	mids := make([]float64, len(shots))
	for i, shot := range shots {
		mids[i] = (shot.StartSec + shot.EndSec) / 2
		idx := int(mids[i] / binSize)
		if idx >= bins {
			idx = bins - 1
		} else if idx < 0 {
			idx = 0
		}
		d.Bins[idx]++
	}

	expected := float64(len(shots)) / float64(bins)
	var variance float64
	for _, b := range d.Bins {
		variance += (float64(b) - expected) * (float64(b) - expected)
	}
	cv := math.Sqrt(variance/float64(bins)) / expected
	d.Uniformity = round(math.Max(0, 1-cv), 3)

	d.CoverageGaps = 0
	for _, b := range d.Bins {
		if b == 0 {
			d.CoverageGaps++
		}
	}

	if len(mids) >= 2 {
		lo, hi := mids[0], mids[0]
		for _, m := range mids[1:] {
			lo, hi = math.Min(lo, m), math.Max(hi, m)
		}
		d.TemporalSpread = round((hi-lo)/source, 3)
	}
	return d
}

func qualityStats(shots []models.Shot) Stats {
	if len(shots) == 0 {
		return Stats{}
	}
	scores := make([]float64, len(shots))
	for i, shot := range shots {
		scores[i] = defaultQuality
		if shot.QualityScore != nil {
			scores[i] = *shot.QualityScore
		}
	}
	mean, std, lo, hi := describe(scores)
	return Stats{
		Mean:   round(mean, 3),
		Std:    round(std, 3),
		Min:    round(lo, 3),
		Max:    round(hi, 3),
		Median: round(median(scores), 3),
	}
}

func durationStats(shots []models.Shot) DurationStats {
	if len(shots) == 0 {
		return DurationStats{}
	}
	durations := make([]float64, len(shots))
	var total float64
	for i, shot := range shots {
		durations[i] = shot.DurationSec
		total += shot.DurationSec
	}
	mean, std, lo, hi := describe(durations)
	return DurationStats{
		MeanSec:  round(mean, 2),
		StdSec:   round(std, 2),
		MinSec:   round(lo, 2),
		MaxSec:   round(hi, 2),
		TotalSec: round(total, 2),
	}
}

// overall grades compression in the 5x-30x band and coverage in the 3%-20%
// band as ideal, and weights them with uniformity and mean quality.
func overall(r *Report) Score {
	s := Score{Compression: 1, Coverage: 1}

	switch factor := r.Compression.Factor; {
	case factor < 5:
		s.Compression = 0.5
	case factor > 30:
		s.Compression = 0.7
	}

	switch pct := r.Coverage.TimelinePercent; {
	case pct < 3:
		s.Coverage = 0.5
	case pct > 20:
		s.Coverage = 0.7
	}

	s.Distribution = r.Distribution.Uniformity
	s.Quality = defaultQuality
	if r.SelectedShots > 0 {
		s.Quality = r.QualityScores.Mean
	}

	s.Overall = round(0.2*s.Compression+0.3*s.Distribution+0.2*s.Coverage+0.3*s.Quality, 3)
	return s
}

// describe returns mean, population standard deviation, min and max
func describe(values []float64) (mean, std, lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values {
		mean += v
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std, lo, hi
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
