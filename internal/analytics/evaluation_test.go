package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

func score(v float64) *float64 { return &v }

// evenSummary keeps one 2s shot at the start of each 10s slice of a 100s
// video, summarized as 1s clips.
func evenSummary() *models.Summary {
	s := &models.Summary{
		VideoID:        "video-1",
		SourceDuration: 100,
		FramesSampled:  400,
		Threshold:      0.25,
		Boundaries:     []int{40, 80},
	}
	for i := 0; i < 10; i++ {
		start := float64(i * 10)
		shot := models.Shot{ID: i, StartSec: start, EndSec: start + 2, DurationSec: 2, QualityScore: score(0.8)}
		s.Shots = append(s.Shots, shot)
		s.Selected = append(s.Selected, shot)
		s.Segments = append(s.Segments, models.Segment{ShotID: i, StartSec: start, EndSec: start + 1})
	}
	return s
}

func TestEvaluate_EvenSummary(t *testing.T) {
	r := Evaluate(evenSummary())

	assert.Equal(t, 100.0, r.Compression.SourceDurationSec)
	assert.Equal(t, 10.0, r.Compression.SummaryDurationSec)
	assert.Equal(t, 0.1, r.Compression.Ratio)
	assert.Equal(t, 10.0, r.Compression.Factor)
	assert.Equal(t, 90.0, r.Compression.ReductionPercent)

	assert.Equal(t, 20.0, r.Coverage.TimelinePercent)
	assert.Equal(t, 10, r.Coverage.NumShots)
	assert.Equal(t, 1.0, r.Coverage.AvgClipDurationSec)

	assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, r.Distribution.Bins)
	assert.Equal(t, 1.0, r.Distribution.Uniformity)
	assert.Equal(t, 0, r.Distribution.CoverageGaps)
	assert.Equal(t, 0.9, r.Distribution.TemporalSpread)

	assert.Equal(t, Stats{Mean: 0.8, Std: 0, Min: 0.8, Max: 0.8, Median: 0.8}, r.QualityScores)
	assert.Equal(t, DurationStats{MeanSec: 2, MinSec: 2, MaxSec: 2, TotalSec: 20}, r.ShotDurations)

	assert.Equal(t, 1.0, r.SummaryScore.Compression)
	assert.Equal(t, 1.0, r.SummaryScore.Coverage)
	assert.Equal(t, 0.94, r.SummaryScore.Overall)

	assert.Equal(t, 10, r.SelectedShots)
	assert.Equal(t, 2, r.BoundaryCount)
}

func TestEvaluate_ClusteredShots(t *testing.T) {
	s := &models.Summary{SourceDuration: 100}
	for i := 0; i < 4; i++ {
		shot := models.Shot{ID: i, StartSec: float64(i), EndSec: float64(i + 1), DurationSec: 1}
		s.Selected = append(s.Selected, shot)
	}

	r := Evaluate(s)

	assert.Equal(t, []int{4, 0, 0, 0, 0, 0, 0, 0, 0, 0}, r.Distribution.Bins)
	assert.Equal(t, 0.0, r.Distribution.Uniformity)
	assert.Equal(t, 9, r.Distribution.CoverageGaps)
	assert.Equal(t, 0.03, r.Distribution.TemporalSpread)
	assert.Equal(t, 0.5, r.QualityScores.Mean, "unscored shots count as 0.5")
}

func TestEvaluate_Empty(t *testing.T) {
	r := Evaluate(&models.Summary{})

	assert.Equal(t, make([]int, DistributionBins), r.Distribution.Bins)
	assert.Equal(t, DistributionBins, r.Distribution.CoverageGaps)
	assert.Zero(t, r.Compression.Ratio)
	assert.Zero(t, r.Compression.Factor)
	assert.Equal(t, 0.5, r.SummaryScore.Quality)

	_, err := json.Marshal(r)
	require.NoError(t, err)
}

func TestOverallBands(t *testing.T) {
	tests := []struct {
		name        string
		factor      float64
		coverage    float64
		compression float64
		cov         float64
	}{
		{"under-compressed", 2, 50, 0.5, 0.7},
		{"ideal", 15, 10, 1, 1},
		{"over-compressed", 60, 1, 0.7, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := overall(&Report{
				Compression: Compression{Factor: tt.factor},
				Coverage:    Coverage{TimelinePercent: tt.coverage},
			})
			assert.Equal(t, tt.compression, s.Compression)
			assert.Equal(t, tt.cov, s.Coverage)
		})
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}
