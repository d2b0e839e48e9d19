package models

import (
	"fmt"
	"math"
	"time"
)

// Manifest is the browsable export of a summary
type Manifest struct {
	VideoID            string            `json:"video_id" yaml:"video_id"`
	SourceDuration     float64           `json:"source_duration_sec" yaml:"source_duration_sec"`
	GeneratedAt        time.Time         `json:"generated_at" yaml:"generated_at"`
	TotalSegments      int               `json:"total_segments" yaml:"total_segments"`
	SummaryDurationSec float64           `json:"summary_duration_sec" yaml:"summary_duration_sec"`
	CompressionRatio   float64           `json:"compression_ratio" yaml:"compression_ratio"`
	Params             DetectionParams   `json:"params" yaml:"params"`
	Segments           []ManifestSegment `json:"segments" yaml:"segments"`
}

// ManifestSegment describes one clip of the summary
type ManifestSegment struct {
	Index        int      `json:"index" yaml:"index"`
	ShotID       int      `json:"shot_id" yaml:"shot_id"`
	StartSec     float64  `json:"start_sec" yaml:"start_sec"`
	EndSec       float64  `json:"end_sec" yaml:"end_sec"`
	StartHMS     string   `json:"start_hms" yaml:"start_hms"`
	EndHMS       string   `json:"end_hms" yaml:"end_hms"`
	DurationSec  float64  `json:"duration_sec" yaml:"duration_sec"`
	QualityScore *float64 `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`
	KeyframeKey  string   `json:"keyframe_key,omitempty" yaml:"keyframe_key,omitempty"`
}

// BuildManifest assembles the manifest for a finished summary
func BuildManifest(s *Summary, generatedAt time.Time) *Manifest {
	byID := make(map[int]Shot, len(s.Shots))
	for _, shot := range s.Shots {
		byID[shot.ID] = shot
	}

	m := &Manifest{
		VideoID:        s.VideoID,
		SourceDuration: round(s.SourceDuration, 3),
		GeneratedAt:    generatedAt,
		TotalSegments:  len(s.Segments),
		Params:         s.Params,
		Segments:       make([]ManifestSegment, 0, len(s.Segments)),
	}

	var total float64
	for i, seg := range s.Segments {
		total += seg.Duration()
		shot := byID[seg.ShotID]
		m.Segments = append(m.Segments, ManifestSegment{
			Index:        i,
			ShotID:       seg.ShotID,
			StartSec:     round(seg.StartSec, 3),
			EndSec:       round(seg.EndSec, 3),
			StartHMS:     SecondsToHMS(seg.StartSec),
			EndHMS:       SecondsToHMS(seg.EndSec),
			DurationSec:  round(seg.Duration(), 3),
			QualityScore: shot.QualityScore,
			KeyframeKey:  shot.KeyframeKey,
		})
	}

	m.SummaryDurationSec = round(total, 3)
	if s.SourceDuration > 0 {
		m.CompressionRatio = round(total/s.SourceDuration, 4)
	}
	return m
}

// SecondsToHMS formats seconds as HH:MM:SS
func SecondsToHMS(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
