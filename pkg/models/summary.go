package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"image"
	"time"
)

// Frame is one decoded, sampled frame handed to the detection engine.
type Frame struct {
	// Index is the frame's position in the source video.
	Index     int
	Timestamp float64
	Image     image.Image
}

// Shot is one detected segment of the sampled timeline. Start/End are
// sampled-frame indices; consecutive shots share their boundary index.
type Shot struct {
	ID                  int      `json:"shot_id"`
	StartFrame          int      `json:"start_frame"`
	EndFrame            int      `json:"end_frame"`
	DurationFrames      int      `json:"duration_frames"`
	SourceStartFrame    int      `json:"source_start_frame"`
	SourceEndFrame      int      `json:"source_end_frame"`
	StartSec            float64  `json:"start_sec"`
	EndSec              float64  `json:"end_sec"`
	DurationSec         float64  `json:"duration_sec"`
	KeyframeIndex       int      `json:"keyframe_index"`
	KeyframeSourceIndex int      `json:"keyframe_source_index"`
	KeyframeSec         float64  `json:"keyframe_sec"`
	QualityScore        *float64 `json:"quality_score,omitempty"`
	KeyframeKey         string   `json:"keyframe_key,omitempty"`
}

// Segment is a clip of the summary: a prefix of one selected shot.
type Segment struct {
	ShotID   int     `json:"shot_id"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.EndSec - s.StartSec
}

// Shots is a JSON-backed shot list for database storage
type Shots []Shot

// Value implements driver.Valuer for database storage
func (s Shots) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]Shot{})
	}
	return json.Marshal([]Shot(s))
}

// Scan implements sql.Scanner for database retrieval
func (s *Shots) Scan(value interface{}) error {
	if value == nil {
		*s = Shots{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported shots column type %T", value)
	}
}

// Summary is the full record set produced for one video: every detected
// shot, the shots kept after trimming, and the curves behind them.
type Summary struct {
	ID             string          `json:"id" db:"id"`
	VideoID        string          `json:"video_id" db:"video_id"`
	JobID          string          `json:"job_id,omitempty" db:"job_id"`
	FramesSampled  int             `json:"frames_sampled" db:"frames_sampled"`
	SourceDuration float64         `json:"source_duration" db:"source_duration"`
	Threshold      float64         `json:"threshold" db:"threshold"`
	MinShotFrames  int             `json:"min_shot_frames" db:"min_shot_frames"`
	Boundaries     []int           `json:"boundaries" db:"boundaries"`
	RawCurve       []float64       `json:"raw_curve" db:"raw_curve"`
	SmoothedCurve  []float64       `json:"smoothed_curve" db:"smoothed_curve"`
	Shots          Shots           `json:"shots" db:"shots"`
	Selected       Shots           `json:"selected" db:"selected"`
	Segments       []Segment       `json:"segments" db:"segments"`
	Params         DetectionParams `json:"params" db:"params"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// SummaryDuration returns the total length of the planned clips
func (s *Summary) SummaryDuration() float64 {
	var total float64
	for _, seg := range s.Segments {
		total += seg.Duration()
	}
	return total
}
