package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Job represents a summarization job for one video
type Job struct {
	ID          string          `json:"id" db:"id"`
	VideoID     string          `json:"video_id" db:"video_id"`
	Status      string          `json:"status" db:"status"`
	Priority    int             `json:"priority" db:"priority"`
	Progress    float64         `json:"progress" db:"progress"`
	ErrorMsg    string          `json:"error_msg,omitempty" db:"error_msg"`
	RetryCount  int             `json:"retry_count" db:"retry_count"`
	WorkerID    string          `json:"worker_id,omitempty" db:"worker_id"`
	CallbackURL string          `json:"callback_url,omitempty" db:"callback_url"`
	StartedAt   *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Params      DetectionParams `json:"params" db:"params"`
}

// DetectionParams holds per-job overrides of the detection defaults.
// Zero values mean "use the configured default". ThresholdPercentile and
// ColorWeight are pointers because 0 is a valid setting for both.
type DetectionParams struct {
	SampleFPS           float64  `json:"sample_fps,omitempty" yaml:"sample_fps,omitempty"`
	ThresholdPercentile *float64 `json:"threshold_percentile,omitempty" yaml:"threshold_percentile,omitempty"`
	MinShotFrames       int      `json:"min_shot_frames,omitempty" yaml:"min_shot_frames,omitempty"`
	MinShotSeconds      float64  `json:"min_shot_seconds,omitempty" yaml:"min_shot_seconds,omitempty"`
	NMSSpacing          int      `json:"nms_spacing,omitempty" yaml:"nms_spacing,omitempty"`
	SmoothWindow        int      `json:"smooth_window,omitempty" yaml:"smooth_window,omitempty"`
	KeyframePolicy      string   `json:"keyframe_policy,omitempty" yaml:"keyframe_policy,omitempty"`
	ColorWeight         *float64 `json:"color_weight,omitempty" yaml:"color_weight,omitempty"`
	SecsPerShot         float64  `json:"secs_per_shot,omitempty" yaml:"secs_per_shot,omitempty"`
	MaxDuration         float64  `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
}

// Value implements driver.Valuer for database storage
func (p DetectionParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval
func (p *DetectionParams) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return nil
	}
}

// JobStatus constants
const (
	JobStatusPending    = "pending"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// JobPriority constants
const (
	JobPriorityLow    = 0
	JobPriorityNormal = 5
	JobPriorityHigh   = 10
)
