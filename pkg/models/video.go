package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Video is a source video registered for summarization
type Video struct {
	ID         string    `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	StorageKey string    `json:"storage_key" db:"storage_key"`
	Size       int64     `json:"size" db:"size"`
	Duration   float64   `json:"duration" db:"duration"`
	Width      int       `json:"width" db:"width"`
	Height     int       `json:"height" db:"height"`
	Codec      string    `json:"codec" db:"codec"`
	FrameRate  float64   `json:"frame_rate" db:"frame_rate"`
	FrameCount int64     `json:"frame_count" db:"frame_count"`
	Metadata   Metadata  `json:"metadata" db:"metadata"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Metadata holds free-form probe metadata
type Metadata map[string]interface{}

// Value implements driver.Valuer for database storage
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return nil
	}
}

// VideoStatus constants
const (
	VideoStatusUploaded    = "uploaded"
	VideoStatusSummarizing = "summarizing"
	VideoStatusSummarized  = "summarized"
	VideoStatusFailed      = "failed"
)
