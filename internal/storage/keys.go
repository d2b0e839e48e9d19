package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Object layout:
//
//	videos/<video>/source<ext>
//	summaries/<video>/<job>/keyframes/shot_0001.jpg
//	summaries/<video>/<job>/manifest.json
//	summaries/<video>/<job>/summary.json

// SourceKey is where an uploaded video is stored
func SourceKey(videoID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("videos/%s/source%s", videoID, ext)
}

// SummaryPrefix holds every artifact of one summarization job
func SummaryPrefix(videoID, jobID string) string {
	return fmt.Sprintf("summaries/%s/%s/", videoID, jobID)
}

// KeyframeKey names the keyframe image of one shot
func KeyframeKey(videoID, jobID string, shotID int) string {
	return fmt.Sprintf("%skeyframes/shot_%04d.jpg", SummaryPrefix(videoID, jobID), shotID)
}

// ManifestKey names the summary manifest
func ManifestKey(videoID, jobID string) string {
	return SummaryPrefix(videoID, jobID) + "manifest.json"
}

// SummaryKey names the full summary record set
func SummaryKey(videoID, jobID string) string {
	return SummaryPrefix(videoID, jobID) + "summary.json"
}
