package shotdetect

import (
	"fmt"
	"math"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// Trim keeps as many shots as fit into maxDuration at secsPerShot each,
// preferring the earliest shots. Shots are never re-ranked. A maxDuration
// of zero or one that already covers every shot keeps them all.
func Trim(shots []models.Shot, secsPerShot, maxDuration float64) ([]models.Shot, error) {
	out := make([]models.Shot, len(shots))
	copy(out, shots)

	if maxDuration <= 0 || len(shots) == 0 {
		return out, nil
	}
	if secsPerShot <= 0 {
		return nil, fmt.Errorf("%w: secs per shot must be positive, got %g", ErrInvalidConfig, secsPerShot)
	}
	if maxDuration >= float64(len(shots))*secsPerShot {
		return out, nil
	}

	keep := int(math.Floor(maxDuration / secsPerShot))
	if keep < 1 {
		keep = 1
	}
	return out[:keep], nil
}

// PlanSegments lays out the summary clips: secsPerShot from the start of
// each shot, cut short by the shot's end and by the remaining maxDuration
// budget. Zero-length clips are skipped.
func PlanSegments(shots []models.Shot, secsPerShot, maxDuration float64) []models.Segment {
	segments := make([]models.Segment, 0, len(shots))
	if secsPerShot <= 0 {
		return segments
	}

	budget := math.Inf(1)
	if maxDuration > 0 {
		budget = maxDuration
	}

	for _, shot := range shots {
		if budget <= 0 {
			break
		}
		length := math.Min(secsPerShot, shot.EndSec-shot.StartSec)
		length = math.Min(length, budget)
		if length <= 0 {
			continue
		}
		segments = append(segments, models.Segment{
			ShotID:   shot.ID,
			StartSec: shot.StartSec,
			EndSec:   shot.StartSec + length,
		})
		budget -= length
	}
	return segments
}
