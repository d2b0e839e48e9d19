package shotdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

func makeShots(n int, secs float64) []models.Shot {
	shots := make([]models.Shot, n)
	for i := range shots {
		shots[i] = models.Shot{
			ID:       i,
			StartSec: float64(i) * secs,
			EndSec:   float64(i+1) * secs,
		}
	}
	return shots
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name        string
		shots       int
		secsPerShot float64
		maxDuration float64
		wantKept    int
	}{
		{"thirty shots into sixty seconds", 30, 2.5, 60, 24},
		{"budget covers everything", 10, 2, 20, 10},
		{"no budget keeps all", 10, 2, 0, 10},
		{"tiny budget keeps one", 10, 2.5, 1, 1},
		{"fractional budget floors", 10, 2, 7.9, 3},
		{"no shots", 0, 2, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := makeShots(tt.shots, 4)
			got, err := Trim(in, tt.secsPerShot, tt.maxDuration)
			require.NoError(t, err)
			require.Len(t, got, tt.wantKept)
			for i, s := range got {
				assert.Equal(t, i, s.ID, "shots keep their original order")
			}
		})
	}
}

func TestTrim_DoesNotAlias(t *testing.T) {
	in := makeShots(5, 1)
	got, err := Trim(in, 1, 0)
	require.NoError(t, err)

	got[0].ID = 99
	assert.Equal(t, 0, in[0].ID)
}

func TestTrim_InvalidSecsPerShot(t *testing.T) {
	_, err := Trim(makeShots(5, 1), 0, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPlanSegments(t *testing.T) {
	shots := []models.Shot{
		{ID: 0, StartSec: 0, EndSec: 1},
		{ID: 1, StartSec: 1, EndSec: 4},
		{ID: 2, StartSec: 4, EndSec: 7},
	}

	t.Run("capped by shot and budget", func(t *testing.T) {
		segs := PlanSegments(shots, 2, 4)
		require.Len(t, segs, 3)
		assert.Equal(t, models.Segment{ShotID: 0, StartSec: 0, EndSec: 1}, segs[0])
		assert.Equal(t, models.Segment{ShotID: 1, StartSec: 1, EndSec: 3}, segs[1])
		assert.Equal(t, models.Segment{ShotID: 2, StartSec: 4, EndSec: 5}, segs[2])

		var total float64
		for _, s := range segs {
			total += s.Duration()
		}
		assert.InDelta(t, 4.0, total, 1e-12)
	})

	t.Run("no budget", func(t *testing.T) {
		segs := PlanSegments(shots, 2, 0)
		require.Len(t, segs, 3)
		assert.Equal(t, 6.0, segs[2].EndSec)
	})

	t.Run("zero length shots skipped", func(t *testing.T) {
		segs := PlanSegments([]models.Shot{{ID: 0}, {ID: 1, StartSec: 0, EndSec: 2}}, 1, 0)
		require.Len(t, segs, 1)
		assert.Equal(t, 1, segs[0].ShotID)
	})

	t.Run("non-positive secs per shot", func(t *testing.T) {
		assert.Empty(t, PlanSegments(shots, 0, 10))
	})
}
