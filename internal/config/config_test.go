package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/shotdetect"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

database:
  host: "testdb"
  port: 5432
  user: "testuser"
  password: "testpass"
  dbname: "testdb"

detection:
  thresholdPercentile: 90
  keyframePolicy: sharpest
  maxDuration: 60
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "testdb", cfg.Database.Host)

	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "ffmpeg", cfg.Summarizer.FFmpegPath)
	assert.Equal(t, time.Hour, cfg.Summarizer.CacheTTL)
	assert.Equal(t, 5, cfg.Detection.SmoothWindow)

	assert.Equal(t, 90.0, cfg.Detection.ThresholdPercentile)
	assert.Equal(t, "sharpest", cfg.Detection.KeyframePolicy)
	assert.Equal(t, 60.0, cfg.Detection.MaxDuration)
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidDetection(t *testing.T) {
	path := writeConfig(t, `
detection:
  colorWeight: 0.9
  edgeWeight: 0.9
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, shotdetect.ErrInvalidConfig)
}

func TestDetectionConfigParams(t *testing.T) {
	d := DetectionConfig{
		SampleFPS:           4,
		ThresholdPercentile: 85,
		MinShotSeconds:      2,
		SmoothWindow:        3,
		KeyframePolicy:      "sharpest",
		ColorWeight:         0.5,
		EdgeWeight:          0.5,
		ResizeWidth:         160,
		EdgeThreshold:       80,
		SharpnessCeiling:    500,
		SecsPerShot:         2,
		MaxDuration:         30,
		Workers:             3,
	}

	p, err := d.Params()
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.SampleFPS)
	assert.Equal(t, 85.0, p.ThresholdPercentile)
	assert.Equal(t, shotdetect.PolicySharpest, p.KeyframePolicy)
	assert.Equal(t, shotdetect.Weights{Color: 0.5, Edge: 0.5}, p.Weights)
	assert.Equal(t, 160, p.Features.ResizeWidth)
	assert.Equal(t, 500.0, p.Sharpness.Ceiling)
	assert.Equal(t, 3, p.Workers)

	d.KeyframePolicy = "brightest"
	_, err = d.Params()
	assert.ErrorIs(t, err, shotdetect.ErrInvalidConfig)
}
