package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// framePattern names sampled frames inside the output directory
const framePattern = "frame_%06d.png"

// ErrNoFrames is returned when sampling produced nothing to analyse
var ErrNoFrames = errors.New("no frames sampled")

// Options controls frame sampling
type Options struct {
	// SampleFPS is the target sampling rate; the source is read every
	// Step(frameRate, SampleFPS) frames.
	SampleFPS float64
	// MaxFrames caps the number of sampled frames (0 = unlimited).
	MaxFrames int
}

// Sampling describes one finished sampling run
type Sampling struct {
	Dir       string
	Step      int
	FrameRate float64
	Count     int
}

// Step is the source-frame stride for a target sampling rate: every
// round(frameRate/sampleFPS)-th frame, at least 1.
func Step(frameRate, sampleFPS float64) int {
	if frameRate <= 0 || sampleFPS <= 0 {
		return 1
	}
	step := int(math.Round(frameRate / sampleFPS))
	if step < 1 {
		return 1
	}
	return step
}

// SampleFrames decodes every Step-th frame of inputPath into PNG files in
// outDir. Frame k of the output is source frame k*Step.
func (f *FFmpeg) SampleFrames(ctx context.Context, inputPath, outDir string, video *models.Video, opts Options, progressCB ProgressCallback) (*Sampling, error) {
	if video.FrameRate <= 0 {
		return nil, fmt.Errorf("unknown frame rate for %s", inputPath)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}

	step := Step(video.FrameRate, opts.SampleFPS)

	args := []string{
		"-i", inputPath,
		"-y",
		"-an",
		"-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, step),
		"-vsync", "vfr",
		"-start_number", "0",
	}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", fmt.Sprintf("%d", opts.MaxFrames))
	}
	args = append(args, filepath.Join(outDir, framePattern))

	if err := f.run(ctx, args, video.Duration, progressCB); err != nil {
		return nil, err
	}

	files, err := frameFiles(outDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFrames
	}

	return &Sampling{Dir: outDir, Step: step, FrameRate: video.FrameRate, Count: len(files)}, nil
}

// LoadFrames decodes the sampled PNGs in order and stamps each with its
// source frame index and timestamp.
func (s *Sampling) LoadFrames(ctx context.Context) ([]models.Frame, error) {
	files, err := frameFiles(s.Dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFrames
	}

	frames := make([]models.Frame, 0, len(files))
	for k, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := decodePNG(path)
		if err != nil {
			return nil, err
		}

		index := k * s.Step
		frames = append(frames, models.Frame{
			Index:     index,
			Timestamp: float64(index) / s.FrameRate,
			Image:     img,
		})
	}
	return frames, nil
}

func frameFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	// Zero-padded names sort numerically
	sort.Strings(files)
	return files, nil
}

func decodePNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
