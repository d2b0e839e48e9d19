package sampler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
}

// ProbeVideo extracts metadata from a video file
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	return ParseProbe(stdout.Bytes())
}

// ParseProbe decodes ffprobe JSON output
func ParseProbe(data []byte) (*VideoMetadata, error) {
	var metadata VideoMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &metadata, nil
}

// VideoInfo converts probe metadata into the video record fields. It fails
// when the file has no video stream.
func (m *VideoMetadata) VideoInfo() (*models.Video, error) {
	video := &models.Video{
		Filename: m.Format.Filename,
		Metadata: models.Metadata{"format": m.Format.FormatName},
	}

	// Parse duration
	if duration, err := strconv.ParseFloat(m.Format.Duration, 64); err == nil {
		video.Duration = duration
	}

	// Parse size
	if size, err := strconv.ParseInt(m.Format.Size, 10, 64); err == nil {
		video.Size = size
	}

	// Parse bitrate
	if bitrate, err := strconv.ParseInt(m.Format.BitRate, 10, 64); err == nil {
		video.Metadata["bit_rate"] = bitrate
	}

	// Extract video stream information
	for _, stream := range m.Streams {
		if stream.CodecType != "video" {
			continue
		}

		video.Width = stream.Width
		video.Height = stream.Height
		video.Codec = stream.CodecName

		video.FrameRate = ParseFrameRate(stream.AvgFrameRate)
		if video.FrameRate == 0 {
			video.FrameRate = ParseFrameRate(stream.FrameRate)
		}

		if n, err := strconv.ParseInt(stream.NbFrames, 10, 64); err == nil {
			video.FrameCount = n
		} else if video.FrameRate > 0 {
			video.FrameCount = int64(video.Duration * video.FrameRate)
		}
		return video, nil
	}

	return nil, fmt.Errorf("no video stream in %s", m.Format.Filename)
}

// ExtractVideoInfo probes a file and returns its video record fields
func (f *FFmpeg) ExtractVideoInfo(ctx context.Context, inputPath string) (*models.Video, error) {
	metadata, err := f.ProbeVideo(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return metadata.VideoInfo()
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25".
// Unparseable or zero-denominator rates yield 0.
func ParseFrameRate(rate string) float64 {
	if rate == "" {
		return 0
	}

	parts := strings.Split(rate, "/")
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	if len(parts) != 2 {
		return 0
	}

	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// ProgressCallback is called with progress updates
type ProgressCallback func(progress float64)

// run executes ffmpeg with -progress on stdout, reporting the share of
// totalDuration processed so far.
func (f *FFmpeg) run(ctx context.Context, args []string, totalDuration float64, progressCB ProgressCallback) error {
	args = append([]string{"-progress", "pipe:1", "-nostats"}, args...)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Parse progress
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if progress, ok := parseProgress(scanner.Text(), totalDuration); ok && progressCB != nil {
			progressCB(progress)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, tail(stderrBuf.String(), 2048))
	}

	// Final progress update
	if progressCB != nil {
		progressCB(100)
	}

	return nil
}

// parseProgress reads an out_time_us/out_time_ms line of ffmpeg -progress
// output. Both keys carry microseconds.
func parseProgress(line string, totalDuration float64) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || (key != "out_time_us" && key != "out_time_ms") || totalDuration <= 0 {
		return 0, false
	}

	us, err := strconv.ParseFloat(value, 64)
	if err != nil || us < 0 {
		return 0, false
	}

	progress := us / 1e6 / totalDuration * 100
	if progress > 100 {
		progress = 100
	}
	return progress, true
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
