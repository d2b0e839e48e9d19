package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with the fields the summarizer attaches everywhere
type Logger struct {
	logger zerolog.Logger
}

// Config holds logging configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, file path
	TimeFormat string
}

// NewLogger builds a logger from cfg and installs it as the global zerolog
// logger.
func NewLogger(cfg Config) (*Logger, error) {
	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	if cfg.Format == "console" {
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.Kitchen
		}
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: timeFormat}
	}

	logger := New(output, cfg.Level)
	log.Logger = logger.logger
	return logger, nil
}

// New builds a JSON logger writing to w. Unknown levels fall back to info.
func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return &Logger{logger: zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "vidsum").
		Logger()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func (l *Logger) with(ctx zerolog.Context) *Logger {
	return &Logger{logger: ctx.Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(l.logger.With().Interface(key, value))
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.with(l.logger.With().Fields(fields))
}

// WithError attaches err under the "error" key
func (l *Logger) WithError(err error) *Logger {
	return l.with(l.logger.With().Err(err))
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(l.logger.With().Str("request_id", requestID))
}

func (l *Logger) WithJobID(jobID string) *Logger {
	return l.with(l.logger.With().Str("job_id", jobID))
}

func (l *Logger) WithVideoID(videoID string) *Logger {
	return l.with(l.logger.With().Str("video_id", videoID))
}

func (l *Logger) WithWorkerID(workerID string) *Logger {
	return l.with(l.logger.With().Str("worker_id", workerID))
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// Fatalf logs and exits the process
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// LogHTTPRequest logs one served request
func (l *Logger) LogHTTPRequest(method, path, clientIP string, statusCode int, duration time.Duration) {
	evt := l.logger.Info()
	if statusCode >= 500 {
		evt = l.logger.Error()
	}

	evt.Str("method", method).
		Str("path", path).
		Str("client_ip", clientIP).
		Int("status_code", statusCode).
		Dur("duration_ms", duration).
		Msg("HTTP request")
}

// LogJobEvent logs a job lifecycle transition
func (l *Logger) LogJobEvent(jobID, event, status string, details map[string]interface{}) {
	l.logger.Info().
		Str("job_id", jobID).
		Str("event", event).
		Str("status", status).
		Fields(details).
		Msg("Job event")
}

// LogStage logs the end of one summarization stage. Failed stages log at
// error level.
func (l *Logger) LogStage(jobID, stage string, duration time.Duration, err error) {
	evt := l.logger.Debug()
	if err != nil {
		evt = l.logger.Error().Err(err)
	}

	evt.Str("job_id", jobID).
		Str("stage", stage).
		Dur("duration_ms", duration).
		Msg("Stage finished")
}

// LogSamplingProgress logs frame sampling progress
func (l *Logger) LogSamplingProgress(jobID string, framesSampled int, progress float64) {
	l.logger.Info().
		Str("job_id", jobID).
		Int("frames_sampled", framesSampled).
		Float64("progress", progress).
		Msg("Sampling progress")
}

// LogDetection logs the outcome of one shot detection run
func (l *Logger) LogDetection(jobID string, frames, shots, selected int, threshold float64, duration time.Duration) {
	l.logger.Info().
		Str("job_id", jobID).
		Int("frames", frames).
		Int("shots", shots).
		Int("selected", selected).
		Float64("threshold", threshold).
		Dur("duration_ms", duration).
		Msg("Shot detection")
}
