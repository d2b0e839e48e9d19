package summarizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/cache"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/config"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/database"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/queue"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/sampler"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/shotdetect"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/storage"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// ErrVideoBusy is returned when another worker holds the video's lock
var ErrVideoBusy = errors.New("video is being summarized by another worker")

// Progress checkpoints reported at stage boundaries
const (
	progressSampled  = 40.0
	progressDecoded  = 50.0
	progressDetected = 75.0
	progressUploaded = 90.0

	maxParallelUploads = 8
)

// Repository is the persistence the service needs
type Repository interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	UpdateJobProgress(ctx context.Context, id string, progress float64) error
	UpdateVideoStatus(ctx context.Context, id, status string) error
	CompleteJob(ctx context.Context, job *models.Job, s *models.Summary) error
}

// ObjectStore holds source videos and summary artifacts
type ObjectStore interface {
	DownloadFile(ctx context.Context, objectName, filePath string) error
	UploadKeyframe(ctx context.Context, objectName string, img image.Image, quality int) error
	UploadJSON(ctx context.Context, objectName string, v interface{}) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Cache holds locks, progress and finished summaries
type Cache interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (*cache.Lock, error)
	ReleaseLock(ctx context.Context, lock *cache.Lock) error
	SetJobProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error
	SetSummary(ctx context.Context, summary *models.Summary, ttl time.Duration) error
	InvalidateSummaries(ctx context.Context, videoID string) error
}

// FrameSampler turns a video file into sampled PNG frames
type FrameSampler interface {
	SampleFrames(ctx context.Context, inputPath, outDir string, video *models.Video, opts sampler.Options, progressCB sampler.ProgressCallback) (*sampler.Sampling, error)
}

// Notifier delivers job callbacks
type Notifier interface {
	NotifyJobCompleted(ctx context.Context, job *models.Job, manifest *models.Manifest) error
	NotifyJobFailed(ctx context.Context, job *models.Job) error
}

// Service orchestrates summarization jobs
type Service struct {
	repo       Repository
	store      ObjectStore
	cache      Cache
	sampler    FrameSampler
	notifier   Notifier
	logger     *logging.Logger
	cfg        config.SummarizerConfig
	params     shotdetect.Params
	maxRetries int
	workerID   string
	now        func() time.Time
}

// Deps bundles the collaborators of a Service
type Deps struct {
	Repo     Repository
	Store    ObjectStore
	Cache    Cache
	Sampler  FrameSampler
	Notifier Notifier
	Logger   *logging.Logger
}

// NewService creates a summarizer. params are the validated defaults that
// job overrides are applied to; maxRetries mirrors the queue's limit so the
// final attempt marks the job failed.
func NewService(cfg config.SummarizerConfig, params shotdetect.Params, maxRetries int, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &Service{
		repo:       deps.Repo,
		store:      deps.Store,
		cache:      deps.Cache,
		sampler:    deps.Sampler,
		notifier:   deps.Notifier,
		logger:     logger,
		cfg:        cfg,
		params:     params,
		maxRetries: maxRetries,
		workerID:   uuid.New().String(),
		now:        time.Now,
	}
}

// ProcessJob summarizes one video: sample, detect, upload keyframes and
// manifest, persist and cache the summary, then notify.
func (s *Service) ProcessJob(ctx context.Context, job *models.Job) (err error) {
	span, ctx := tracing.StartSpan(ctx, "summarize")
	tracing.SetTag(span, "job.id", job.ID)
	tracing.SetTag(span, "video.id", job.VideoID)
	defer func() {
		tracing.LogError(span, err)
		tracing.FinishSpan(span)
	}()

	logger := s.logger.WithWorkerID(s.workerID).WithJobID(job.ID).WithVideoID(job.VideoID)

	lock, err := s.cache.AcquireLock(ctx, "video:"+job.VideoID, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire video lock: %w", err)
	}
	if lock == nil {
		return ErrVideoBusy
	}
	defer func() {
		if releaseErr := s.cache.ReleaseLock(context.WithoutCancel(ctx), lock); releaseErr != nil {
			logger.WithError(releaseErr).Warn("Failed to release video lock")
		}
	}()

	start := s.now()
	metrics.JobsInProgress.Inc()
	defer metrics.JobsInProgress.Dec()

	// Update job status to processing
	job.Status = models.JobStatusProcessing
	job.WorkerID = s.workerID
	job.StartedAt = &start
	job.Progress = 0
	job.ErrorMsg = ""

	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	logger.LogJobEvent(job.ID, "started", job.Status, map[string]interface{}{"attempt": job.RetryCount + 1})

	summary, manifest, err := s.summarize(ctx, job, logger)
	if err != nil {
		return s.failJob(ctx, job, err, logger)
	}

	// Update job as completed
	persistStart := s.now()
	if err := s.repo.CompleteJob(ctx, job, summary); err != nil {
		return s.failJob(ctx, job, fmt.Errorf("failed to store summary: %w", err), logger)
	}
	metrics.RecordStage("persist", time.Since(persistStart).Seconds())

	s.cacheSummary(ctx, job, summary, logger)

	if err := s.notifier.NotifyJobCompleted(ctx, job, manifest); err != nil {
		logger.WithError(err).Warn("Completion webhook failed")
	}

	duration := s.now().Sub(start)
	metrics.RecordJobCompleted(models.JobStatusCompleted, policyOf(job), duration.Seconds())
	logger.LogJobEvent(job.ID, "completed", job.Status, map[string]interface{}{
		"shots":       len(summary.Shots),
		"selected":    len(summary.Selected),
		"duration_ms": duration.Milliseconds(),
	})

	return nil
}

// summarize runs every stage up to, but not including, persistence
func (s *Service) summarize(ctx context.Context, job *models.Job, logger *logging.Logger) (*models.Summary, *models.Manifest, error) {
	video, err := s.repo.GetVideo(ctx, job.VideoID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, queue.Permanent(err)
		}
		return nil, nil, fmt.Errorf("failed to get video: %w", err)
	}

	params, err := shotdetect.ParamsFrom(s.params, job.Params)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.UpdateVideoStatus(ctx, video.ID, models.VideoStatusSummarizing); err != nil {
		return nil, nil, fmt.Errorf("failed to update video status: %w", err)
	}

	// Create temporary directory
	tempDir := filepath.Join(s.cfg.TempDir, job.ID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	// Download source video
	inputPath := filepath.Join(tempDir, "source"+filepath.Ext(video.StorageKey))
	err = s.stage(ctx, job.ID, "download", func(ctx context.Context) error {
		return s.store.DownloadFile(ctx, video.StorageKey, inputPath)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download video: %w", err)
	}

	var sampling *sampler.Sampling
	err = s.stage(ctx, job.ID, "sample", func(ctx context.Context) error {
		opts := sampler.Options{SampleFPS: params.SampleFPS, MaxFrames: s.cfg.MaxFrames}
		sampling, err = s.sampler.SampleFrames(ctx, inputPath, filepath.Join(tempDir, "frames"), video, opts, func(p float64) {
			s.setProgress(ctx, job, p*progressSampled/100, false)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, sampler.ErrNoFrames) {
			err = queue.Permanent(err)
		}
		return nil, nil, fmt.Errorf("failed to sample frames: %w", err)
	}
	s.setProgress(ctx, job, progressSampled, true)
	logger.LogSamplingProgress(job.ID, sampling.Count, progressSampled)

	var frames []models.Frame
	err = s.stage(ctx, job.ID, "decode", func(ctx context.Context) error {
		frames, err = sampling.LoadFrames(ctx)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode frames: %w", err)
	}
	s.setProgress(ctx, job, progressDecoded, true)

	var result *shotdetect.Result
	detectStart := s.now()
	err = s.stage(ctx, job.ID, "detect", func(context.Context) error {
		result, err = shotdetect.Run(frames, params)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("shot detection failed: %w", err)
	}
	s.setProgress(ctx, job, progressDetected, true)

	sourceDuration := video.Duration
	if sourceDuration <= 0 {
		sourceDuration = frames[len(frames)-1].Timestamp
	}

	summary := result.Summary(video.ID, sourceDuration, job.Params)
	summary.ID = uuid.New().String()
	summary.JobID = job.ID

	logger.LogDetection(job.ID, len(frames), len(summary.Shots), len(summary.Selected), summary.Threshold, s.now().Sub(detectStart))
	metrics.RecordDetection(len(frames), len(summary.Shots), sourceDuration, summary.SummaryDuration())

	var manifest *models.Manifest
	err = s.stage(ctx, job.ID, "upload", func(ctx context.Context) error {
		if err := s.uploadKeyframes(ctx, job, summary, frames); err != nil {
			return err
		}
		manifest = models.BuildManifest(summary, s.now().UTC())
		if err := s.store.UploadJSON(ctx, storage.ManifestKey(video.ID, job.ID), manifest); err != nil {
			return err
		}
		return s.store.UploadJSON(ctx, storage.SummaryKey(video.ID, job.ID), summary)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upload summary artifacts: %w", err)
	}
	s.setProgress(ctx, job, progressUploaded, true)

	return summary, manifest, nil
}

// uploadKeyframes encodes each shot's keyframe on a bounded pool and
// records its object key on both the shot and selected lists.
func (s *Service) uploadKeyframes(ctx context.Context, job *models.Job, summary *models.Summary, frames []models.Frame) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	sem := make(chan struct{}, maxParallelUploads)

	for i := range summary.Shots {
		shot := &summary.Shots[i]
		if shot.KeyframeIndex < 0 || shot.KeyframeIndex >= len(frames) {
			return fmt.Errorf("shot %d keyframe %d out of range", shot.ID, shot.KeyframeIndex)
		}
		shot.KeyframeKey = storage.KeyframeKey(summary.VideoID, job.ID, shot.ID)

		wg.Add(1)
		go func(key string, img image.Image) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := s.store.UploadKeyframe(ctx, key, img, s.cfg.KeyframeQuality); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(shot.KeyframeKey, frames[shot.KeyframeIndex].Image)
	}

	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	keys := make(map[int]string, len(summary.Shots))
	for _, shot := range summary.Shots {
		keys[shot.ID] = shot.KeyframeKey
	}
	for i := range summary.Selected {
		summary.Selected[i].KeyframeKey = keys[summary.Selected[i].ID]
	}
	return nil
}

// stage runs fn inside a tracing span and records its duration
func (s *Service) stage(ctx context.Context, jobID, name string, fn func(context.Context) error) error {
	span, ctx := tracing.StartStage(ctx, jobID, name)
	defer tracing.FinishSpan(span)

	start := s.now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.RecordStage(name, elapsed.Seconds())
	s.logger.LogStage(jobID, name, elapsed, err)
	tracing.LogError(span, err)
	return err
}

// setProgress publishes progress to the cache; checkpoints are also
// written to the database.
func (s *Service) setProgress(ctx context.Context, job *models.Job, progress float64, checkpoint bool) {
	job.Progress = progress
	if err := s.cache.SetJobProgress(ctx, job.ID, progress, s.cfg.CacheTTL); err != nil {
		s.logger.WithJobID(job.ID).WithError(err).Debug("Failed to cache job progress")
	}
	if checkpoint {
		if err := s.repo.UpdateJobProgress(ctx, job.ID, progress); err != nil {
			s.logger.WithJobID(job.ID).WithError(err).Warn("Failed to store job progress")
		}
	}
}

func (s *Service) cacheSummary(ctx context.Context, job *models.Job, summary *models.Summary, logger *logging.Logger) {
	if err := s.cache.InvalidateSummaries(ctx, summary.VideoID); err != nil {
		logger.WithError(err).Warn("Failed to invalidate cached summaries")
	}
	if err := s.cache.SetSummary(ctx, summary, s.cfg.CacheTTL); err != nil {
		logger.WithError(err).Warn("Failed to cache summary")
	}
	if err := s.cache.SetJobProgress(ctx, job.ID, 100, s.cfg.CacheTTL); err != nil {
		logger.WithError(err).Debug("Failed to cache job progress")
	}
}

// failJob records a failed attempt. The job is marked failed when the error
// is permanent or this was the last attempt; otherwise it goes back to
// queued for the retry.
func (s *Service) failJob(ctx context.Context, job *models.Job, err error, logger *logging.Logger) error {
	// Bookkeeping must survive a cancelled job context
	ctx = context.WithoutCancel(ctx)

	final := queue.IsPermanent(err) || job.RetryCount >= s.maxRetries
	job.ErrorMsg = err.Error()
	metrics.RecordError("summarizer", errorType(err))

	if !final {
		job.Status = models.JobStatusQueued
		if updateErr := s.repo.UpdateJob(ctx, job); updateErr != nil {
			logger.WithError(updateErr).Error("Failed to update job")
		}
		logger.WithError(err).Warn("Summarization attempt failed, will retry")
		return err
	}

	job.Status = models.JobStatusFailed
	completed := s.now()
	job.CompletedAt = &completed

	if updateErr := s.repo.UpdateJob(ctx, job); updateErr != nil {
		logger.WithError(updateErr).Error("Failed to update job")
	}
	if updateErr := s.repo.UpdateVideoStatus(ctx, job.VideoID, models.VideoStatusFailed); updateErr != nil {
		logger.WithError(updateErr).Warn("Failed to update video status")
	}
	if cleanupErr := s.store.DeletePrefix(ctx, storage.SummaryPrefix(job.VideoID, job.ID)); cleanupErr != nil {
		logger.WithError(cleanupErr).Warn("Failed to remove partial summary artifacts")
	}
	if notifyErr := s.notifier.NotifyJobFailed(ctx, job); notifyErr != nil {
		logger.WithError(notifyErr).Warn("Failure webhook failed")
	}

	var duration float64
	if job.StartedAt != nil {
		duration = completed.Sub(*job.StartedAt).Seconds()
	}
	metrics.RecordJobCompleted(models.JobStatusFailed, policyOf(job), duration)
	logger.WithError(err).Error("Summarization failed")

	return err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, shotdetect.ErrInvalidFrame):
		return "invalid_frame"
	case errors.Is(err, shotdetect.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, shotdetect.ErrEmptySequence), errors.Is(err, sampler.ErrNoFrames):
		return "empty_sequence"
	case errors.Is(err, database.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

func policyOf(job *models.Job) string {
	if job.Params.KeyframePolicy != "" {
		return job.Params.KeyframePolicy
	}
	return "default"
}
