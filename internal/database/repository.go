package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordDatabaseOperation(operation, metrics.Status(*err), time.Since(start).Seconds())
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Videos

const videoColumns = `id, filename, storage_key, size, duration, width, height, codec,
		       frame_rate, frame_count, metadata, status, created_at, updated_at`

func scanVideo(row pgx.Row) (*models.Video, error) {
	var video models.Video
	err := row.Scan(
		&video.ID, &video.Filename, &video.StorageKey, &video.Size, &video.Duration,
		&video.Width, &video.Height, &video.Codec, &video.FrameRate, &video.FrameCount,
		&video.Metadata, &video.Status, &video.CreatedAt, &video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// CreateVideo creates a new video record
func (r *Repository) CreateVideo(ctx context.Context, video *models.Video) (err error) {
	defer observe("create_video", time.Now(), &err)

	if video.ID == "" {
		video.ID = uuid.New().String()
	}
	if video.Metadata == nil {
		video.Metadata = models.Metadata{}
	}

	query := `
		INSERT INTO videos (id, filename, storage_key, size, duration, width, height, codec,
		                    frame_rate, frame_count, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		video.ID, video.Filename, video.StorageKey, video.Size, video.Duration,
		video.Width, video.Height, video.Codec, video.FrameRate, video.FrameCount,
		video.Metadata, video.Status,
	).Scan(&video.CreatedAt, &video.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

// GetVideo retrieves a video by ID
func (r *Repository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	video, err := scanVideo(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", notFound(err, "video "+id))
	}

	return video, nil
}

// UpdateVideoStatus moves a video to a new lifecycle status
func (r *Repository) UpdateVideoStatus(ctx context.Context, id, status string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE videos SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update video status: video %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListVideos retrieves all videos with pagination
func (r *Repository) ListVideos(ctx context.Context, limit, offset int) ([]*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var videos []*models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	return videos, rows.Err()
}

// Jobs

const jobColumns = `id, video_id, status, priority, progress, error_msg, retry_count,
		       worker_id, callback_url, params, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.VideoID, &job.Status, &job.Priority, &job.Progress,
		&job.ErrorMsg, &job.RetryCount, &job.WorkerID, &job.CallbackURL, &job.Params,
		&job.StartedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob creates a new job record
func (r *Repository) CreateJob(ctx context.Context, job *models.Job) (err error) {
	defer observe("create_job", time.Now(), &err)

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO jobs (id, video_id, status, priority, progress, retry_count, callback_url, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		job.ID, job.VideoID, job.Status, job.Priority, job.Progress, job.RetryCount,
		job.CallbackURL, job.Params,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", notFound(err, "job "+id))
	}

	return job, nil
}

// UpdateJob updates a job record
func (r *Repository) UpdateJob(ctx context.Context, job *models.Job) (err error) {
	defer observe("update_job", time.Now(), &err)

	query := `
		UPDATE jobs
		SET status = $2, priority = $3, progress = $4, error_msg = $5, retry_count = $6,
		    worker_id = $7, started_at = $8, completed_at = $9, updated_at = NOW()
		WHERE id = $1
	`

	_, err = r.db.Pool.Exec(ctx, query,
		job.ID, job.Status, job.Priority, job.Progress, job.ErrorMsg,
		job.RetryCount, job.WorkerID, job.StartedAt, job.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return nil
}

// UpdateJobProgress records a job's progress percentage
func (r *Repository) UpdateJobProgress(ctx context.Context, id string, progress float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE jobs SET progress = $2, updated_at = NOW() WHERE id = $1`, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// GetJobsByVideoID retrieves all jobs for a video
func (r *Repository) GetJobsByVideoID(ctx context.Context, videoID string) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE video_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// Summaries

const summaryColumns = `id, video_id, job_id, frames_sampled, source_duration, threshold,
		       min_shot_frames, boundaries, raw_curve, smoothed_curve, shots, selected,
		       segments, params, created_at`

func scanSummary(row pgx.Row) (*models.Summary, error) {
	var s models.Summary
	var jobID *string
	err := row.Scan(
		&s.ID, &s.VideoID, &jobID, &s.FramesSampled, &s.SourceDuration, &s.Threshold,
		&s.MinShotFrames, &s.Boundaries, &s.RawCurve, &s.SmoothedCurve, &s.Shots, &s.Selected,
		&s.Segments, &s.Params, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if jobID != nil {
		s.JobID = *jobID
	}
	return &s, nil
}

func insertSummary(ctx context.Context, tx pgx.Tx, s *models.Summary) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	var jobID *string
	if s.JobID != "" {
		jobID = &s.JobID
	}

	query := `
		INSERT INTO summaries (id, video_id, job_id, frames_sampled, source_duration, threshold,
		                       min_shot_frames, boundaries, raw_curve, smoothed_curve, shots,
		                       selected, segments, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	return tx.QueryRow(ctx, query,
		s.ID, s.VideoID, jobID, s.FramesSampled, s.SourceDuration, s.Threshold,
		s.MinShotFrames, s.Boundaries, s.RawCurve, s.SmoothedCurve, s.Shots,
		s.Selected, s.Segments, s.Params,
	).Scan(&s.CreatedAt)
}

// CompleteJob stores the summary and marks the job completed and the video
// summarized in one transaction.
func (r *Repository) CompleteJob(ctx context.Context, job *models.Job, s *models.Summary) (err error) {
	defer observe("complete_job", time.Now(), &err)

	now := time.Now()
	err = pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		if err := insertSummary(ctx, tx, s); err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}

		_, err := tx.Exec(ctx, `
			UPDATE jobs
			SET status = $2, progress = 100, error_msg = '', completed_at = $3, updated_at = NOW()
			WHERE id = $1`, job.ID, models.JobStatusCompleted, now)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE videos SET status = $2, updated_at = NOW() WHERE id = $1`,
			s.VideoID, models.VideoStatusSummarized)
		if err != nil {
			return fmt.Errorf("update video: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.ErrorMsg = ""
	job.CompletedAt = &now
	return nil
}

// GetSummary retrieves a summary by ID
func (r *Repository) GetSummary(ctx context.Context, id string) (*models.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries WHERE id = $1`

	s, err := scanSummary(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", notFound(err, "summary "+id))
	}
	return s, nil
}

// GetLatestSummary retrieves the most recent summary of a video
func (r *Repository) GetLatestSummary(ctx context.Context, videoID string) (*models.Summary, error) {
	query := `SELECT ` + summaryColumns + `
		FROM summaries WHERE video_id = $1 ORDER BY created_at DESC LIMIT 1`

	s, err := scanSummary(r.db.Pool.QueryRow(ctx, query, videoID))
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", notFound(err, "summary of video "+videoID))
	}
	return s, nil
}
