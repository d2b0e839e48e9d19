package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/analytics"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/database"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/shotdetect"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/storage"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// Repository is the persistence used by the handlers
type Repository interface {
	CreateVideo(ctx context.Context, video *models.Video) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ListVideos(ctx context.Context, limit, offset int) ([]*models.Video, error)
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobsByVideoID(ctx context.Context, videoID string) ([]*models.Job, error)
	GetLatestSummary(ctx context.Context, videoID string) (*models.Summary, error)
}

// ObjectStore stores uploads and signs keyframe links
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName, filePath string) error
	GetURL(ctx context.Context, objectName string) (string, error)
}

// SummaryCache fronts the summary and progress lookups
type SummaryCache interface {
	GetLatestSummary(ctx context.Context, videoID string) (*models.Summary, error)
	SetSummary(ctx context.Context, summary *models.Summary, ttl time.Duration) error
	GetJobProgress(ctx context.Context, jobID string) (float64, bool, error)
}

// JobPublisher hands jobs to the workers
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.Job) error
}

// Prober reads stream metadata from an uploaded file
type Prober interface {
	ExtractVideoInfo(ctx context.Context, inputPath string) (*models.Video, error)
}

// API holds the handler dependencies
type API struct {
	repo          Repository
	storage       ObjectStore
	cache         SummaryCache
	queue         JobPublisher
	prober        Prober
	logger        *logging.Logger
	params        shotdetect.Params
	health        func(ctx context.Context) error
	tempDir       string
	maxUploadSize int64
	maxCurveLen   int
	cacheTTL      time.Duration
}

type summarizeRequest struct {
	Params      models.DetectionParams `json:"params"`
	Priority    *int                   `json:"priority"`
	CallbackURL string                 `json:"callback_url" binding:"omitempty,url"`
}

type detectRequest struct {
	Curve        []float64 `json:"curve" binding:"required"`
	Percentile   *float64  `json:"percentile"`
	MinDuration  int       `json:"min_duration"`
	NMSSpacing   int       `json:"nms_spacing"`
	SmoothWindow int       `json:"smooth_window"`
}

const (
	// detectValueBytes bounds one JSON encoded curve value and its separator
	detectValueBytes      = 32
	// smoothing costs curve length times window
	maxDetectSmoothWindow = 1024
)

func detectBodyLimit(maxCurveLen int) int64 {
	return int64(maxCurveLen)*detectValueBytes + 4096
}

type detectResponse struct {
	SmoothedCurve []float64         `json:"smoothed_curve"`
	Threshold     float64           `json:"threshold"`
	Candidates    []int             `json:"candidates"`
	Boundaries    []int             `json:"boundaries"`
	Shots         []shotdetect.Shot `json:"shots"`
}

type summaryResponse struct {
	Summary      *models.Summary  `json:"summary"`
	Manifest     *models.Manifest `json:"manifest"`
	KeyframeURLs map[int]string   `json:"keyframe_urls,omitempty"`
}

// respondError maps an error onto an HTTP status: engine input errors are
// the caller's fault, missing rows are 404, everything else is 500.
func respondError(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case shotdetect.IsNonRetriable(err):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("%s: %v", msg, err)})
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if api.health != nil {
		if err := api.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Upload video endpoint
func (api *API) uploadVideo(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}
	if api.maxUploadSize > 0 && file.Size > api.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", api.maxUploadSize)})
		return
	}

	videoID := uuid.New().String()

	// Save to temporary location
	tempPath := filepath.Join(api.tempDir, videoID+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	ctx := c.Request.Context()

	info, err := api.prober.ExtractVideoInfo(ctx, tempPath)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to extract metadata: %v", err)})
		return
	}

	video := info
	video.ID = videoID
	video.Filename = file.Filename
	video.Size = file.Size
	video.StorageKey = storage.SourceKey(videoID, file.Filename)
	video.Status = models.VideoStatusUploaded

	if err := api.storage.UploadFile(ctx, video.StorageKey, tempPath); err != nil {
		respondError(c, err, "Failed to upload")
		return
	}

	if err := api.repo.CreateVideo(ctx, video); err != nil {
		respondError(c, err, "Failed to create video")
		return
	}

	metrics.RecordUpload(file.Size)
	api.logger.WithVideoID(video.ID).WithFields(map[string]interface{}{
		"filename": video.Filename,
		"duration": video.Duration,
		"fps":      video.FrameRate,
	}).Info("Video uploaded")

	c.JSON(http.StatusCreated, video)
}

// Get video endpoint
func (api *API) getVideo(c *gin.Context) {
	video, err := api.repo.GetVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Video not found")
		return
	}

	c.JSON(http.StatusOK, video)
}

// List videos endpoint
func (api *API) listVideos(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	videos, err := api.repo.ListVideos(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err, "Failed to list videos")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
		"limit":  limit,
		"offset": offset,
	})
}

// Create summarize job endpoint
func (api *API) createSummarizeJob(c *gin.Context) {
	videoID := c.Param("id")

	var req summarizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// Reject bad overrides before anything is queued
	if _, err := shotdetect.ParamsFrom(api.params, req.Params); err != nil {
		respondError(c, err, "Invalid detection parameters")
		return
	}

	ctx := c.Request.Context()

	if _, err := api.repo.GetVideo(ctx, videoID); err != nil {
		respondError(c, err, "Video not found")
		return
	}

	job := &models.Job{
		VideoID:     videoID,
		Status:      models.JobStatusQueued,
		Priority:    models.JobPriorityNormal,
		CallbackURL: req.CallbackURL,
		Params:      req.Params,
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}

	if err := api.repo.CreateJob(ctx, job); err != nil {
		respondError(c, err, "Failed to create job")
		return
	}

	if err := api.queue.PublishJob(ctx, job); err != nil {
		respondError(c, err, "Failed to queue job")
		return
	}

	metrics.RecordJobCreated(strconv.Itoa(job.Priority))
	api.logger.LogJobEvent(job.ID, "created", job.Status, map[string]interface{}{"video_id": videoID})

	c.JSON(http.StatusAccepted, job)
}

// Get job endpoint. Live progress from the cache wins over the stored
// checkpoint while the job is running.
func (api *API) getJob(c *gin.Context) {
	ctx := c.Request.Context()

	job, err := api.repo.GetJob(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "Job not found")
		return
	}

	if job.Status == models.JobStatusProcessing {
		progress, ok, err := api.cache.GetJobProgress(ctx, job.ID)
		if err != nil {
			api.logger.WithJobID(job.ID).WithError(err).Debug("Failed to read cached progress")
		} else if ok && progress > job.Progress {
			job.Progress = progress
		}
	}

	c.JSON(http.StatusOK, job)
}

// Get video jobs endpoint
func (api *API) getVideoJobs(c *gin.Context) {
	jobs, err := api.repo.GetJobsByVideoID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to list jobs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// latestSummary reads through the cache to the database
func (api *API) latestSummary(ctx context.Context, videoID string) (*models.Summary, error) {
	cached, err := api.cache.GetLatestSummary(ctx, videoID)
	if err != nil {
		api.logger.WithVideoID(videoID).WithError(err).Warn("Failed to read cached summary")
	}
	metrics.RecordCacheAccess("summary", cached != nil)
	if cached != nil {
		return cached, nil
	}

	summary, err := api.repo.GetLatestSummary(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if err := api.cache.SetSummary(ctx, summary, api.cacheTTL); err != nil {
		api.logger.WithVideoID(videoID).WithError(err).Warn("Failed to cache summary")
	}
	return summary, nil
}

// Get summary endpoint. ?urls=true adds presigned keyframe links.
func (api *API) getSummary(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := api.latestSummary(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err, "Summary not found")
		return
	}

	resp := summaryResponse{
		Summary:  summary,
		Manifest: models.BuildManifest(summary, summary.CreatedAt),
	}

	if c.Query("urls") == "true" {
		resp.KeyframeURLs = make(map[int]string, len(summary.Selected))
		for _, shot := range summary.Selected {
			if shot.KeyframeKey == "" {
				continue
			}
			url, err := api.storage.GetURL(ctx, shot.KeyframeKey)
			if err != nil {
				respondError(c, err, "Failed to sign keyframe URL")
				return
			}
			resp.KeyframeURLs[shot.ID] = url
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Get manifest endpoint. ?format=yaml returns the same document as YAML.
func (api *API) getManifest(c *gin.Context) {
	summary, err := api.latestSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Summary not found")
		return
	}

	manifest := models.BuildManifest(summary, summary.CreatedAt)

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, manifest)
	case "yaml", "yml":
		out, err := yaml.Marshal(manifest)
		if err != nil {
			respondError(c, err, "Failed to encode manifest")
			return
		}
		c.Data(http.StatusOK, "application/yaml", out)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or yaml"})
	}
}

// Get summary evaluation endpoint
func (api *API) getEvaluation(c *gin.Context) {
	summary, err := api.latestSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Summary not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id":   summary.VideoID,
		"summary_id": summary.ID,
		"evaluation": analytics.Evaluate(summary),
	})
}

// Detect endpoint: runs smoothing and boundary detection over a caller
// supplied distance curve. Unset options fall back to the service defaults,
// so the endpoint segments a curve the way the worker would.
func (api *API) detect(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, detectBodyLimit(api.maxCurveLen))

	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Body exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Curve) > api.maxCurveLen {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Curve exceeds %d values", api.maxCurveLen)})
		return
	}

	opts := shotdetect.DetectOptions{
		Percentile:  api.params.ThresholdPercentile,
		MinDuration: req.MinDuration,
		NMSSpacing:  req.NMSSpacing,
	}
	if req.Percentile != nil {
		opts.Percentile = *req.Percentile
	}
	if opts.MinDuration == 0 {
		opts.MinDuration = api.params.MinShotSamples(nil)
	}
	if opts.NMSSpacing == 0 {
		opts.NMSSpacing = api.params.NMSSpacing
	}
	window := req.SmoothWindow
	if window == 0 {
		window = api.params.SmoothWindow
	}
	if window > maxDetectSmoothWindow {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Smoothing window exceeds %d", maxDetectSmoothWindow)})
		return
	}

	smoothed, err := shotdetect.Smooth(req.Curve, window)
	if err != nil {
		respondError(c, err, "Invalid smoothing window")
		return
	}

	det, err := shotdetect.DetectWithOptions(smoothed, opts)
	if err != nil {
		respondError(c, err, "Detection failed")
		return
	}

	c.JSON(http.StatusOK, detectResponse{
		SmoothedCurve: smoothed,
		Threshold:     det.Threshold,
		Candidates:    det.Candidates,
		Boundaries:    det.Boundaries,
		Shots:         det.Shots,
	})
}
