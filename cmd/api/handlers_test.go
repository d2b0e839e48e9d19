package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/database"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/shotdetect"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// MockRepo is a mock implementation of Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CreateVideo(ctx context.Context, video *models.Video) error {
	return m.Called(ctx, video).Error(0)
}

func (m *MockRepo) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Video), args.Error(1)
}

func (m *MockRepo) ListVideos(ctx context.Context, limit, offset int) ([]*models.Video, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*models.Video), args.Error(1)
}

func (m *MockRepo) CreateJob(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	if job.ID == "" {
		job.ID = "job-1"
	}
	return args.Error(0)
}

func (m *MockRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Job), args.Error(1)
}

func (m *MockRepo) GetJobsByVideoID(ctx context.Context, videoID string) ([]*models.Job, error) {
	args := m.Called(ctx, videoID)
	return args.Get(0).([]*models.Job), args.Error(1)
}

func (m *MockRepo) GetLatestSummary(ctx context.Context, videoID string) (*models.Summary, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Summary), args.Error(1)
}

// MockStore is a mock implementation of ObjectStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) UploadFile(ctx context.Context, objectName, filePath string) error {
	return m.Called(ctx, objectName, filePath).Error(0)
}

func (m *MockStore) GetURL(ctx context.Context, objectName string) (string, error) {
	args := m.Called(ctx, objectName)
	return args.String(0), args.Error(1)
}

// MockCache is a mock implementation of SummaryCache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetLatestSummary(ctx context.Context, videoID string) (*models.Summary, error) {
	args := m.Called(ctx, videoID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Summary), args.Error(1)
}

func (m *MockCache) SetSummary(ctx context.Context, summary *models.Summary, ttl time.Duration) error {
	return m.Called(ctx, summary, ttl).Error(0)
}

func (m *MockCache) GetJobProgress(ctx context.Context, jobID string) (float64, bool, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

// MockQueue is a mock implementation of JobPublisher
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) PublishJob(ctx context.Context, job *models.Job) error {
	return m.Called(ctx, job).Error(0)
}

// MockProber is a mock implementation of Prober
type MockProber struct {
	mock.Mock
}

func (m *MockProber) ExtractVideoInfo(ctx context.Context, inputPath string) (*models.Video, error) {
	args := m.Called(ctx, inputPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Video), args.Error(1)
}

type testAPI struct {
	api    *API
	repo   *MockRepo
	store  *MockStore
	cache  *MockCache
	queue  *MockQueue
	prober *MockProber
	router *gin.Engine
}

func testParams() shotdetect.Params {
	p := shotdetect.DefaultParams()
	p.ThresholdPercentile = 90
	p.MinShotFrames = 3
	p.SmoothWindow = 1
	return p
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ta := &testAPI{
		repo:   new(MockRepo),
		store:  new(MockStore),
		cache:  new(MockCache),
		queue:  new(MockQueue),
		prober: new(MockProber),
	}
	ta.api = &API{
		repo:          ta.repo,
		storage:       ta.store,
		cache:         ta.cache,
		queue:         ta.queue,
		prober:        ta.prober,
		logger:        logging.Nop(),
		params:        testParams(),
		tempDir:       t.TempDir(),
		maxUploadSize: 1024,
		maxCurveLen:   64,
		cacheTTL:      time.Minute,
	}
	ta.router = setupRouter(ta.api, logging.Nop(), routerOptions{})

	t.Cleanup(func() {
		ta.repo.AssertExpectations(t)
		ta.store.AssertExpectations(t)
		ta.cache.AssertExpectations(t)
		ta.queue.AssertExpectations(t)
		ta.prober.AssertExpectations(t)
	})
	return ta
}

func (ta *testAPI) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	ta.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func testSummary() *models.Summary {
	q := 0.8
	return &models.Summary{
		ID:             "sum-1",
		VideoID:        "video-1",
		FramesSampled:  30,
		SourceDuration: 10,
		Boundaries:     []int{10, 20},
		Shots: models.Shots{
			{ID: 0, StartFrame: 0, EndFrame: 10, StartSec: 0, EndSec: 3, DurationSec: 3, KeyframeKey: "k/0.jpg"},
			{ID: 1, StartFrame: 10, EndFrame: 20, StartSec: 3, EndSec: 6, DurationSec: 3, KeyframeKey: "k/1.jpg", QualityScore: &q},
			{ID: 2, StartFrame: 20, EndFrame: 29, StartSec: 6, EndSec: 10, DurationSec: 4, KeyframeKey: "k/2.jpg"},
		},
		Selected: models.Shots{
			{ID: 0, StartFrame: 0, EndFrame: 10, StartSec: 0, EndSec: 3, DurationSec: 3, KeyframeKey: "k/0.jpg"},
			{ID: 2, StartFrame: 20, EndFrame: 29, StartSec: 6, EndSec: 10, DurationSec: 4, KeyframeKey: "k/2.jpg"},
		},
		Segments: []models.Segment{
			{ShotID: 0, StartSec: 0, EndSec: 1.5},
			{ShotID: 2, StartSec: 6, EndSec: 7.5},
		},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestHealthCheck(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do("GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	ta.api.health = func(context.Context) error { return errors.New("database: down") }
	w = ta.do("GET", "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode(t, w)["status"])
}

func multipartVideo(t *testing.T, filename string, size int) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x42}, size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUploadVideo(t *testing.T) {
	ta := newTestAPI(t)

	ta.prober.On("ExtractVideoInfo", mock.Anything, mock.AnythingOfType("string")).
		Return(&models.Video{Duration: 12.5, Width: 640, Height: 360, FrameRate: 25, FrameCount: 312}, nil)
	ta.store.On("UploadFile", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "videos/") && strings.HasSuffix(key, "/source.mov")
	}), mock.AnythingOfType("string")).Return(nil)
	ta.repo.On("CreateVideo", mock.Anything, mock.MatchedBy(func(v *models.Video) bool {
		return v.Filename == "clip.MOV" && v.Status == models.VideoStatusUploaded && v.Size == 64
	})).Return(nil)

	body, ct := multipartVideo(t, "clip.MOV", 64)
	w := ta.do("POST", "/api/v1/videos/upload", body, ct)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, 25.0, resp["frame_rate"])
	assert.Equal(t, 12.5, resp["duration"])
}

func TestUploadVideo_Rejected(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		ta := newTestAPI(t)
		w := ta.do("POST", "/api/v1/videos/upload", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		ta := newTestAPI(t)
		body, ct := multipartVideo(t, "big.mp4", 2048)
		w := ta.do("POST", "/api/v1/videos/upload", body, ct)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("unreadable media", func(t *testing.T) {
		ta := newTestAPI(t)
		ta.prober.On("ExtractVideoInfo", mock.Anything, mock.Anything).Return(nil, errors.New("no video stream found"))
		body, ct := multipartVideo(t, "notes.txt", 16)
		w := ta.do("POST", "/api/v1/videos/upload", body, ct)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetVideo(t *testing.T) {
	ta := newTestAPI(t)
	ta.repo.On("GetVideo", mock.Anything, "video-1").Return(&models.Video{ID: "video-1"}, nil)
	ta.repo.On("GetVideo", mock.Anything, "missing").Return(nil, fmt.Errorf("video missing: %w", database.ErrNotFound))

	assert.Equal(t, http.StatusOK, ta.do("GET", "/api/v1/videos/video-1", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, ta.do("GET", "/api/v1/videos/missing", nil, "").Code)
}

func TestListVideos(t *testing.T) {
	ta := newTestAPI(t)
	ta.repo.On("ListVideos", mock.Anything, 20, 0).Return([]*models.Video{{ID: "a"}}, nil)

	w := ta.do("GET", "/api/v1/videos?limit=500&offset=-3", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, 20.0, resp["limit"])
	assert.Len(t, resp["videos"], 1)
}

func TestCreateSummarizeJob(t *testing.T) {
	ta := newTestAPI(t)
	ta.repo.On("GetVideo", mock.Anything, "video-1").Return(&models.Video{ID: "video-1"}, nil)
	ta.repo.On("CreateJob", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
		return j.VideoID == "video-1" &&
			j.Status == models.JobStatusQueued &&
			j.Priority == models.JobPriorityHigh &&
			j.Params.ThresholdPercentile != nil && *j.Params.ThresholdPercentile == 85 &&
			j.CallbackURL == "https://example.com/hook"
	})).Return(nil)
	ta.queue.On("PublishJob", mock.Anything, mock.AnythingOfType("*models.Job")).Return(nil)

	body := []byte(`{"params":{"threshold_percentile":85,"keyframe_policy":"sharpest"},"priority":10,"callback_url":"https://example.com/hook"}`)
	w := ta.do("POST", "/api/v1/videos/video-1/summarize", body, "application/json")

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "job-1", resp["id"])
	assert.Equal(t, models.JobStatusQueued, resp["status"])
}

func TestCreateSummarizeJob_Defaults(t *testing.T) {
	ta := newTestAPI(t)
	ta.repo.On("GetVideo", mock.Anything, "video-1").Return(&models.Video{ID: "video-1"}, nil)
	ta.repo.On("CreateJob", mock.Anything, mock.MatchedBy(func(j *models.Job) bool {
		return j.Priority == models.JobPriorityNormal && j.Params == models.DetectionParams{}
	})).Return(nil)
	ta.queue.On("PublishJob", mock.Anything, mock.Anything).Return(nil)

	w := ta.do("POST", "/api/v1/videos/video-1/summarize", nil, "")
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func TestCreateSummarizeJob_Errors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		setup func(ta *testAPI)
		want  int
	}{
		{
			name: "invalid percentile",
			body: `{"params":{"threshold_percentile":150}}`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown keyframe policy",
			body: `{"params":{"keyframe_policy":"loudest"}}`,
			want: http.StatusBadRequest,
		},
		{
			name: "malformed callback",
			body: `{"callback_url":"not a url"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "missing video",
			body: `{}`,
			setup: func(ta *testAPI) {
				ta.repo.On("GetVideo", mock.Anything, "video-1").Return(nil, database.ErrNotFound)
			},
			want: http.StatusNotFound,
		},
		{
			name: "queue down",
			body: `{}`,
			setup: func(ta *testAPI) {
				ta.repo.On("GetVideo", mock.Anything, "video-1").Return(&models.Video{ID: "video-1"}, nil)
				ta.repo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
				ta.queue.On("PublishJob", mock.Anything, mock.Anything).Return(errors.New("channel closed"))
			},
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t)
			if tt.setup != nil {
				tt.setup(ta)
			}
			w := ta.do("POST", "/api/v1/videos/video-1/summarize", []byte(tt.body), "application/json")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestGetJob(t *testing.T) {
	t.Run("live progress", func(t *testing.T) {
		ta := newTestAPI(t)
		ta.repo.On("GetJob", mock.Anything, "job-1").Return(&models.Job{ID: "job-1", Status: models.JobStatusProcessing, Progress: 40}, nil)
		ta.cache.On("GetJobProgress", mock.Anything, "job-1").Return(62.5, true, nil)

		w := ta.do("GET", "/api/v1/jobs/job-1", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 62.5, decode(t, w)["progress"])
	})

	t.Run("finished job skips cache", func(t *testing.T) {
		ta := newTestAPI(t)
		ta.repo.On("GetJob", mock.Anything, "job-1").Return(&models.Job{ID: "job-1", Status: models.JobStatusCompleted, Progress: 100}, nil)

		w := ta.do("GET", "/api/v1/jobs/job-1", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 100.0, decode(t, w)["progress"])
	})

	t.Run("not found", func(t *testing.T) {
		ta := newTestAPI(t)
		ta.repo.On("GetJob", mock.Anything, "nope").Return(nil, database.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, ta.do("GET", "/api/v1/jobs/nope", nil, "").Code)
	})
}

func TestGetVideoJobs(t *testing.T) {
	ta := newTestAPI(t)
	ta.repo.On("GetJobsByVideoID", mock.Anything, "video-1").Return([]*models.Job{{ID: "a"}, {ID: "b"}}, nil)

	w := ta.do("GET", "/api/v1/videos/video-1/jobs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["jobs"], 2)
}

func TestGetSummary(t *testing.T) {
	t.Run("cache hit with urls", func(t *testing.T) {
		ta := newTestAPI(t)
		ta.cache.On("GetLatestSummary", mock.Anything, "video-1").Return(testSummary(), nil)
		ta.store.On("GetURL", mock.Anything, "k/0.jpg").Return("https://signed/0", nil)
		ta.store.On("GetURL", mock.Anything, "k/2.jpg").Return("https://signed/2", nil)

		w := ta.do("GET", "/api/v1/videos/video-1/summary?urls=true", nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp summaryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "sum-1", resp.Summary.ID)
		assert.Equal(t, map[int]string{0: "https://signed/0", 2: "https://signed/2"}, resp.KeyframeURLs)
		require.Len(t, resp.Manifest.Segments, 2)
		assert.Equal(t, "00:00:06", resp.Manifest.Segments[1].StartHMS)
		assert.InDelta(t, 0.3, resp.Manifest.CompressionRatio, 1e-9)
	})

	t.Run("cache miss falls through to database", func(t *testing.T) {
		ta := newTestAPI(t)
		summary := testSummary()
		ta.cache.On("GetLatestSummary", mock.Anything, "video-1").Return(nil, nil)
		ta.repo.On("GetLatestSummary", mock.Anything, "video-1").Return(summary, nil)
		ta.cache.On("SetSummary", mock.Anything, summary, time.Minute).Return(nil)

		w := ta.do("GET", "/api/v1/videos/video-1/summary", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, decode(t, w), "keyframe_urls")
	})

	t.Run("none yet", func(t *testing.T) {
		ta := newTestAPI(t)
		ta.cache.On("GetLatestSummary", mock.Anything, "video-1").Return(nil, errors.New("redis: connection refused"))
		ta.repo.On("GetLatestSummary", mock.Anything, "video-1").Return(nil, database.ErrNotFound)

		w := ta.do("GET", "/api/v1/videos/video-1/summary", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetManifest(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantCode    int
		contentType string
	}{
		{"default json", "", http.StatusOK, "application/json"},
		{"yaml", "?format=yaml", http.StatusOK, "application/yaml"},
		{"unknown format", "?format=xml", http.StatusBadRequest, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t)
			ta.cache.On("GetLatestSummary", mock.Anything, "video-1").Return(testSummary(), nil)

			w := ta.do("GET", "/api/v1/videos/video-1/summary/manifest"+tt.query, nil, "")
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), tt.contentType)
			if tt.wantCode != http.StatusOK {
				return
			}

			var m models.Manifest
			if tt.contentType == "application/yaml" {
				require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &m))
			} else {
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
			}
			assert.Equal(t, "video-1", m.VideoID)
			assert.Equal(t, 2, m.TotalSegments)
			assert.Equal(t, "00:00:06", m.Segments[1].StartHMS)
			assert.Equal(t, "k/2.jpg", m.Segments[1].KeyframeKey)
		})
	}
}

func TestGetEvaluation(t *testing.T) {
	ta := newTestAPI(t)
	ta.cache.On("GetLatestSummary", mock.Anything, "video-1").Return(testSummary(), nil)

	w := ta.do("GET", "/api/v1/videos/video-1/summary/evaluation", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "sum-1", resp["summary_id"])
	assert.NotNil(t, resp["evaluation"])
}

func TestDetect(t *testing.T) {
	ta := newTestAPI(t)

	curve := make([]float64, 29)
	curve[9], curve[19] = 0.7, 0.7
	body, _ := json.Marshal(map[string]interface{}{"curve": curve})

	w := ta.do("POST", "/api/v1/detect", body, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp detectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int{10, 20}, resp.Boundaries)
	assert.Equal(t, []shotdetect.Shot{{Start: 0, End: 10}, {Start: 10, End: 20}, {Start: 20, End: 29}}, resp.Shots)
	assert.Equal(t, curve, resp.SmoothedCurve)
}

func TestDetect_DefaultParams(t *testing.T) {
	ta := newTestAPI(t)
	// one second at the default 8 fps sampling is 8 samples
	ta.api.params = shotdetect.DefaultParams()

	curve := make([]float64, 60)
	curve[20], curve[22] = 1.0, 0.9
	body, _ := json.Marshal(map[string]interface{}{"curve": curve})

	w := ta.do("POST", "/api/v1/detect", body, "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp detectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int{20, 21, 22}, resp.Candidates)
	assert.Equal(t, []int{21}, resp.Boundaries)
	assert.Equal(t, []shotdetect.Shot{{Start: 0, End: 21}, {Start: 21, End: 60}}, resp.Shots)
}

func TestDetect_Limits(t *testing.T) {
	t.Run("too many values", func(t *testing.T) {
		ta := newTestAPI(t)
		body, _ := json.Marshal(map[string]interface{}{"curve": make([]float64, 65)})

		w := ta.do("POST", "/api/v1/detect", body, "application/json")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	})

	t.Run("body too large", func(t *testing.T) {
		ta := newTestAPI(t)
		body := `{"curve":[` + strings.Repeat("0.5,", 5000) + `0.5]}`

		w := ta.do("POST", "/api/v1/detect", []byte(body), "application/json")
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	})

	t.Run("smoothing window too wide", func(t *testing.T) {
		ta := newTestAPI(t)
		body := `{"curve":[0.1,0.2],"smooth_window":5000}`

		w := ta.do("POST", "/api/v1/detect", []byte(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	})
}

func TestDetect_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing curve", `{}`},
		{"bad percentile", `{"curve":[0.1,0.2],"percentile":101}`},
		{"bad window", `{"curve":[0.1,0.2],"smooth_window":-1}`},
		{"negative spacing", `{"curve":[0.1,0.2],"nms_spacing":-2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t)
			w := ta.do("POST", "/api/v1/detect", []byte(tt.body), "application/json")
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRouter_Auth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := middleware.NewAuth("secret")
	api := &API{logger: logging.Nop(), params: testParams(), maxCurveLen: 64}
	router := setupRouter(api, logging.Nop(), routerOptions{auth: auth})

	body := []byte(`{"curve":[0,1,0]}`)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/detect", bytes.NewReader(body))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateToken("user-1", "", time.Hour)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/v1/detect", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
