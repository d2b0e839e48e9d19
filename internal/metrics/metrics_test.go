package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/api/v1/jobs/:id", "200", 0.123)

	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/jobs/:id", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(HTTPRequestDuration))
}

func TestRecordUpload(t *testing.T) {
	before := testutil.ToFloat64(VideoUploadsTotal)

	RecordUpload(10 * 1024 * 1024)

	assert.Equal(t, before+1, testutil.ToFloat64(VideoUploadsTotal))
}

func TestRecordJobLifecycle(t *testing.T) {
	JobsCreatedTotal.Reset()
	JobsCompletedTotal.Reset()
	JobDuration.Reset()

	RecordJobCreated("high")
	RecordJobCreated("normal")
	RecordJobCreated("high")
	RecordJobCompleted("completed", "midpoint", 12.5)
	RecordJobCompleted("failed", "sharpest", 3.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(JobsCreatedTotal.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCreatedTotal.WithLabelValues("normal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCompletedTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCompletedTotal.WithLabelValues("failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(JobDuration))
}

func TestRecordDeadLetter(t *testing.T) {
	JobsDeadLettered.Reset()

	RecordDeadLetter("invalid_config")
	RecordDeadLetter("invalid_config")

	assert.Equal(t, 2.0, testutil.ToFloat64(JobsDeadLettered.WithLabelValues("invalid_config")))
}

func TestRecordDetection(t *testing.T) {
	frames := testutil.ToFloat64(FramesProcessedTotal)
	seconds := testutil.ToFloat64(VideoDurationProcessed)

	RecordDetection(480, 12, 60, 15)
	RecordDetection(8, 1, 1, 0)

	assert.Equal(t, frames+488, testutil.ToFloat64(FramesProcessedTotal))
	assert.Equal(t, seconds+61, testutil.ToFloat64(VideoDurationProcessed))
}

func TestRecordStage(t *testing.T) {
	StageDuration.Reset()

	RecordStage("extract", 0.8)
	RecordStage("detect", 0.01)
	RecordStage("extract", 0.7)

	assert.Equal(t, 2, testutil.CollectAndCount(StageDuration))
}

func TestRecordStorageOperation(t *testing.T) {
	StorageOperationsTotal.Reset()
	StorageBytesTransferred.Reset()

	RecordStorageOperation("upload", "success", 1.234, 1048576)

	assert.Equal(t, 1.0, testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("upload", "success")))
	assert.Equal(t, 1048576.0, testutil.ToFloat64(StorageBytesTransferred.WithLabelValues("upload")))
}

func TestRecordDatabaseOperation(t *testing.T) {
	DatabaseOperationsTotal.Reset()

	RecordDatabaseOperation("get_summary", Status(nil), 0.05)
	RecordDatabaseOperation("create_job", Status(errors.New("duplicate key")), 0.02)

	assert.Equal(t, 1.0, testutil.ToFloat64(DatabaseOperationsTotal.WithLabelValues("get_summary", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DatabaseOperationsTotal.WithLabelValues("create_job", "error")))
}

func TestRecordCacheAccess(t *testing.T) {
	CacheHitsTotal.Reset()
	CacheMissesTotal.Reset()

	RecordCacheAccess("summary", true)
	RecordCacheAccess("summary", true)
	RecordCacheAccess("summary", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(CacheHitsTotal.WithLabelValues("summary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(CacheMissesTotal.WithLabelValues("summary")))
}

func TestRecordWebhookDelivery(t *testing.T) {
	WebhookDeliveriesTotal.Reset()

	RecordWebhookDelivery("delivered")
	RecordWebhookDelivery("failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("failed")))
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("api", "validation")
	RecordError("worker", "ffmpeg")
	RecordError("api", "validation")

	assert.Equal(t, 2.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("api", "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("worker", "ffmpeg")))
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordHTTPRequest("GET", "/api/v1/videos/:id/summary", "200", 0.123)
	}
}
