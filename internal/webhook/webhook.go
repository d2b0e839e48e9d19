package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/config"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// Webhook event types
const (
	EventSummaryCompleted = "summary.completed"
	EventSummaryFailed    = "summary.failed"
)

// SignatureHeader carries the HMAC-SHA256 of the request body
const SignatureHeader = "X-Webhook-Signature"

// Event is the JSON body posted to a callback URL
type Event struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// CompletedData is the payload of a summary.completed event
type CompletedData struct {
	Job      *models.Job      `json:"job"`
	Manifest *models.Manifest `json:"manifest"`
}

// statusError is a non-2xx callback response
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("callback returned %d: %s", e.code, e.body)
}

// Notifier delivers job callbacks with retry
type Notifier struct {
	client     *http.Client
	secret     string
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
}

// NewNotifier creates a notifier from configuration
func NewNotifier(cfg config.WebhookConfig, logger *logging.Logger) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Notifier{
		client: &http.Client{
			Timeout: timeout,
		},
		secret:     cfg.Secret,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		logger:     logger,
	}
}

// NotifyJobCompleted posts the finished job and its manifest to the job's
// callback URL. Jobs without a callback are skipped.
func (n *Notifier) NotifyJobCompleted(ctx context.Context, job *models.Job, manifest *models.Manifest) error {
	if job.CallbackURL == "" {
		return nil
	}
	return n.Send(ctx, job.CallbackURL, EventSummaryCompleted, CompletedData{Job: job, Manifest: manifest})
}

// NotifyJobFailed posts the failed job to the job's callback URL
func (n *Notifier) NotifyJobFailed(ctx context.Context, job *models.Job) error {
	if job.CallbackURL == "" {
		return nil
	}
	return n.Send(ctx, job.CallbackURL, EventSummaryFailed, job)
}

// Send delivers one event, retrying network errors and 5xx responses with
// exponential backoff. 4xx responses are not retried.
func (n *Notifier) Send(ctx context.Context, url, event string, data interface{}) error {
	payload, err := json.Marshal(Event{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	delay := n.backoff
	for attempt := 0; ; attempt++ {
		err = n.deliver(ctx, url, event, payload)
		if err == nil {
			metrics.RecordWebhookDelivery("delivered")
			return nil
		}

		if se, ok := err.(*statusError); ok && se.code < 500 {
			break
		}
		if attempt >= n.maxRetries {
			break
		}

		metrics.RecordWebhookDelivery("retry")
		n.logger.WithError(err).Warnf("Webhook delivery attempt %d failed", attempt+1)

		select {
		case <-ctx.Done():
			metrics.RecordWebhookDelivery("failed")
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	metrics.RecordWebhookDelivery("failed")
	return fmt.Errorf("webhook %s to %s: %w", event, url, err)
}

// deliver attempts to deliver a webhook once
func (n *Notifier) deliver(ctx context.Context, url, event string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Vidsum-Webhook/1.0")
	req.Header.Set("X-Webhook-Event", event)

	// Add HMAC signature if secret is configured
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &statusError{code: resp.StatusCode, body: string(body)}
}

// Sign generates the HMAC-SHA256 signature for a webhook payload
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
