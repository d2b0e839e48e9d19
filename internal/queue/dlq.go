package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/shotdetect"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

const (
	DeadLetterQueueName    = "summarize_jobs_dlq"
	DeadLetterExchangeName = "vidsum_dlq"
	RetryQueueName         = "summarize_jobs_retry"

	retryHeader  = "x-retry-count"
	reasonHeader = "x-failure-reason"
)

// permanentError marks a failure that retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the consumer dead-letters the job instead of
// retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should skip the retry queue. Engine
// input and configuration errors are always permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || shotdetect.IsNonRetriable(err)
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDeadLetter
)

// decide maps a handler outcome to what happens to the delivery
func decide(err error, retries, maxRetries int) action {
	switch {
	case err == nil:
		return actionAck
	case IsPermanent(err):
		return actionDeadLetter
	case retries >= maxRetries:
		return actionDeadLetter
	default:
		return actionRetry
	}
}

// SetupDeadLetterQueue sets up the dead letter queue infrastructure
func (q *Queue) SetupDeadLetterQueue() error {
	// Declare dead letter exchange
	err := q.channel.ExchangeDeclare(
		DeadLetterExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	// Declare dead letter queue
	_, err = q.channel.QueueDeclare(
		DeadLetterQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	// Bind DLQ to exchange
	err = q.channel.QueueBind(
		DeadLetterQueueName,
		DeadLetterQueueName,
		DeadLetterExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	// Expired retry messages flow back to the job queue
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": SummarizeQueueName,
	}

	_, err = q.channel.QueueDeclare(
		RetryQueueName,
		true,
		false,
		false,
		false,
		retryArgs,
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}

	return nil
}

// handleDelivery runs handler on one delivery and settles it. Failed jobs
// are republished to the retry or dead letter queue before the original is
// acknowledged; if republishing fails the delivery is requeued.
func (q *Queue) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var job models.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		q.logger.WithError(err).Error("Dropping malformed job message")
		metrics.RecordDeadLetter("malformed")
		msg.Nack(false, false)
		return
	}

	retries := retryCount(msg.Headers)
	job.RetryCount = retries

	err := handler(ctx, &job)

	var publishErr error
	switch decide(err, retries, q.maxRetries) {
	case actionAck:
	case actionRetry:
		publishErr = q.PublishToRetryQueue(ctx, &job, retries)
	case actionDeadLetter:
		label, reason := "permanent", err.Error()
		if !IsPermanent(err) {
			label, reason = "retries_exhausted", fmt.Sprintf("max retries exceeded: %s", reason)
		}
		publishErr = q.deadLetter(ctx, &job, label, reason)
	}

	if publishErr != nil {
		q.logger.WithJobID(job.ID).WithError(publishErr).Error("Failed to reroute job, requeueing")
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// PublishToRetryQueue publishes a job to the retry queue with an
// exponential backoff expiration.
func (q *Queue) PublishToRetryQueue(ctx context.Context, job *models.Job, retryCount int) error {
	delay := calculateBackoffDelay(retryCount)

	msg, err := jobPublishing(job, amqp.Table{retryHeader: int32(retryCount + 1)})
	if err != nil {
		return err
	}
	msg.Expiration = fmt.Sprintf("%d", delay.Milliseconds())

	if err := q.publish(ctx, "", RetryQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish to retry queue: %w", err)
	}

	q.logger.WithJobID(job.ID).Infof("Job queued for retry #%d in %v", retryCount+1, delay)
	return nil
}

// deadLetter publishes a failed job to the dead letter queue. label is the
// metric reason, reason the human readable header.
func (q *Queue) deadLetter(ctx context.Context, job *models.Job, label, reason string) error {
	msg, err := jobPublishing(job, amqp.Table{
		reasonHeader:  reason,
		"x-failed-at": time.Now().Format(time.RFC3339),
		retryHeader:   int32(job.RetryCount),
	})
	if err != nil {
		return err
	}

	if err := q.publish(ctx, DeadLetterExchangeName, DeadLetterQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.RecordDeadLetter(label)
	q.logger.WithJobID(job.ID).WithField("reason", reason).Warn("Job moved to dead letter queue")
	return nil
}

// GetDLQDepth returns the number of messages in the dead letter queue
func (q *Queue) GetDLQDepth() (int, error) {
	info, err := q.channel.QueueInspect(DeadLetterQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect DLQ: %w", err)
	}

	return info.Messages, nil
}

// retryCount reads the retry header, which the broker may hand back as any
// integer width.
func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}

// calculateBackoffDelay calculates exponential backoff delay
func calculateBackoffDelay(retryCount int) time.Duration {
	// Exponential backoff: 30s, 1min, 2min, 4min...
	baseDelay := 30 * time.Second
	if retryCount > 10 {
		retryCount = 10
	}
	delay := baseDelay * (1 << retryCount) // 2^retryCount

	// Cap at 30 minutes
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}

	return delay
}
