package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/config"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

const (
	SummarizeQueueName = "summarize_jobs"
	ExchangeName       = "vidsum"

	maxPriority = 10
)

// Handler processes one summarization job
type Handler func(ctx context.Context, job *models.Job) error

// publisher is the subset of *amqp.Channel used to publish
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Queue provides message queue operations
type Queue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	pub        publisher
	pubMu      sync.Mutex
	prefetch   int
	maxRetries int
	logger     *logging.Logger
}

// URL builds the AMQP URL for cfg
func URL(cfg config.QueueConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)
}

// New creates a new queue client and declares the job, retry and dead
// letter topology.
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	conn, err := amqp.Dial(URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if logger == nil {
		logger = logging.Nop()
	}

	q := &Queue{
		conn:       conn,
		channel:    channel,
		pub:        channel,
		prefetch:   max(cfg.Prefetch, 1),
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}

	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.SetupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

func (q *Queue) declare() error {
	// Declare exchange
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = q.channel.QueueDeclare(
		SummarizeQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-max-priority": maxPriority},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = q.channel.QueueBind(
		SummarizeQueueName,
		SummarizeQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Health reports whether the broker connection is still open
func (q *Queue) Health() error {
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("queue connection closed")
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pub.PublishWithContext(ctx, exchange, key, false, false, msg)
}

func jobPublishing(job *models.Job, headers amqp.Table) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	// Set priority based on job priority
	priority := job.Priority
	if priority < 0 {
		priority = 0
	} else if priority > maxPriority {
		priority = maxPriority
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		Priority:     uint8(priority),
		MessageId:    job.ID,
		Headers:      headers,
	}, nil
}

// PublishJob publishes a summarization job to the queue
func (q *Queue) PublishJob(ctx context.Context, job *models.Job) error {
	msg, err := jobPublishing(job, amqp.Table{retryHeader: int32(0)})
	if err != nil {
		return err
	}

	if err := q.publish(ctx, ExchangeName, SummarizeQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	return nil
}

// ConsumeJobs starts workers goroutines consuming jobs from the queue. It
// returns once the consumer is registered; the workers stop when ctx is
// cancelled or the channel closes.
func (q *Queue) ConsumeJobs(ctx context.Context, workers int, handler Handler) error {
	// Set QoS to limit concurrent processing
	err := q.channel.Qos(
		max(q.prefetch, workers), // prefetch count
		0,                        // prefetch size
		false,                    // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		SummarizeQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for i := 0; i < max(workers, 1); i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					q.handleDelivery(ctx, msg, handler)
				}
			}
		}()
	}

	return nil
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(SummarizeQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
