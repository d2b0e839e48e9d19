package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/cache"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/config"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/database"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/queue"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/sampler"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/storage"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/summarizer"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/tracing"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/webhook"
	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

const queueDepthInterval = 15 * time.Second

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	params, err := cfg.Detection.Params()
	if err != nil {
		logger.Fatalf("Invalid detection config: %v", err)
	}

	closer, err := tracing.Init(cfg.Tracing, "worker", logger)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer closer.Close()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	repo := database.NewRepository(db)

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize cache
	c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to cache: %v", err)
	}
	defer c.Close()

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if err := os.MkdirAll(cfg.Summarizer.TempDir, 0755); err != nil {
		logger.Fatalf("Failed to create temp directory: %v", err)
	}

	// Initialize summarizer service
	service := summarizer.NewService(cfg.Summarizer, params, cfg.Queue.MaxRetries, summarizer.Deps{
		Repo:     repo,
		Store:    stor,
		Cache:    c,
		Sampler:  sampler.NewFFmpeg(cfg.Summarizer.FFmpegPath, cfg.Summarizer.FFprobePath),
		Notifier: webhook.NewNotifier(cfg.Webhook, logger),
		Logger:   logger,
	})

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, q.Health)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	go reportQueueDepth(ctx, q, logger)

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Job handler
	jobHandler := func(ctx context.Context, job *models.Job) error {
		l := logger.WithJobID(job.ID).WithVideoID(job.VideoID)
		l.Info("Processing job")

		if err := service.ProcessJob(ctx, job); err != nil {
			l.WithError(err).Error("Failed to process job")
			return err
		}

		l.Info("Successfully processed job")
		return nil
	}

	// Start consuming jobs
	workers := cfg.Summarizer.WorkerCount
	if workers < 1 {
		workers = 1
	}
	logger.Infof("Worker started with %d consumers, waiting for jobs...", workers)
	if err := q.ConsumeJobs(ctx, workers, jobHandler); err != nil {
		logger.Fatalf("Failed to consume jobs: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("Worker stopped")
}

// reportQueueDepth samples the main and dead letter queue backlogs
func reportQueueDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := q.GetQueueDepth(); err != nil {
				logger.WithError(err).Debug("Failed to read queue depth")
			} else {
				metrics.RecordQueueDepth(queue.SummarizeQueueName, depth)
			}
			if depth, err := q.GetDLQDepth(); err != nil {
				logger.WithError(err).Debug("Failed to read dead letter queue depth")
			} else {
				metrics.RecordQueueDepth(queue.DeadLetterQueueName, depth)
			}
		}
	}
}
