package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/cache"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/config"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/database"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/logging"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/metrics"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/middleware"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/queue"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/sampler"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/storage"
	"github.com/therealutkarshpriyadarshi/vidsum/internal/tracing"
)

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

	closer, err := tracing.Init(cfg.Tracing, "api", logger)
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

	api := &API{
		repo:          repo,
		storage:       stor,
		cache:         c,
		queue:         q,
		prober:        sampler.NewFFmpeg(cfg.Summarizer.FFmpegPath, cfg.Summarizer.FFprobePath),
		logger:        logger,
		params:        params,
		tempDir:       cfg.Summarizer.TempDir,
		maxUploadSize: cfg.Server.MaxUploadSize,
		maxCurveLen:   cfg.Server.MaxCurveLength,
		cacheTTL:      cfg.Summarizer.CacheTTL,
		health: func(ctx context.Context) error {
			if err := db.Health(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if err := c.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
			if err := q.Health(); err != nil {
				return fmt.Errorf("queue: %w", err)
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts routerOptions
	if cfg.Auth.Enabled {
		opts.auth = middleware.NewAuth(cfg.Auth.JWTSecret)
	}
	if cfg.Auth.RateLimit > 0 {
		opts.limiter = middleware.NewRateLimiter(cfg.Auth.RateLimit, cfg.Auth.RateBurst)
		go opts.limiter.Cleanup(ctx, 10*time.Minute)
	}

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(api, logger, opts)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, nil)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
