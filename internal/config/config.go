package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/therealutkarshpriyadarshi/vidsum/internal/shotdetect"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Detection  DetectionConfig
	Summarizer SummarizerConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
	Webhook    WebhookConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadSize   int64
	MaxCurveLength  int // longest curve accepted by the synchronous detect endpoint
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Vhost      string
	Prefetch   int
	MaxRetries int
}

// DetectionConfig holds the default shot detection parameters. Jobs may
// override individual fields.
type DetectionConfig struct {
	SampleFPS           float64
	ThresholdPercentile float64
	MinShotFrames       int
	MinShotSeconds      float64
	NMSSpacing          int
	SmoothWindow        int
	KeyframePolicy      string
	ColorWeight         float64
	EdgeWeight          float64
	ResizeWidth         int
	EdgeThreshold       float64
	SharpnessCeiling    float64
	SecsPerShot         float64
	MaxDuration         float64
	Workers             int
}

// SummarizerConfig holds worker-side settings
type SummarizerConfig struct {
	WorkerCount     int
	TempDir         string
	FFmpegPath      string
	FFprobePath     string
	MaxFrames       int
	KeyframeQuality int
	CacheTTL        time.Duration
	LockTTL         time.Duration
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	Enabled         bool
	JWTSecret       string
	TokenExpiration time.Duration
	RateLimit       float64
	RateBurst       int
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger settings
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64 // fraction of jobs traced, 1 traces everything
}

// WebhookConfig holds completion callback settings
type WebhookConfig struct {
	Secret     string
	Timeout    time.Duration
	MaxRetries int
}

// Params builds the validated engine parameter bundle.
func (d DetectionConfig) Params() (shotdetect.Params, error) {
	policy, err := shotdetect.ParsePolicy(d.KeyframePolicy)
	if err != nil {
		return shotdetect.Params{}, err
	}

	p := shotdetect.DefaultParams()
	p.SampleFPS = d.SampleFPS
	p.ThresholdPercentile = d.ThresholdPercentile
	p.MinShotFrames = d.MinShotFrames
	p.MinShotSeconds = d.MinShotSeconds
	p.NMSSpacing = d.NMSSpacing
	p.SmoothWindow = d.SmoothWindow
	p.KeyframePolicy = policy
	p.Weights = shotdetect.Weights{Color: d.ColorWeight, Edge: d.EdgeWeight}
	p.Features.ResizeWidth = d.ResizeWidth
	p.Features.EdgeThreshold = d.EdgeThreshold
	p.Sharpness.Ceiling = d.SharpnessCeiling
	p.Sharpness.ResizeWidth = d.ResizeWidth
	p.SecsPerShot = d.SecsPerShot
	p.MaxDuration = d.MaxDuration
	if d.Workers > 0 {
		p.Workers = d.Workers
	}

	if err := p.Validate(); err != nil {
		return shotdetect.Params{}, err
	}
	return p, nil
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := config.Detection.Params(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.maxUploadSize", 2*1024*1024*1024) // 2GB
	v.SetDefault("server.maxCurveLength", 100000)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "vidsum")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Storage defaults
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "videos")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")
	v.SetDefault("queue.prefetch", 1)
	v.SetDefault("queue.maxRetries", 3)

	// Detection defaults
	v.SetDefault("detection.sampleFPS", 8.0)
	v.SetDefault("detection.thresholdPercentile", 95.0)
	v.SetDefault("detection.minShotFrames", 0)
	v.SetDefault("detection.minShotSeconds", 1.0)
	v.SetDefault("detection.nmsSpacing", 0)
	v.SetDefault("detection.smoothWindow", 5)
	v.SetDefault("detection.keyframePolicy", "midpoint")
	v.SetDefault("detection.colorWeight", 0.7)
	v.SetDefault("detection.edgeWeight", 0.3)
	v.SetDefault("detection.resizeWidth", 320)
	v.SetDefault("detection.edgeThreshold", 100.0)
	v.SetDefault("detection.sharpnessCeiling", 1000.0)
	v.SetDefault("detection.secsPerShot", 1.5)
	v.SetDefault("detection.maxDuration", 0.0)
	v.SetDefault("detection.workers", 0)

	// Summarizer defaults
	v.SetDefault("summarizer.workerCount", 2)
	v.SetDefault("summarizer.tempDir", "/tmp/vidsum")
	v.SetDefault("summarizer.ffmpegPath", "ffmpeg")
	v.SetDefault("summarizer.ffprobePath", "ffprobe")
	v.SetDefault("summarizer.maxFrames", 20000)
	v.SetDefault("summarizer.keyframeQuality", 90)
	v.SetDefault("summarizer.cacheTTL", "1h")
	v.SetDefault("summarizer.lockTTL", "30m")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwtSecret", "change-me")
	v.SetDefault("auth.tokenExpiration", "24h")
	v.SetDefault("auth.rateLimit", 10.0)
	v.SetDefault("auth.rateBurst", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "vidsum")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sampleRate", 1.0)

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("webhook.maxRetries", 3)
}
