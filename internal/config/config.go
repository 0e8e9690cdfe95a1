package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

type Config struct {
	API       APIConfig       `envPrefix:"API_"`
	CMS       CMSConfig       `envPrefix:"CMS_"`
	Queue     QueueConfig     `envPrefix:"QUEUE_"`
	Worker    WorkerConfig    `envPrefix:"WORKER_"`
	Storage   StorageConfig   `envPrefix:"MINIO_"`
	Database  DatabaseConfig  `envPrefix:"POSTGRES_"`
	Upload    UploadConfig    `envPrefix:"UPLOAD_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Webhook   WebhookConfig   `envPrefix:"WEBHOOK_"`
	Tracing   TracingConfig   `envPrefix:"TRACING_"`
	Media     MediaConfig     `envPrefix:"MEDIA_"`
}

type APIConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type CMSConfig struct {
	BaseURL string        `env:"API_URL" envDefault:"http://localhost:8787"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

type QueueConfig struct {
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	Name          string `env:"NAME" envDefault:"media"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int    `env:"CONCURRENCY"`
	MaxActiveJobs int    `env:"MAX_ACTIVE_JOBS"`
	MetricsAddr   string `env:"METRICS_ADDR" envDefault:":9091"`
	// Emitter is "cms" to upload through the CMS API or "storage" to write
	// straight into the bucket.
	Emitter string `env:"EMITTER" envDefault:"cms"`
}

type StorageConfig struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"SECRET_KEY" envDefault:"minioadmin"`
	Bucket    string `env:"BUCKET" envDefault:"cms-assets"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	PublicURL string `env:"PUBLIC_URL"`
}

type DatabaseConfig struct {
	// An empty DSN keeps jobs in memory.
	DSN string `env:"DSN"`
}

type UploadConfig struct {
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
}

type RateLimitConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	Capacity     int           `env:"CAPACITY" envDefault:"30"`
	Window       time.Duration `env:"WINDOW" envDefault:"1m"`
	UserIDHeader string        `env:"USER_ID_HEADER" envDefault:"X-User-ID"`
}

type WebhookConfig struct {
	SigningSecret  string        `env:"SIGNING_SECRET"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"10s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"4"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"15s"`
}

type TracingConfig struct {
	Exporter     string  `env:"EXPORTER" envDefault:"none"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT"`
	OTLPInsecure bool    `env:"OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"SAMPLE_RATIO" envDefault:"1"`
}

type MediaConfig struct {
	// Backend is "cms" or "storage".
	Backend       string `env:"BACKEND" envDefault:"cms"`
	DeleteWorkers int    `env:"DELETE_WORKERS" envDefault:"4"`
}

// Load reads an optional .env file (or ENV_FILE) and then the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = max(2, runtime.NumCPU())
	}
	if c.Worker.MaxActiveJobs <= 0 {
		c.Worker.MaxActiveJobs = max(1, runtime.NumCPU()/2)
	}
	if c.Upload.Concurrency <= 0 {
		c.Upload.Concurrency = 1
	}
	c.Worker.Emitter = strings.ToLower(strings.TrimSpace(c.Worker.Emitter))
	c.Media.Backend = strings.ToLower(strings.TrimSpace(c.Media.Backend))
}

func (c Config) Validate() error {
	switch c.Worker.Emitter {
	case "cms", "storage":
	default:
		return fmt.Errorf("WORKER_EMITTER must be cms or storage, got %q", c.Worker.Emitter)
	}
	switch c.Media.Backend {
	case "cms", "storage":
	default:
		return fmt.Errorf("MEDIA_BACKEND must be cms or storage, got %q", c.Media.Backend)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("rate limit capacity and window must be positive")
	}
	return nil
}
