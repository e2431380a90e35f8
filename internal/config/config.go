package config

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/dunamismax/pixelnote/internal/options"
)

type Config struct {
	API        APIConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Image      ImageConfig
	Webhook    WebhookConfig
	Telemetry  TelemetryConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Protection ProtectionConfig
}

type APIConfig struct {
	Addr           string `env:"PIXELNOTE_API_ADDR" envDefault:":8080"`
	MaxUploadBytes int64  `env:"PIXELNOTE_MAX_UPLOAD_BYTES" envDefault:"52428800"`
}

type QueueConfig struct {
	// Enabled routes commits through redis instead of in-process goroutines.
	Enabled       bool   `env:"PIXELNOTE_QUEUE_ENABLED" envDefault:"false"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	Name          string `env:"ASYNC_QUEUE" envDefault:"images"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int `env:"WORKER_CONCURRENCY"`
}

type StorageConfig struct {
	// Enabled archives original uploads before they are transformed.
	Enabled   bool   `env:"PIXELNOTE_ARCHIVE_ENABLED" envDefault:"false"`
	Endpoint  string `env:"MINIO_ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"pixelnote-originals"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type DatabaseConfig struct {
	Driver string `env:"PIXELNOTE_DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"PIXELNOTE_DB_DSN" envDefault:"./.pixelnote/notes.db"`
}

// ImageConfig seeds the option provider; values stored in the database win.
type ImageConfig struct {
	MaxWidthHeight int  `env:"IMAGE_MAX_WIDTH_HEIGHT" envDefault:"2000"`
	JpegQuality    int  `env:"IMAGE_JPEG_QUALITY" envDefault:"75"`
	Compress       bool `env:"IMAGE_COMPRESS" envDefault:"true"`
}

func (c ImageConfig) OptionValues() map[string]string {
	return map[string]string{
		options.ImageMaxWidthHeight: strconv.Itoa(c.MaxWidthHeight),
		options.ImageJpegQuality:    strconv.Itoa(c.JpegQuality),
		options.CompressImages:      strconv.FormatBool(c.Compress),
	}
}

type WebhookConfig struct {
	URL            string        `env:"WEBHOOK_URL"`
	SigningSecret  string        `env:"WEBHOOK_SIGNING_SECRET"`
	Timeout        time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	MaxAttempts    int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"WEBHOOK_INITIAL_BACKOFF" envDefault:"1s"`
	MaxBackoff     time.Duration `env:"WEBHOOK_MAX_BACKOFF" envDefault:"10s"`
}

type TelemetryConfig struct {
	Exporter     string `env:"OTEL_TRACES_EXPORTER" envDefault:"none"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

type RateLimitConfig struct {
	Enabled      bool          `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
	Capacity     int           `env:"RATE_LIMIT_CAPACITY" envDefault:"60"`
	Window       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	ClientHeader string        `env:"RATE_LIMIT_CLIENT_HEADER" envDefault:"X-Client-ID"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type ProtectionConfig struct {
	// SecretKey unlocks the protected session at startup when set.
	SecretKey string `env:"PIXELNOTE_PROTECTED_KEY"`
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = max(2, runtime.NumCPU())
	}
	return cfg, nil
}
