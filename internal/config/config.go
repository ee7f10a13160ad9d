package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Pairing   PairingConfig   `mapstructure:"pairing" validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Identity  IdentityConfig  `mapstructure:"identity" validate:"required"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// PublicBaseURL is the externally reachable address used to build webhook callbacks.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig is only required when the pairing backend is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	SessionLifetime time.Duration `mapstructure:"session_lifetime" validate:"gt=0"`
	// AdminKeyHash is a bcrypt hash produced by cmd/hash-generator.
	AdminKeyHash string `mapstructure:"admin_key_hash"`
}

// TaskConfig governs the try-on task lifecycle.
type TaskConfig struct {
	// Timeout is how long a task may stay in flight before the sweep fails it.
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	// ClientPollBudget is how long kiosks keep polling before giving up.
	ClientPollBudget time.Duration `mapstructure:"client_poll_budget" validate:"gt=0"`
	SweepBatchSize   int           `mapstructure:"sweep_batch_size" validate:"gt=0"`
	NotifyWorkers    int           `mapstructure:"notify_workers" validate:"gt=0"`
	NotifyQueueSize  int           `mapstructure:"notify_queue_size" validate:"gt=0"`
}

// PairingConfig governs scene-token pairing.
type PairingConfig struct {
	Backend       string        `mapstructure:"backend" validate:"required,oneof=postgres redis"`
	TokenTTL      time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

// WorkerConfig selects and configures the render worker.
type WorkerConfig struct {
	Mode           string        `mapstructure:"mode" validate:"required,oneof=http gemini"`
	BaseURL        string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIToken       string        `mapstructure:"api_token"`
	Model          string        `mapstructure:"model"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// LLMConfig configures the in-process Gemini render worker.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
	WorkerCount  int    `mapstructure:"worker_count" validate:"gte=0"`
	QueueSize    int    `mapstructure:"queue_size" validate:"gte=0"`
	// MaxRetries bounds re-attempts of a transient model failure within one render.
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=5"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// StorageConfig configures the S3-compatible object store.
type StorageConfig struct {
	Region         string        `mapstructure:"region" validate:"required"`
	Bucket         string        `mapstructure:"bucket" validate:"required"`
	Endpoint       string        `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID    string        `mapstructure:"access_key_id"`
	SecretKey      string        `mapstructure:"secret_key"`
	PresignTTL     time.Duration `mapstructure:"presign_ttl" validate:"gt=0"`
	MaxPhotoBytes  int64         `mapstructure:"max_photo_bytes" validate:"gt=0"`
	MaxPhotoPixels int           `mapstructure:"max_photo_pixels" validate:"gt=0"`
}

// IdentityConfig configures the messaging identity provider.
type IdentityConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	AppID      string `mapstructure:"app_id" validate:"required"`
	AppSecret  string `mapstructure:"app_secret" validate:"required"`
	EventToken string `mapstructure:"event_token" validate:"required"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}
