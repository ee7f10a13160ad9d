package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "TRYON"

// defaults lists every known key. Keys without a sensible default map to nil
// so they are still bound to their environment variable.
var defaults = map[string]any{
	"server.port":            8080,
	"server.log_level":       "info",
	"server.public_base_url": "http://localhost:8080",

	"database.url":               nil,
	"database.max_open_conns":    25,
	"database.max_idle_conns":    25,
	"database.conn_max_lifetime": 5 * time.Minute,

	"redis.addr":     nil,
	"redis.password": nil,
	"redis.db":       0,

	"auth.jwt_secret":       nil,
	"auth.session_lifetime": 12 * time.Hour,
	"auth.admin_key_hash":   nil,

	"task.timeout":            4*time.Minute + 30*time.Second,
	"task.sweep_interval":     30 * time.Second,
	"task.client_poll_budget": 5 * time.Minute,
	"task.sweep_batch_size":   100,
	"task.notify_workers":     2,
	"task.notify_queue_size":  100,

	"pairing.backend":        "postgres",
	"pairing.token_ttl":      300 * time.Second,
	"pairing.sweep_interval": time.Minute,

	"worker.mode":            "http",
	"worker.base_url":        nil,
	"worker.api_token":       nil,
	"worker.model":           nil,
	"worker.webhook_secret":  nil,
	"worker.request_timeout": 30 * time.Second,

	"llm.gemini_api_key": nil,
	"llm.model_name":     "gemini-2.0-flash-preview-image-generation",
	"llm.worker_count":   2,
	"llm.queue_size":     50,
	"llm.max_retries":    2,
	"llm.retry_delay":    2 * time.Second,

	"storage.region":           "us-east-1",
	"storage.bucket":           nil,
	"storage.endpoint":         nil,
	"storage.access_key_id":    nil,
	"storage.secret_key":       nil,
	"storage.presign_ttl":      time.Hour,
	"storage.max_photo_bytes":  int64(10 << 20),
	"storage.max_photo_pixels": 1536,

	"identity.base_url":    "https://api.weixin.qq.com",
	"identity.app_id":      nil,
	"identity.app_secret":  nil,
	"identity.event_token": nil,

	"telemetry.enabled":       false,
	"telemetry.otlp_endpoint": "localhost:4317",
	"telemetry.service_name":  "tryon-api",
}

// Load configuration from environment variables and optionally config files.
// A .env file in the working directory is loaded first when present.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		if value != nil {
			v.SetDefault(key, value)
		}
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct tag validation followed by the cross-field rules that
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	var problems []string

	if c.Task.Timeout+c.Task.SweepInterval > c.Task.ClientPollBudget {
		problems = append(problems, fmt.Sprintf(
			"task.timeout (%s) plus task.sweep_interval (%s) exceeds task.client_poll_budget (%s)",
			c.Task.Timeout, c.Task.SweepInterval, c.Task.ClientPollBudget))
	}

	switch c.Worker.Mode {
	case "http":
		if c.Worker.BaseURL == "" {
			problems = append(problems, "worker.base_url is required when worker.mode is http")
		}
		if c.Worker.APIToken == "" {
			problems = append(problems, "worker.api_token is required when worker.mode is http")
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			problems = append(problems, "llm.gemini_api_key is required when worker.mode is gemini")
		}
	}

	if c.Pairing.Backend == "redis" && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when pairing.backend is redis")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
