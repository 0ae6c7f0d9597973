// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	LLM       LLMConfig       `mapstructure:"llm"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// IngestConfig governs run budgets and fan-out.
type IngestConfig struct {
	BatchSize         int           `mapstructure:"batch_size"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
	ValidityThreshold float64       `mapstructure:"validity_threshold"`
	Workers           int           `mapstructure:"workers"`
}

// QueueConfig sizes the in-memory task queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ExtractorConfig selects and tunes the extraction backend.
type ExtractorConfig struct {
	Backend   string          `mapstructure:"backend"`
	Hosted    HostedConfig    `mapstructure:"hosted"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// HostedConfig points at the hosted extraction service.
type HostedConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

// BrowserConfig configures the local chromedp backend.
type BrowserConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ScrollSteps       int           `mapstructure:"scroll_steps"`
	ScrollPause       time.Duration `mapstructure:"scroll_pause"`
	MaxTextRunes      int           `mapstructure:"max_text_runes"`
}

// RateLimitConfig throttles calls per extraction host.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// LLMConfig configures the Messages API client.
type LLMConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DBConfig controls access to the relational database. Backend "memory"
// keeps all state in process.
type DBConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects where extraction archives are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls trace sampling.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "360s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("ingest.batch_size", 5)
	v.SetDefault("ingest.run_timeout", "300s")
	v.SetDefault("ingest.validity_threshold", 0.7)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("queue.capacity", 64)
	v.SetDefault("extractor.backend", "hosted")
	v.SetDefault("extractor.hosted.base_url", "")
	v.SetDefault("extractor.hosted.api_key", "")
	v.SetDefault("extractor.hosted.poll_interval", "2s")
	v.SetDefault("extractor.hosted.max_wait", "3m")
	v.SetDefault("extractor.hosted.http_timeout", "30s")
	v.SetDefault("extractor.browser.max_parallel", 2)
	v.SetDefault("extractor.browser.user_agent", "careers-ingest/0.1")
	v.SetDefault("extractor.browser.navigation_timeout", "45s")
	v.SetDefault("extractor.browser.scroll_steps", 8)
	v.SetDefault("extractor.browser.scroll_pause", "400ms")
	v.SetDefault("extractor.browser.max_text_runes", 60000)
	v.SetDefault("extractor.rate_limit.rps", 1.0)
	v.SetDefault("extractor.rate_limit.burst", 2)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("db.backend", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("pubsub.backend", "memory")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "careers-snapshots")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "careers-ingest")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be > 0")
	}
	if c.Ingest.RunTimeout <= 0 {
		return fmt.Errorf("ingest.run_timeout must be > 0")
	}
	if c.Ingest.ValidityThreshold <= 0 || c.Ingest.ValidityThreshold > 1 {
		return fmt.Errorf("ingest.validity_threshold must be in (0, 1]")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}
	switch c.Extractor.Backend {
	case "hosted":
		if c.Extractor.Hosted.BaseURL == "" {
			return fmt.Errorf("extractor.hosted.base_url must be set for the hosted backend")
		}
	case "browser":
		if c.Extractor.Browser.MaxParallel <= 0 {
			return fmt.Errorf("extractor.browser.max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("extractor.backend must be hosted or browser, got %q", c.Extractor.Backend)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0")
	}
	switch c.DB.Backend {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("db.backend must be postgres or memory, got %q", c.DB.Backend)
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, local, or gcs, got %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic must be set for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be memory or gcp, got %q", c.PubSub.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in [0, 1]")
	}
	return nil
}
