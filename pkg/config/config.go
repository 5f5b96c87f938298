package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/brace/pkg/observability"
	"github.com/platinummonkey/brace/pkg/plugins"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Config holds all application configuration
type Config struct {
	Plugins       PluginsConfig
	Server        ServerConfig
	Journal       JournalConfig
	Webhook       WebhookConfig
	Observability ObservabilityConfig
}

// PluginsConfig holds plugin discovery settings
type PluginsConfig struct {
	Dir            string
	Extension      string
	Watch          bool
	AutoStart      bool
	SettleDelay    time.Duration
	RescanSchedule string // cron spec, empty disables periodic rescans

	// Inspector cache
	ManifestCacheSize int
	ManifestCacheTTL  time.Duration
}

// ServerConfig holds admin HTTP server configuration
type ServerConfig struct {
	Addr            string // empty disables the admin API
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int // mutating requests per minute per client, 0 disables
}

// JournalConfig holds lifecycle journal settings
type JournalConfig struct {
	DSN       string // sqlite path, empty disables the journal
	Retention time.Duration
}

// WebhookConfig holds lifecycle webhook settings
type WebhookConfig struct {
	URL          string // empty disables the webhook
	Secret       string
	FailuresOnly bool
	MaxAttempts  int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  logrus.Level
	LogFormat string
	Lang      string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Plugins:       loadPluginsConfig(),
		Server:        loadServerConfig(),
		Journal:       loadJournalConfig(),
		Webhook:       loadWebhookConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadPluginsConfig() PluginsConfig {
	return PluginsConfig{
		Dir:               getEnv("BRACE_PLUGINS_DIR", "./plugins"),
		Extension:         getEnv("BRACE_PLUGIN_EXTENSION", plugins.DefaultExtension),
		Watch:             getEnvBool("BRACE_WATCH", false),
		AutoStart:         getEnvBool("BRACE_WATCH_AUTOSTART", false),
		SettleDelay:       getEnvDuration("BRACE_WATCH_SETTLE_DELAY", 500*time.Millisecond),
		RescanSchedule:    getEnv("BRACE_RESCAN_SCHEDULE", ""),
		ManifestCacheSize: getEnvInt("BRACE_MANIFEST_CACHE_SIZE", 128),
		ManifestCacheTTL:  getEnvDuration("BRACE_MANIFEST_CACHE_TTL", 10*time.Minute),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            getEnv("BRACE_ADMIN_ADDR", ":8081"),
		ReadTimeout:     getEnvDuration("BRACE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BRACE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BRACE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BRACE_SHUTDOWN_TIMEOUT", 30*time.Second),
		RateLimit:       getEnvInt("BRACE_ADMIN_RATE_LIMIT", 60),
	}
}

func loadJournalConfig() JournalConfig {
	return JournalConfig{
		DSN:       getEnv("BRACE_JOURNAL_DSN", ""),
		Retention: getEnvDuration("BRACE_JOURNAL_RETENTION", 30*24*time.Hour),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		URL:          getEnv("BRACE_WEBHOOK_URL", ""),
		Secret:       getEnv("BRACE_WEBHOOK_SECRET", ""),
		FailuresOnly: getEnvBool("BRACE_WEBHOOK_FAILURES_ONLY", false),
		MaxAttempts:  getEnvInt("BRACE_WEBHOOK_MAX_ATTEMPTS", 5),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("BRACE_LOG_LEVEL", "info")),
		LogFormat:          getEnv("BRACE_LOG_FORMAT", observability.FormatText),
		Lang:               getEnv("BRACE_LANG", "en"),
		MetricsEnabled:     getEnvBool("BRACE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("BRACE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("BRACE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("BRACE_OTEL_SERVICE_NAME", "brace"),
		OTelServiceVersion: getEnv("BRACE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("BRACE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("BRACE_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Plugins.Dir == "" {
		return fmt.Errorf("plugins directory is required")
	}
	if !strings.HasPrefix(c.Plugins.Extension, ".") || len(c.Plugins.Extension) < 2 {
		return fmt.Errorf("invalid plugin extension: %q (must start with a dot)", c.Plugins.Extension)
	}
	if c.Plugins.RescanSchedule != "" {
		if _, err := cron.ParseStandard(c.Plugins.RescanSchedule); err != nil {
			return fmt.Errorf("invalid rescan schedule %q: %w", c.Plugins.RescanSchedule, err)
		}
	}
	if c.Plugins.ManifestCacheSize <= 0 {
		return fmt.Errorf("manifest cache size must be positive")
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("admin rate limit must not be negative")
	}

	if c.Webhook.URL != "" && c.Webhook.MaxAttempts <= 0 {
		return fmt.Errorf("webhook max attempts must be positive")
	}

	if err := observability.ValidateFormat(c.Observability.LogFormat); err != nil {
		return err
	}
	if _, err := language.Parse(c.Observability.Lang); err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Observability.Lang, err)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
		}
	}

	return nil
}

// OTel returns the OpenTelemetry settings
func (c *Config) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
		SampleRatio:    c.Observability.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns an environment variable as a float or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
