package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Optional for the HTTP server (watches are
	// disabled without it) and required by the worker.
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Subgraph configuration
	SubgraphURLTemplate string
	SubgraphTimeout     time.Duration
	DefaultChainID      int64

	// Query cache configuration
	CacheLatestTTL time.Duration
	CachePinnedTTL time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Watch scheduling configuration
	DefaultWatchInterval time.Duration
	MinWatchInterval     time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", cfg.LogLevel))
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.SubgraphURLTemplate = getEnvOrDefault("SUBGRAPH_URL_TEMPLATE", "https://{name}.subgraph.x.superfluid.dev/")
	if !strings.Contains(cfg.SubgraphURLTemplate, "{name}") {
		errs = append(errs, fmt.Errorf("SUBGRAPH_URL_TEMPLATE must contain the {name} placeholder"))
	}

	timeout, err := parseDuration("SUBGRAPH_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SubgraphTimeout = timeout
	}

	chainID, err := parseInt64("DEFAULT_CHAIN_ID", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultChainID = chainID
	}

	latestTTL, err := parseDuration("CACHE_LATEST_TTL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CacheLatestTTL = latestTTL
	}

	pinnedTTL, err := parseDuration("CACHE_PINNED_TTL", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CachePinnedTTL = pinnedTTL
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "sfviz-snapshots")

	defaultInterval, err := parseDuration("DEFAULT_WATCH_INTERVAL", "15m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultWatchInterval = defaultInterval
	}

	minInterval, err := parseDuration("MIN_WATCH_INTERVAL", "1m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinWatchInterval = minInterval
	}

	if cfg.MinWatchInterval > cfg.DefaultWatchInterval {
		errs = append(errs, fmt.Errorf("MIN_WATCH_INTERVAL (%v) cannot be greater than DEFAULT_WATCH_INTERVAL (%v)",
			cfg.MinWatchInterval, cfg.DefaultWatchInterval))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if !strings.Contains(c.SubgraphURLTemplate, "{name}") {
		errs = append(errs, fmt.Errorf("SubgraphURLTemplate must contain {name}"))
	}

	if c.SubgraphTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SubgraphTimeout must be positive"))
	}

	if c.CacheLatestTTL <= 0 || c.CachePinnedTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache TTLs must be positive"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.MinWatchInterval > c.DefaultWatchInterval {
		errs = append(errs, fmt.Errorf("MinWatchInterval cannot be greater than DefaultWatchInterval"))
	}

	if c.MinWatchInterval < time.Second {
		errs = append(errs, fmt.Errorf("MinWatchInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ValidateWorker additionally checks what the snapshot worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("configuration validation failed: DATABASE_URL is required by the worker")
	}
	return nil
}

// WatchesEnabled reports whether the server can persist and schedule watches.
func (c *Config) WatchesEnabled() bool {
	return c.DatabaseURL != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt64 parses an integer from an environment variable or uses a default.
func parseInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
