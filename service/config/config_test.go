package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.WatchesEnabled())
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "https://{name}.subgraph.x.superfluid.dev/", cfg.SubgraphURLTemplate)
	assert.Equal(t, 30*time.Second, cfg.SubgraphTimeout)
	assert.Equal(t, int64(10), cfg.DefaultChainID)
	assert.Equal(t, 30*time.Second, cfg.CacheLatestTTL)
	assert.Equal(t, time.Hour, cfg.CachePinnedTTL)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "sfviz-snapshots", cfg.TemporalTaskQueue)
	assert.Equal(t, 15*time.Minute, cfg.DefaultWatchInterval)
	assert.Equal(t, time.Minute, cfg.MinWatchInterval)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TEMPORAL_HOST", "temporal.example.com:7233")
	os.Setenv("SUBGRAPH_URL_TEMPLATE", "http://graph-node:8000/subgraphs/name/{name}")
	os.Setenv("SUBGRAPH_TIMEOUT", "5s")
	os.Setenv("DEFAULT_CHAIN_ID", "137")
	os.Setenv("CACHE_LATEST_TTL", "10s")
	os.Setenv("CACHE_PINNED_TTL", "24h")
	os.Setenv("DEFAULT_WATCH_INTERVAL", "1h")
	os.Setenv("MIN_WATCH_INTERVAL", "5m")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.True(t, cfg.WatchesEnabled())
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "temporal.example.com:7233", cfg.TemporalHost)
	assert.Equal(t, "http://graph-node:8000/subgraphs/name/{name}", cfg.SubgraphURLTemplate)
	assert.Equal(t, 5*time.Second, cfg.SubgraphTimeout)
	assert.Equal(t, int64(137), cfg.DefaultChainID)
	assert.Equal(t, 10*time.Second, cfg.CacheLatestTTL)
	assert.Equal(t, 24*time.Hour, cfg.CachePinnedTTL)
	assert.Equal(t, time.Hour, cfg.DefaultWatchInterval)
	assert.Equal(t, 5*time.Minute, cfg.MinWatchInterval)

	assert.NoError(t, cfg.ValidateWorker())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "invalid duration",
			env:     map[string]string{"DEFAULT_WATCH_INTERVAL": "invalid"},
			wantErr: "invalid duration",
		},
		{
			name:    "min interval greater than default",
			env:     map[string]string{"DEFAULT_WATCH_INTERVAL": "1m", "MIN_WATCH_INTERVAL": "5m"},
			wantErr: "cannot be greater than",
		},
		{
			name:    "invalid chain id",
			env:     map[string]string{"DEFAULT_CHAIN_ID": "optimism"},
			wantErr: "invalid integer",
		},
		{
			name:    "template without placeholder",
			env:     map[string]string{"SUBGRAPH_URL_TEMPLATE": "https://example.com/"},
			wantErr: "{name}",
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: "LOG_LEVEL",
		},
		{
			name:    "invalid cache ttl",
			env:     map[string]string{"CACHE_PINNED_TTL": "forever"},
			wantErr: "CACHE_PINNED_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanupEnv()
			defer cleanupEnv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func validConfig() *Config {
	return &Config{
		ServerAddr:           ":8080",
		SubgraphURLTemplate:  "https://{name}.subgraph.x.superfluid.dev/",
		SubgraphTimeout:      30 * time.Second,
		CacheLatestTTL:       30 * time.Second,
		CachePinnedTTL:       time.Hour,
		TemporalHost:         "localhost:7233",
		TemporalNamespace:    "default",
		TemporalTaskQueue:    "sfviz-snapshots",
		DefaultWatchInterval: 15 * time.Minute,
		MinWatchInterval:     time.Minute,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_InvalidIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultWatchInterval = 10 * time.Second
	cfg.MinWatchInterval = 30 * time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MinWatchInterval cannot be greater than DefaultWatchInterval")
}

func TestValidate_TooShortInterval(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultWatchInterval = 500 * time.Millisecond
	cfg.MinWatchInterval = 100 * time.Millisecond

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be at least 1 second")
}

func TestValidateWorker_RequiresDatabase(t *testing.T) {
	cfg := validConfig()

	err := cfg.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	cfg.DatabaseURL = "postgres://localhost/test"
	assert.NoError(t, cfg.ValidateWorker())
}

func TestMustLoad_Panics(t *testing.T) {
	os.Setenv("SUBGRAPH_TIMEOUT", "soon")
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"DATABASE_URL",
		"SERVER_ADDR",
		"LOG_LEVEL",
		"NATS_URL",
		"TEMPORAL_HOST",
		"TEMPORAL_NAMESPACE",
		"TEMPORAL_TASK_QUEUE",
		"SUBGRAPH_URL_TEMPLATE",
		"SUBGRAPH_TIMEOUT",
		"DEFAULT_CHAIN_ID",
		"CACHE_LATEST_TTL",
		"CACHE_PINNED_TTL",
		"DEFAULT_WATCH_INTERVAL",
		"MIN_WATCH_INTERVAL",
	} {
		os.Unsetenv(key)
	}
}
