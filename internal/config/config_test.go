package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFile_Defaults(t *testing.T) {
	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "chromem", cfg.Index.Backend)
	assert.Equal(t, 192, cfg.Index.Dimension)
	assert.Equal(t, "http://localhost:8080", cfg.Extractor.BaseURL)
	assert.Equal(t, "eres2netv2", cfg.Extractor.Model)
	assert.False(t, cfg.Cache.Disabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.InDelta(t, 0.6, cfg.Search.Threshold, 1e-9)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
}

func TestLoadWithFile_EnvOverrides(t *testing.T) {
	t.Setenv("VOICED_SERVER_HTTP_PORT", "9100")
	t.Setenv("VOICED_INDEX_BACKEND", "qdrant")
	t.Setenv("VOICED_INDEX_QDRANT_HOST", "qdrant.internal")
	t.Setenv("VOICED_EXTRACTOR_BASE_URL", "http://extractor:9000")
	t.Setenv("VOICED_SEARCH_THRESHOLD", "0.75")
	t.Setenv("VOICED_LOGGING_LEVEL", "debug")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Index.QdrantHost)
	assert.Equal(t, "http://extractor:9000", cfg.Extractor.BaseURL)
	assert.InDelta(t, 0.75, cfg.Search.Threshold, 1e-9)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithFile_RejectsForeignPath(t *testing.T) {
	_, err := LoadWithFile("/tmp/evil.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file must be in")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		applyDefaults(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, true},
		{"unknown backend", func(c *Config) { c.Index.Backend = "faiss" }, true},
		{"zero dimension", func(c *Config) { c.Index.Dimension = -5 }, true},
		{"no extractor url", func(c *Config) { c.Extractor.BaseURL = "" }, true},
		{"threshold above one", func(c *Config) { c.Search.Threshold = 1.5 }, true},
		{"zero top_k", func(c *Config) { c.Search.TopK = -1 }, true},
		{"bad telemetry sampling", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.SamplingRate = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
