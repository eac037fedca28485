// Package config provides configuration loading for voiced.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with hardcoded defaults for anything left unset.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/voiceprintlabs/voiced/internal/telemetry"
)

// ErrInvalidConfig indicates a configuration value that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete voiced configuration.
type Config struct {
	Server    ServerConfig     `koanf:"server"`
	Index     IndexConfig      `koanf:"index"`
	Extractor ExtractorConfig  `koanf:"extractor"`
	Cache     CacheConfig      `koanf:"cache"`
	Search    SearchConfig     `koanf:"search"`
	Logging   LoggingConfig    `koanf:"logging"`
	Telemetry telemetry.Config `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	// Backend selects the index implementation: "chromem" or "qdrant".
	Backend string `koanf:"backend"`

	// Path is the chromem persistence directory.
	Path string `koanf:"path"`

	// Compress enables gzip compression for chromem storage.
	Compress bool `koanf:"compress"`

	// Dimension is the embedding dimension, fixed by the extractor model.
	Dimension int `koanf:"dimension"`

	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`
	QdrantTLS  bool   `koanf:"qdrant_tls"`
}

// ExtractorConfig holds the feature extractor client configuration.
type ExtractorConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// CacheConfig holds read cache configuration. The cache is on by default;
// Disabled turns it off without changing results, only latency.
type CacheConfig struct {
	Disabled   bool          `koanf:"disabled"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// SearchConfig holds recognition defaults.
type SearchConfig struct {
	Threshold float64 `koanf:"threshold"`
	TopK      int     `koanf:"top_k"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 16 * 1024 * 1024
	}

	// Index defaults (chromem is default - embedded, no external deps)
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "chromem"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "~/.local/share/voiced/index"
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 192
	}
	if cfg.Index.QdrantHost == "" {
		cfg.Index.QdrantHost = "localhost"
	}
	if cfg.Index.QdrantPort == 0 {
		cfg.Index.QdrantPort = 6334
	}

	// Extractor defaults
	if cfg.Extractor.BaseURL == "" {
		cfg.Extractor.BaseURL = "http://localhost:8080"
	}
	if cfg.Extractor.Model == "" {
		cfg.Extractor.Model = "eres2netv2"
	}
	if cfg.Extractor.Timeout == 0 {
		cfg.Extractor.Timeout = 30 * time.Second
	}

	// Cache defaults
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}

	// Search defaults
	if cfg.Search.Threshold == 0 {
		cfg.Search.Threshold = 0.6
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	cfg.Telemetry.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Index.Backend != "chromem" && c.Index.Backend != "qdrant" {
		return fmt.Errorf("%w: unknown index backend %q", ErrInvalidConfig, c.Index.Backend)
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("%w: index dimension must be positive", ErrInvalidConfig)
	}
	if c.Extractor.BaseURL == "" {
		return fmt.Errorf("%w: extractor base URL required", ErrInvalidConfig)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("%w: search threshold %f out of [0,1]", ErrInvalidConfig, c.Search.Threshold)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("%w: search top_k must be positive", ErrInvalidConfig)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("%w: cache ttl must not be negative", ErrInvalidConfig)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
