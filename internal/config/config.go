// Package config provides configuration management for the ingest engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pricehub/internal/fetch"
	"pricehub/internal/sink"
)

// Configuration validation errors.
var (
	ErrMissingCatalog      = errors.New("ingest.catalog is required")
	ErrInvalidConcurrency  = errors.New("ingest.max_concurrent_fetches must be at least 1")
	ErrInvalidFetchTimeout = errors.New("ingest.fetch_timeout_sec must be at least 1")
	ErrInvalidRunTimeout   = errors.New("ingest.run_timeout_sec must be non-negative")
	ErrInvalidRate         = errors.New("ingest.requests_per_second must be non-negative")
	ErrInvalidBodyLimit    = errors.New("ingest.max_body_kb must be at least 1")
	ErrInvalidDedupe       = errors.New("sink.dedupe must be 'none' or 'daily'")
	ErrInvalidLogLevel     = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config represents the complete ingest configuration.
type Config struct {
	Ingest  IngestConfig  `yaml:"ingest"`
	Sink    SinkConfig    `yaml:"sink"`
	Logging LoggingConfig `yaml:"logging"`
}

// IngestConfig controls fetching and the run lifecycle.
type IngestConfig struct {
	Catalog              string  `yaml:"catalog"`
	MaxConcurrentFetches int     `yaml:"max_concurrent_fetches"`
	FetchTimeoutSec      int     `yaml:"fetch_timeout_sec"`
	RunTimeoutSec        int     `yaml:"run_timeout_sec"`
	RequestsPerSecond    float64 `yaml:"requests_per_second"`
	MaxBodyKB            int     `yaml:"max_body_kb"`
	UserAgent            string  `yaml:"user_agent"`
}

type SinkConfig struct {
	Dedupe string `yaml:"dedupe"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when a key is absent.
func Default() Config {
	return Config{
		Ingest: IngestConfig{
			Catalog:              "configs/sources.yaml",
			MaxConcurrentFetches: 4,
			FetchTimeoutSec:      15,
			RunTimeoutSec:        120,
			MaxBodyKB:            8192,
			UserAgent:            "pricehub-ingest/1.0",
		},
		Sink:    SinkConfig{Dedupe: string(sink.DedupeNone)},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from a YAML file on top of Default. A
// relative catalog path is resolved against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Ingest.Catalog != "" && !filepath.IsAbs(cfg.Ingest.Catalog) {
		cfg.Ingest.Catalog = filepath.Join(filepath.Dir(path), cfg.Ingest.Catalog)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Ingest.Catalog) == "" {
		return ErrMissingCatalog
	}
	if c.Ingest.MaxConcurrentFetches < 1 {
		return ErrInvalidConcurrency
	}
	if c.Ingest.FetchTimeoutSec < 1 {
		return ErrInvalidFetchTimeout
	}
	if c.Ingest.RunTimeoutSec < 0 {
		return ErrInvalidRunTimeout
	}
	if c.Ingest.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}
	if c.Ingest.MaxBodyKB < 1 {
		return ErrInvalidBodyLimit
	}

	if _, err := sink.ParseDedupe(c.Sink.Dedupe); err != nil {
		return ErrInvalidDedupe
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// FetchOptions maps the ingest section onto fetch.Options.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:           time.Duration(c.Ingest.FetchTimeoutSec) * time.Second,
		RequestsPerSecond: c.Ingest.RequestsPerSecond,
		UserAgent:         c.Ingest.UserAgent,
		MaxBodyBytes:      int64(c.Ingest.MaxBodyKB) * 1024,
	}
}

// RunTimeout is zero when runs are unbounded.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Ingest.RunTimeoutSec) * time.Second
}

func (c *Config) Dedupe() sink.Dedupe {
	d, _ := sink.ParseDedupe(c.Sink.Dedupe)
	return d
}
