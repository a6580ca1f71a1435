// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader. configPath may be empty,
// in which case only defaults and environment variables apply.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load loads configuration in strict order: defaults, then file, then
// environment, then validation. A config that fails validation is never
// returned.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.mergeFile(&cfg, l.configPath); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	l.applyDerived(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// mergeFile overlays values from a YAML config file. Unknown keys are
// rejected so typos fail loudly instead of silently using defaults.
func (l *Loader) mergeFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator flag
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// mergeEnv overlays BUILDMETAD_* environment variables onto cfg.
func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("BUILDMETAD_LISTEN", cfg.ListenAddr)
	cfg.DataDir = ParseString("BUILDMETAD_DATA", cfg.DataDir)
	cfg.DBPath = ParseString("BUILDMETAD_DB_PATH", cfg.DBPath)
	cfg.JournalDir = ParseString("BUILDMETAD_JOURNAL_DIR", cfg.JournalDir)
	cfg.LogLevel = ParseString("BUILDMETAD_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("BUILDMETAD_LOG_SERVICE", cfg.LogService)
	cfg.RateLimitRequests = ParseInt("BUILDMETAD_RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	cfg.RateLimitWindow = ParseDuration("BUILDMETAD_RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.CacheTTL = ParseDuration("BUILDMETAD_CACHE_TTL", cfg.CacheTTL)
	cfg.StatusInterval = ParseDuration("BUILDMETAD_STATUS_INTERVAL", cfg.StatusInterval)
	cfg.ShutdownTimeout = ParseDuration("BUILDMETAD_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Redis.Addr = ParseString("BUILDMETAD_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = ParseString("BUILDMETAD_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = ParseInt("BUILDMETAD_REDIS_DB", cfg.Redis.DB)
	cfg.Tracing.Enabled = ParseBool("BUILDMETAD_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.ExporterType = ParseString("BUILDMETAD_TRACING_EXPORTER", cfg.Tracing.ExporterType)
	cfg.Tracing.Endpoint = ParseString("BUILDMETAD_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Environment = ParseString("BUILDMETAD_TRACING_ENVIRONMENT", cfg.Tracing.Environment)
	cfg.Tracing.SamplingRate = ParseFloat("BUILDMETAD_TRACING_SAMPLING_RATE", cfg.Tracing.SamplingRate)
}

// applyDerived fills paths that default relative to the data directory.
func (l *Loader) applyDerived(cfg *AppConfig) {
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "buildmeta.db")
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = filepath.Join(cfg.DataDir, "journal")
	}
}
