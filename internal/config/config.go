// SPDX-License-Identifier: MIT

// Package config loads and validates the buildmetad configuration with
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// ProjectSettings declares a project known to this daemon together with
// its default build timeout. A zero DefaultTimeout means the project has
// no configured default.
type ProjectSettings struct {
	ID             string        `yaml:"id"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// RunnerSettings declares a runner together with the maximum timeout it
// allows. A zero MaxTimeout means the runner imposes no cap.
type RunnerSettings struct {
	ID         string        `yaml:"id"`
	MaxTimeout time.Duration `yaml:"max_timeout"`
}

// RedisConfig holds the optional Redis cache connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // "grpc" or "http"
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	DBPath     string `yaml:"db_path"`     // defaults to <data_dir>/buildmeta.db
	JournalDir string `yaml:"journal_dir"` // defaults to <data_dir>/journal

	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`

	// Per-IP request budget for the HTTP API.
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// TTL for cached project/runner settings lookups.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Interval for atomic status.json snapshots; zero disables the exporter.
	StatusInterval time.Duration `yaml:"status_interval"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Redis   RedisConfig   `yaml:"redis"`
	Tracing TracingConfig `yaml:"tracing"`

	Projects []ProjectSettings `yaml:"projects"`
	Runners  []RunnerSettings  `yaml:"runners"`

	Version string `yaml:"-"`
}

// StatusFile returns the path of the atomic status snapshot.
func (c AppConfig) StatusFile() string {
	return filepath.Join(c.DataDir, "status.json")
}

// Defaults returns the built-in configuration defaults.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:        ":8080",
		DataDir:           "/var/lib/buildmetad",
		LogLevel:          "info",
		LogService:        "buildmetad",
		RateLimitRequests: 120,
		RateLimitWindow:   time.Minute,
		CacheTTL:          5 * time.Minute,
		StatusInterval:    30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Tracing: TracingConfig{
			ExporterType: "grpc",
			SamplingRate: 1.0,
		},
	}
}

// Validate checks the configuration for values that would break the
// daemon at runtime. It returns the first problem found.
func Validate(cfg AppConfig) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if cfg.RateLimitRequests <= 0 {
		return fmt.Errorf("rate_limit_requests must be positive, got %d", cfg.RateLimitRequests)
	}
	if cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be positive, got %v", cfg.RateLimitWindow)
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %v", cfg.CacheTTL)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Tracing.Enabled {
		switch cfg.Tracing.ExporterType {
		case "grpc", "http":
		default:
			return fmt.Errorf("tracing exporter_type must be grpc or http, got %q", cfg.Tracing.ExporterType)
		}
		if cfg.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing endpoint must be set when tracing is enabled")
		}
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			return fmt.Errorf("tracing sampling_rate must be in [0,1], got %v", cfg.Tracing.SamplingRate)
		}
	}
	seen := make(map[string]struct{}, len(cfg.Projects))
	for _, p := range cfg.Projects {
		if p.ID == "" {
			return fmt.Errorf("project settings entry with empty id")
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate project settings for %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.DefaultTimeout < 0 {
			return fmt.Errorf("project %q default_timeout must not be negative", p.ID)
		}
	}
	seen = make(map[string]struct{}, len(cfg.Runners))
	for _, r := range cfg.Runners {
		if r.ID == "" {
			return fmt.Errorf("runner settings entry with empty id")
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate runner settings for %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.MaxTimeout < 0 {
			return fmt.Errorf("runner %q max_timeout must not be negative", r.ID)
		}
	}
	return nil
}
