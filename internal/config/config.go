// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package config holds the typed configuration for the Pitwall service,
// loaded from struct defaults, an optional YAML file, and PITWALL_* env vars
// (in that order of precedence) via koanf.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Import    ImportConfig    `koanf:"import"`
	Cache     CacheConfig     `koanf:"cache"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP surface facing the dashboard UI.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// BackendConfig configures the client for the black-box results backend.
type BackendConfig struct {
	BaseURL string `koanf:"base_url"`

	// Timeout bounds interactive calls (search, status reads).
	Timeout time.Duration `koanf:"timeout"`

	// ImportTimeout bounds the import submit call, which can run minutes
	// for large events when the backend completes synchronously.
	ImportTimeout time.Duration `koanf:"import_timeout"`

	// MaxRetries and RetryBaseDelay govern HTTP 429 backoff.
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
}

// DiscoveryConfig configures provider discovery and its circuit breaker.
type DiscoveryConfig struct {
	Timeout time.Duration `koanf:"timeout"`

	// Breaker settings; discovery failures are expected when the provider
	// is slow, so the breaker sheds load instead of piling up requests.
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRate float64       `koanf:"breaker_failure_rate"`
}

// ImportConfig configures the import orchestrator's polling budgets.
type ImportConfig struct {
	// StatusPollInterval is the fixed delay between authoritative event
	// depth reads while an import is in flight.
	StatusPollInterval time.Duration `koanf:"status_poll_interval"`

	// StatusPollMaxAttempts, StatusPollMaxDuration and
	// StatusPollMaxErrors bound the status poll loop; exceeding any of
	// them resolves the pending state instead of hanging it.
	StatusPollMaxAttempts int           `koanf:"status_poll_max_attempts"`
	StatusPollMaxDuration time.Duration `koanf:"status_poll_max_duration"`
	StatusPollMaxErrors   int           `koanf:"status_poll_max_errors"`

	// JobPollInterval and JobPollMaxAttempts bound polling of queued
	// ingestion job handles.
	JobPollInterval    time.Duration `koanf:"job_poll_interval"`
	JobPollMaxAttempts int           `koanf:"job_poll_max_attempts"`

	// RecoveryDelay is how long to wait after a submit connection failure
	// before re-querying authoritative state.
	RecoveryDelay time.Duration `koanf:"recovery_delay"`

	// ProgressLinger keeps the final progress record visible after
	// terminal success so the user can see the final counts.
	ProgressLinger time.Duration `koanf:"progress_linger"`

	// PollRatePerSecond caps the aggregate backend poll rate across all
	// concurrent imports.
	PollRatePerSecond float64 `koanf:"poll_rate_per_second"`
}

// CacheConfig configures the badger-backed local cache store.
type CacheConfig struct {
	Path string `koanf:"path"`

	// InMemory runs badger without a disk directory. Used in tests.
	InMemory bool `koanf:"in_memory"`

	// KnownImportedTTL and KnownImportedCap bound the known-imported id
	// set; entries beyond either are pruned on load.
	KnownImportedTTL time.Duration `koanf:"known_imported_ttl"`
	KnownImportedCap int           `koanf:"known_imported_cap"`

	// GCInterval is how often badger value-log GC runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SessionsConfig configures search session lifecycle.
type SessionsConfig struct {
	IdleTTL      time.Duration `koanf:"idle_ttl"`
	ReapInterval time.Duration `koanf:"reap_interval"`
}

// CatalogConfig configures the track catalog loader.
type CatalogConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// LoggingConfig configures the logging facade.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8247,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Backend: BackendConfig{
			BaseURL:        "http://127.0.0.1:8080",
			Timeout:        30 * time.Second,
			ImportTimeout:  5 * time.Minute,
			MaxRetries:     5,
			RetryBaseDelay: time.Second,
		},
		Discovery: DiscoveryConfig{
			Timeout:            45 * time.Second,
			BreakerMaxRequests: 3,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     2 * time.Minute,
			BreakerMinRequests: 10,
			BreakerFailureRate: 0.6,
		},
		Import: ImportConfig{
			StatusPollInterval:    5 * time.Second,
			StatusPollMaxAttempts: 120,
			StatusPollMaxDuration: 10 * time.Minute,
			StatusPollMaxErrors:   5,
			JobPollInterval:       3 * time.Second,
			JobPollMaxAttempts:    100,
			RecoveryDelay:         2 * time.Second,
			ProgressLinger:        5 * time.Second,
			PollRatePerSecond:     10,
		},
		Cache: CacheConfig{
			Path:             "/data/pitwall/cache",
			InMemory:         false,
			KnownImportedTTL: 7 * 24 * time.Hour,
			KnownImportedCap: 200,
			GCInterval:       10 * time.Minute,
		},
		Sessions: SessionsConfig{
			IdleTTL:      30 * time.Minute,
			ReapInterval: 5 * time.Minute,
		},
		Catalog: CatalogConfig{
			RefreshInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
