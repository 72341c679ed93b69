// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not a valid URL", c.Backend.BaseURL)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.ImportTimeout < c.Backend.Timeout {
		return fmt.Errorf("backend.import_timeout must be at least backend.timeout")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend.max_retries must not be negative")
	}

	if c.Import.StatusPollInterval < 100*time.Millisecond {
		return fmt.Errorf("import.status_poll_interval must be at least 100ms")
	}
	if c.Import.StatusPollMaxAttempts < 1 {
		return fmt.Errorf("import.status_poll_max_attempts must be at least 1")
	}
	if c.Import.StatusPollMaxDuration <= 0 {
		return fmt.Errorf("import.status_poll_max_duration must be positive")
	}
	if c.Import.StatusPollMaxErrors < 1 {
		return fmt.Errorf("import.status_poll_max_errors must be at least 1")
	}
	if c.Import.JobPollMaxAttempts < 1 {
		return fmt.Errorf("import.job_poll_max_attempts must be at least 1")
	}

	if c.Cache.KnownImportedTTL <= 0 {
		return fmt.Errorf("cache.known_imported_ttl must be positive")
	}
	if c.Cache.KnownImportedCap < 1 {
		return fmt.Errorf("cache.known_imported_cap must be at least 1")
	}
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required unless cache.in_memory is set")
	}

	if c.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("sessions.idle_ttl must be positive")
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
