// Waymark - GPS Tracking and Live Telemetry
// Copyright 2026 Waymark contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waymark-gps/waymark

// Package config provides centralized configuration for all Waymark
// components: HTTP server, store, ingestion, live channel, API limits,
// security and logging.
//
// Configuration loading order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all settings
//  2. Config file: optional YAML config file (config.yaml)
//  3. Environment variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access
// from multiple goroutines.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Live     LiveConfig     `koanf:"live"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"` // Read/write timeout for HTTP handlers
}

// DatabaseConfig holds DuckDB store settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`       // Database file path, or ":memory:" for ephemeral
	MaxMemory string `koanf:"max_memory"` // DuckDB memory limit, e.g. "512MB"
	Threads   int    `koanf:"threads"`    // 0 = use runtime.NumCPU()
}

// IngestConfig holds report-ingestion settings.
type IngestConfig struct {
	// MaxTimestampSkew bounds how far in the future a reported sample
	// timestamp may lie before it is rejected. Zero disables the check.
	MaxTimestampSkew time.Duration `koanf:"max_timestamp_skew"`
}

// LiveConfig holds fan-out bus and WebSocket settings.
type LiveConfig struct {
	ClientBufferSize int           `koanf:"client_buffer_size"` // Per-client outbound queue depth
	WriteTimeout     time.Duration `koanf:"write_timeout"`
	PongTimeout      time.Duration `koanf:"pong_timeout"`
	PingInterval     time.Duration `koanf:"ping_interval"`
	MaxMessageSize   int64         `koanf:"max_message_size"`
}

// APIConfig holds query-shaping limits for the read API.
type APIConfig struct {
	DefaultTrackHours int `koanf:"default_track_hours"` // Window when the hours parameter is absent
	MaxTrackHours     int `koanf:"max_track_hours"`     // Upper bound on the hours parameter
}

// SecurityConfig holds CORS and rate-limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"` // Include caller file:line in log entries
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH must not be empty")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative, got %d", c.Database.Threads)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultTrackHours < 1 {
		return fmt.Errorf("API_DEFAULT_TRACK_HOURS must be at least 1, got %d", c.API.DefaultTrackHours)
	}
	if c.API.MaxTrackHours < c.API.DefaultTrackHours {
		return fmt.Errorf("API_MAX_TRACK_HOURS (%d) must not be below API_DEFAULT_TRACK_HOURS (%d)",
			c.API.MaxTrackHours, c.API.DefaultTrackHours)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.Security.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
