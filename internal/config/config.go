// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads service configuration.
//
// Values are layered, later sources winning:
//  1. built-in defaults (Default)
//  2. the YAML config file, validated against the generated JSON Schema
//  3. DATABASE_URL and REDIS_URL, then RECOVERY_* environment variables
//  4. command-line flags the user actually set
package config

import (
	"net"
	"net/url"
	"slices"
	"time"

	"github.com/samber/oops"
)

// Backend names.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"

	EmailConsole = "console"
	EmailSMTP    = "smtp"
)

// Config is the complete service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server" envPrefix:"SERVER_"`
	Observability ObservabilityConfig `koanf:"observability" envPrefix:"OBSERVABILITY_"`
	Database      DatabaseConfig      `koanf:"database" envPrefix:"DATABASE_"`
	Reset         ResetConfig         `koanf:"reset" envPrefix:"RESET_"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Email         EmailConfig         `koanf:"email" envPrefix:"EMAIL_"`
	Log           LogConfig           `koanf:"log" envPrefix:"LOG_"`
	Purge         PurgeConfig         `koanf:"purge" envPrefix:"PURGE_"`
}

// ServerConfig configures the public HTTP API.
type ServerConfig struct {
	Addr               string        `koanf:"addr" env:"ADDR" jsonschema:"description=Listen address of the reset API"`
	ReadTimeout        time.Duration `koanf:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout       time.Duration `koanf:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout        time.Duration `koanf:"idle_timeout" env:"IDLE_TIMEOUT"`
	RequestTimeout     time.Duration `koanf:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// ObservabilityConfig configures the metrics and health probe listener.
type ObservabilityConfig struct {
	Enabled bool   `koanf:"enabled" env:"ENABLED"`
	Addr    string `koanf:"addr" env:"ADDR"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url" env:"URL" jsonschema:"description=PostgreSQL connection URL"`
	MaxConns       int32         `koanf:"max_conns" env:"MAX_CONNS" jsonschema:"minimum=0"`
	ConnectRetries uint64        `koanf:"connect_retries" env:"CONNECT_RETRIES"`
	ConnectBackoff time.Duration `koanf:"connect_backoff" env:"CONNECT_BACKOFF"`
}

// ResetConfig configures reset links and background token issuance.
type ResetConfig struct {
	FrontendBaseURL string        `koanf:"frontend_base_url" env:"FRONTEND_BASE_URL" jsonschema:"description=Absolute URL of the web app that hosts /reset-password"`
	IssueQueueSize  int           `koanf:"issue_queue_size" env:"ISSUE_QUEUE_SIZE" jsonschema:"minimum=1"`
	IssueWorkers    int           `koanf:"issue_workers" env:"ISSUE_WORKERS" jsonschema:"minimum=1"`
	IssueTimeout    time.Duration `koanf:"issue_timeout" env:"ISSUE_TIMEOUT"`
}

// RateLimitConfig selects the request limiter backend. The window is fixed
// at three attempts per fifteen minutes.
type RateLimitConfig struct {
	Backend  string `koanf:"backend" env:"BACKEND" jsonschema:"enum=memory,enum=redis"`
	RedisURL string `koanf:"redis_url" env:"REDIS_URL"`
}

// EmailConfig selects and tunes email delivery.
type EmailConfig struct {
	Backend     string        `koanf:"backend" env:"BACKEND" jsonschema:"enum=console,enum=smtp"`
	Async       bool          `koanf:"async" env:"ASYNC"`
	QueueSize   int           `koanf:"queue_size" env:"QUEUE_SIZE" jsonschema:"minimum=1"`
	SendTimeout time.Duration `koanf:"send_timeout" env:"SEND_TIMEOUT"`
	SMTP        SMTPConfig    `koanf:"smtp" envPrefix:"SMTP_"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string        `koanf:"host" env:"HOST"`
	Port     int           `koanf:"port" env:"PORT" jsonschema:"minimum=1,maximum=65535"`
	Username string        `koanf:"username" env:"USERNAME"`
	Password string        `koanf:"password" env:"PASSWORD"`
	From     string        `koanf:"from" env:"FROM"`
	Timeout  time.Duration `koanf:"timeout" env:"TIMEOUT"`
	// RequireTLS refuses relays that do not offer STARTTLS. It can only be
	// turned off for a loopback relay.
	RequireTLS bool `koanf:"require_tls" env:"REQUIRE_TLS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" env:"LEVEL" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" env:"FORMAT" jsonschema:"enum=json,enum=text"`
}

// PurgeConfig configures the reset token retention sweep.
type PurgeConfig struct {
	Retention time.Duration `koanf:"retention" env:"RETENTION"`
	// Interval between sweeps while serving. Zero disables the sweep.
	Interval time.Duration `koanf:"interval" env:"INTERVAL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 25 * time.Second,
		},
		Observability: ObservabilityConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9100",
		},
		Database: DatabaseConfig{
			ConnectRetries: 5,
			ConnectBackoff: 500 * time.Millisecond,
		},
		Reset: ResetConfig{
			FrontendBaseURL: "http://localhost:3000",
			IssueQueueSize:  256,
			IssueWorkers:    4,
			IssueTimeout:    30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend: RateLimitMemory,
		},
		Email: EmailConfig{
			Backend:     EmailConsole,
			Async:       true,
			QueueSize:   256,
			SendTimeout: 30 * time.Second,
			SMTP: SMTPConfig{
				Port:       587,
				Timeout:    10 * time.Second,
				RequireTLS: true,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Purge: PurgeConfig{
			Retention: 30 * 24 * time.Hour,
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
// It does not require a database URL; commands that need one check for it.
func (c *Config) Validate() error {
	if err := validateAddr("server.addr", c.Server.Addr); err != nil {
		return err
	}
	if c.Observability.Enabled {
		if err := validateAddr("observability.addr", c.Observability.Addr); err != nil {
			return err
		}
	}

	u, err := url.Parse(c.Reset.FrontendBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("reset.frontend_base_url", c.Reset.FrontendBaseURL, "must be an absolute http(s) URL")
	}
	if c.Reset.IssueQueueSize < 1 {
		return invalid("reset.issue_queue_size", c.Reset.IssueQueueSize, "must be at least 1")
	}
	if c.Reset.IssueWorkers < 1 {
		return invalid("reset.issue_workers", c.Reset.IssueWorkers, "must be at least 1")
	}
	if c.Reset.IssueTimeout <= 0 {
		return invalid("reset.issue_timeout", c.Reset.IssueTimeout.String(), "must be positive")
	}

	switch c.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.RateLimit.RedisURL == "" {
			return invalid("rate_limit.redis_url", "", "is required for the redis backend")
		}
	default:
		return invalid("rate_limit.backend", c.RateLimit.Backend, "must be memory or redis")
	}

	switch c.Email.Backend {
	case EmailConsole:
	case EmailSMTP:
		if c.Email.SMTP.Host == "" {
			return invalid("email.smtp.host", "", "is required for the smtp backend")
		}
		if c.Email.SMTP.From == "" {
			return invalid("email.smtp.from", "", "is required for the smtp backend")
		}
		if c.Email.SMTP.Port < 1 || c.Email.SMTP.Port > 65535 {
			return invalid("email.smtp.port", c.Email.SMTP.Port, "must be between 1 and 65535")
		}
		if !c.Email.SMTP.RequireTLS && !isLoopbackHost(c.Email.SMTP.Host) {
			return invalid("email.smtp.require_tls", false, "may only be disabled for a loopback relay")
		}
		if !c.Email.Async {
			return invalid("email.async", false, "must be enabled for the smtp backend")
		}
	default:
		return invalid("email.backend", c.Email.Backend, "must be console or smtp")
	}
	if c.Email.Async && c.Email.QueueSize < 1 {
		return invalid("email.queue_size", c.Email.QueueSize, "must be at least 1")
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return invalid("log.level", c.Log.Level, "must be debug, info, warn or error")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "must be json or text")
	}

	if c.Purge.Retention <= 0 {
		return invalid("purge.retention", c.Purge.Retention.String(), "must be positive")
	}
	if c.Purge.Interval < 0 {
		return invalid("purge.interval", c.Purge.Interval.String(), "must not be negative")
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateAddr(key, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return invalid(key, addr, "must be host:port")
	}
	return nil
}

func invalid(key string, value any, reason string) error {
	return oops.Code("CONFIG_INVALID").
		With("key", key).
		With("value", value).
		Errorf("%s %s", key, reason)
}
