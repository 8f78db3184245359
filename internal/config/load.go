// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/recovery/internal/xdg"
)

// EnvPrefix prefixes every service environment variable.
const EnvPrefix = "RECOVERY_"

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"addr":               "server.addr",
	"metrics-addr":       "observability.addr",
	"database-url":       "database.url",
	"frontend-base-url":  "reset.frontend_base_url",
	"rate-limit-backend": "rate_limit.backend",
	"redis-url":          "rate_limit.redis_url",
	"email-backend":      "email.backend",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

// RegisterFlags adds the config override flags to fs. Only flags the user
// sets take effect.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "API listen address (server.addr)")
	fs.String("metrics-addr", "", "metrics and health listen address (observability.addr)")
	fs.String("database-url", "", "PostgreSQL connection URL (database.url)")
	fs.String("frontend-base-url", "", "base URL of reset links (reset.frontend_base_url)")
	fs.String("rate-limit-backend", "", "rate limiter backend: memory or redis (rate_limit.backend)")
	fs.String("redis-url", "", "Redis URL for the redis rate limiter (rate_limit.redis_url)")
	fs.String("email-backend", "", "email backend: console or smtp (email.backend)")
	fs.String("log-level", "", "log level: debug, info, warn, error (log.level)")
	fs.String("log-format", "", "log format: json or text (log.format)")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is an explicit config file. If empty, the XDG default is used
	// when it exists.
	Path string
	// Flags holds flags registered with RegisterFlags. May be nil.
	Flags *pflag.FlagSet
	// Environ overrides the process environment, for tests.
	Environ map[string]string
}

// wellKnownEnv holds conventional unprefixed variables set by platforms.
type wellKnownEnv struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
}

// Load builds the configuration from defaults, file, environment, and
// flags, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := loadFile(cfg, path, explicit); err != nil {
			return nil, err
		}
	}

	environ := opts.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	if err := applyEnv(cfg, environ); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		if err := applyFlags(cfg, opts.Flags); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, explicit bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}

	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func applyEnv(cfg *Config, environ map[string]string) error {
	var known wellKnownEnv
	if err := env.ParseWithOptions(&known, env.Options{Environment: environ}); err != nil {
		return oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	if known.DatabaseURL != "" {
		cfg.Database.URL = known.DatabaseURL
	}
	if known.RedisURL != "" {
		cfg.RateLimit.RedisURL = known.RedisURL
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}
	return nil
}

func applyFlags(cfg *Config, flags *pflag.FlagSet) error {
	k := koanf.New(".")
	provider := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
	}
	return nil
}
