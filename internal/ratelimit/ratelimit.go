// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package ratelimit bounds attempts per identifier using fixed windows.
//
// A window opens on the first attempt for an identifier and admits Limit
// attempts. Once Window has passed since it opened, the next attempt
// starts a fresh window. Denied attempts are not counted.
//
// MemoryLimiter keeps windows in process memory: they are lost on restart
// and not shared between instances. RedisLimiter keeps them in Redis so
// every instance enforces the same limit.
package ratelimit

import (
	"context"
	"time"
)

// Default limits for password reset requests.
const (
	DefaultLimit  = 3
	DefaultWindow = 15 * time.Minute

	// DefaultCleanupInterval is how often MemoryLimiter evicts closed windows.
	DefaultCleanupInterval = 5 * time.Minute
)

// Limiter records attempts and reports whether they are allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config configures a limiter.
type Config struct {
	// Limit is the number of attempts admitted per window.
	// Defaults to DefaultLimit if zero or negative.
	Limit int

	// Window is the fixed window length.
	// Defaults to DefaultWindow if zero or negative.
	Window time.Duration

	// CleanupInterval is how often expired windows are evicted (memory only).
	// Defaults to DefaultCleanupInterval if zero or negative.
	CleanupInterval time.Duration

	// Now overrides time.Now, for tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
