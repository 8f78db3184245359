// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/holomush/recovery/internal/config"
	"github.com/holomush/recovery/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the PostgreSQL pool.
	// Default: store.Connect
	DatabaseFactory func(ctx context.Context, cfg config.DatabaseConfig) (Database, error)

	// RedisFactory connects to Redis for the shared rate limiter.
	// Default: ratelimit.Connect
	RedisFactory func(ctx context.Context, url string) (RedisClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr, version string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// ConsoleOutput receives messages from the console email backend.
	// Default: os.Stdout
	ConsoleOutput io.Writer

	// LogOutput receives log records.
	// Default: os.Stderr
	LogOutput io.Writer
}

// Database wraps the pgxpool.Pool methods used by serve and purge.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// RedisClient wraps the redis.Client methods used by the rate limiter.
type RedisClient interface {
	redis.Scripter
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Registry() prometheus.Registerer
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
