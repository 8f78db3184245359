// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/internal/auth/postgres"
	"github.com/holomush/recovery/internal/config"
	"github.com/holomush/recovery/internal/email"
	"github.com/holomush/recovery/internal/httpapi"
	"github.com/holomush/recovery/internal/logging"
	"github.com/holomush/recovery/internal/observability"
	"github.com/holomush/recovery/internal/ratelimit"
	"github.com/holomush/recovery/internal/store"
	"github.com/holomush/recovery/pkg/errutil"
)

const serviceName = "recovery"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the password reset API",
		Long: `Run the password reset HTTP API together with the metrics and
health probe listener. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, cfg config.DatabaseConfig) (Database, error) {
			return store.Connect(ctx, cfg.URL, store.ConnectOptions{
				MaxRetries: cfg.ConnectRetries,
				Backoff:    cfg.ConnectBackoff,
				MaxConns:   cfg.MaxConns,
			})
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = func(ctx context.Context, url string) (RedisClient, error) {
			return ratelimit.Connect(ctx, url)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr, version string, readiness observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, version, readiness, logger)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	if d.ConsoleOutput == nil {
		d.ConsoleOutput = os.Stdout
	}
	if d.LogOutput == nil {
		d.LogOutput = os.Stderr
	}
	return d
}

// runServeWithDeps runs the API until ctx is cancelled or a listener fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	databaseURL, err := requireDatabaseURL(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting recovery service",
		"addr", cfg.Server.Addr,
		"rate_limit_backend", cfg.RateLimit.Backend,
		"email_backend", cfg.Email.Backend,
	)

	dbCfg := cfg.Database
	dbCfg.URL = databaseURL
	db, err := deps.DatabaseFactory(ctx, dbCfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var registry prometheus.Registerer = prometheus.NewRegistry()
	if cfg.Observability.Enabled {
		obsServer = deps.ObservabilityServerFactory(cfg.Observability.Addr, version, db.Ping, logger)
		registry = obsServer.Registry()
	}
	auth.RegisterMetrics(registry)
	email.RegisterMetrics(registry)

	limiter, closeLimiter, err := buildLimiter(ctx, cfg.RateLimit, registry, deps)
	if err != nil {
		return err
	}
	defer closeLimiter()

	mailer, closeMailer, err := buildMailer(cfg.Email, logger, deps.ConsoleOutput)
	if err != nil {
		return err
	}
	// Runs after the API has shut down so queued mail still drains.
	defer closeMailer()

	tokens := postgres.NewResetTokenStore(db)
	users := postgres.NewUserDirectory(db, auth.NewArgon2idHasher())
	service, err := auth.NewPasswordResetService(users, tokens, limiter, mailer, cfg.Reset.FrontendBaseURL,
		auth.WithLogger(logger),
		auth.WithIssueQueue(cfg.Reset.IssueQueueSize, cfg.Reset.IssueWorkers),
		auth.WithIssueTimeout(cfg.Reset.IssueTimeout))
	if err != nil {
		return oops.Code("SERVICE_INIT_FAILED").Wrap(err)
	}
	// Drains issuance before the mailer and database close.
	defer service.Close()

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("API_LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler: httpapi.NewRouter(service, httpapi.RouterOptions{
			Logger:         logger,
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	logger.Info("API listening", "addr", listener.Addr().String())

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			shutdownHTTP(httpServer, cfg.Server.ShutdownTimeout, logger)
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	purgeDone := make(chan struct{})
	if cfg.Purge.Interval > 0 {
		go func() {
			defer close(purgeDone)
			runPurgeLoop(ctx, tokens, cfg.Purge, logger)
		}()
	} else {
		close(purgeDone)
	}

	cmd.Println("Recovery service started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err, ok := <-serveErr:
		if ok && err != nil {
			runErr = oops.Code("API_SERVE_FAILED").Wrap(err)
			errutil.LogError(logger, "API server failed", runErr)
		}
	}

	cancel()
	<-purgeDone
	shutdownHTTP(httpServer, cfg.Server.ShutdownTimeout, logger)
	if obsServer != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stopCancel()
		if err := obsServer.Stop(stopCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

func buildLimiter(ctx context.Context, cfg config.RateLimitConfig, reg prometheus.Registerer, deps *ServeDeps) (auth.RateLimiter, func(), error) {
	var rlCfg ratelimit.Config

	switch cfg.Backend {
	case config.RateLimitRedis:
		client, err := deps.RedisFactory(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, oops.Code("RATELIMIT_INIT_FAILED").With("backend", cfg.Backend).Wrap(err)
		}
		return ratelimit.NewRedisLimiter(client, rlCfg), func() { _ = client.Close() }, nil //nolint:errcheck // shutdown
	default:
		limiter := ratelimit.NewMemoryLimiterWithRegistry(rlCfg, reg)
		return limiter, limiter.Close, nil
	}
}

func buildMailer(cfg config.EmailConfig, logger *slog.Logger, console io.Writer) (auth.ResetMailer, func(), error) {
	var sender email.Sender
	switch cfg.Backend {
	case config.EmailSMTP:
		smtpSender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,

			RequireTLS: cfg.SMTP.RequireTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		sender = smtpSender
	default:
		logger.Warn("console email backend prints live reset links; do not use in production")
		sender = email.NewConsoleSender(console, logger)
	}

	if !cfg.Async {
		return sender, func() {}, nil
	}
	async := email.NewAsyncSender(sender, email.AsyncConfig{
		QueueSize:   cfg.QueueSize,
		SendTimeout: cfg.SendTimeout,
		Logger:      logger,
	})
	return async, async.Close, nil
}

func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("error shutting down API server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server reports an error.
// It exits when an error is received, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
