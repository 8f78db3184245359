// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/recovery/internal/auth/postgres"
	"github.com/holomush/recovery/internal/config"
	"github.com/holomush/recovery/internal/store"
	"github.com/holomush/recovery/pkg/errutil"
)

// tokenPurger is the part of auth.ResetTokenStore the sweep needs.
type tokenPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// NewPurgeCmd creates the purge subcommand.
func NewPurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old password reset tokens",
		Long: `Delete password reset tokens created before the retention cutoff,
whether used, expired, or still active.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.Purge.Retention
			}
			databaseURL, err := requireDatabaseURL(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := store.Connect(ctx, databaseURL, store.ConnectOptions{
				MaxRetries: cfg.Database.ConnectRetries,
				Backoff:    cfg.Database.ConnectBackoff,
			})
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").Wrap(err)
			}
			defer pool.Close()

			return runPurge(ctx, cmd, postgres.NewResetTokenStore(pool), olderThan)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention cutoff (default: purge.retention, 720h)")
	return cmd
}

func runPurge(ctx context.Context, cmd *cobra.Command, tokens tokenPurger, olderThan time.Duration) error {
	deleted, err := tokens.PurgeOlderThan(ctx, olderThan)
	if err != nil {
		return oops.Code("PURGE_FAILED").With("older_than", olderThan.String()).Wrap(err)
	}
	cmd.Printf("Deleted %d reset tokens older than %s\n", deleted, olderThan)
	return nil
}

// runPurgeLoop sweeps on every tick of cfg.Interval until ctx is done.
// Failures are logged and retried on the next tick.
func runPurgeLoop(ctx context.Context, tokens tokenPurger, cfg config.PurgeConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := tokens.PurgeOlderThan(ctx, cfg.Retention)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errutil.LogErrorContext(ctx, logger, "reset token purge failed", err)
				continue
			}
			logger.InfoContext(ctx, "reset tokens purged",
				"deleted", deleted,
				"retention", cfg.Retention.String())
		}
	}
}
