// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/recovery/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the recovery CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recovery",
		Short: "Password recovery service",
		Long: `recovery issues single-use password reset links by email and
lets account holders set a new password with them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/recovery/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPurgeCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig resolves configuration for cmd from the config file, the
// environment, and any flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.LoadOptions{
		Path:  configFile,
		Flags: cmd.Flags(),
	})
}

// requireDatabaseURL returns the configured database URL or a CONFIG_INVALID error.
func requireDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database URL is required (set DATABASE_URL, RECOVERY_DATABASE_URL, or --database-url)")
	}
	return cfg.Database.URL, nil
}
