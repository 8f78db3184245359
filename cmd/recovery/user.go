// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/internal/auth/postgres"
	"github.com/holomush/recovery/internal/store"
)

// userCreator stores new accounts.
type userCreator interface {
	Create(ctx context.Context, user *auth.User) error
}

// NewUserCmd creates the user subcommand.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage directory accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var emailAddr string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Long: `Create an account in the user directory. The password is read
from the first line of standard input and must satisfy the password policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
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

			hasher := auth.NewArgon2idHasher()
			return runUserCreate(ctx, cmd, postgres.NewUserDirectory(pool, hasher), hasher, emailAddr)
		},
	}

	cmd.Flags().StringVar(&emailAddr, "email", "", "account email address")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	return cmd
}

func runUserCreate(ctx context.Context, cmd *cobra.Command, users userCreator, hasher auth.PasswordHasher, emailAddr string) error {
	password, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	if violations := auth.NewPasswordPolicy().Validate(password); len(violations) > 0 {
		names := make([]string, len(violations))
		for i, v := range violations {
			names[i] = string(v)
		}
		return oops.Code(auth.CodeWeakPassword).
			With("violations", violations).
			Errorf("password does not meet requirements: %s", strings.Join(names, ", "))
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := auth.NewUser(emailAddr, hash)
	if err != nil {
		return err
	}
	if err := users.Create(ctx, user); err != nil {
		return err
	}

	cmd.Printf("Created user %s (%s)\n", user.ID, user.Email)
	return nil
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", oops.Code("PASSWORD_READ_FAILED").Errorf("password is required on standard input")
	}
	return password, nil
}
