// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/recovery/internal/auth"
)

// ErrEmailTaken is returned by Create when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// UserDirectory implements auth.UserDirectory over the users table.
type UserDirectory struct {
	pool   poolIface
	hasher auth.PasswordHasher
	now    func() time.Time
}

// NewUserDirectory creates a UserDirectory that hashes new passwords with hasher.
func NewUserDirectory(pool poolIface, hasher auth.PasswordHasher) *UserDirectory {
	return &UserDirectory{pool: pool, hasher: hasher, now: time.Now}
}

// Create stores a new user. Returns ErrEmailTaken if the email exists.
func (d *UserDirectory) Create(ctx context.Context, user *auth.User) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email_fingerprint", auth.EmailFingerprint(user.Email)).
				Wrap(ErrEmailTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (d *UserDirectory) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (d *UserDirectory) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdatePassword hashes newPassword and stores it for the user.
func (d *UserDirectory) UpdatePassword(ctx context.Context, id ulid.ULID, newPassword string) error {
	hash, err := d.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("USER_PASSWORD_HASH_FAILED").
			With("user_id", id.String()).
			Wrap(err)
	}

	result, err := d.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id.String(), hash, d.now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update user password").
			With("user_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		user  auth.User
		idStr string
	)

	if err := row.Scan(&idStr, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("user_id", idStr).
			Wrap(err)
	}
	user.ID = id

	return &user, nil
}

// Compile-time interface check.
var _ auth.UserDirectory = (*UserDirectory)(nil)
