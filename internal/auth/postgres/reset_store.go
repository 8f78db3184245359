// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/recovery/internal/auth"
)

// ResetTokenStore implements auth.ResetTokenStore using PostgreSQL.
type ResetTokenStore struct {
	pool poolIface
	now  func() time.Time
}

// NewResetTokenStore creates a new ResetTokenStore.
func NewResetTokenStore(pool poolIface) *ResetTokenStore {
	return &ResetTokenStore{pool: pool, now: time.Now}
}

// NewResetTokenStoreWithClock creates a ResetTokenStore that reads the
// current time from now. Activity checks compare against this clock.
func NewResetTokenStoreWithClock(pool poolIface, now func() time.Time) *ResetTokenStore {
	return &ResetTokenStore{pool: pool, now: now}
}

// CreateActive deletes the user's unused tokens and inserts a new one in a
// single transaction. A per-user advisory lock serializes concurrent
// requests for the same user; the partial unique index on unused tokens
// backs this up.
func (s *ResetTokenStore) CreateActive(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) error {
	if len(tokenHash) != auth.ResetTokenHashLen {
		return oops.Code("RESET_INVALID_HASH").
			With("length", len(tokenHash)).
			Errorf("token hash must be %d hex characters", auth.ResetTokenHashLen)
	}
	now := s.now().UTC()

	return inTransaction(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID.String()); err != nil {
			return oops.Code("RESET_LOCK_FAILED").
				With("user_id", userID.String()).
				Wrap(err)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM password_reset_tokens
			WHERE user_id = $1 AND used_at IS NULL
		`, userID.String()); err != nil {
			return oops.Code("RESET_INVALIDATE_FAILED").
				With("operation", "delete unused password_reset_tokens").
				With("user_id", userID.String()).
				Wrap(err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4)
		`, userID.String(), tokenHash, expiresAt.UTC(), now); err != nil {
			return oops.Code("RESET_CREATE_FAILED").
				With("operation", "insert password_reset_token").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return nil
	})
}

// FindActiveByHash returns the unused, unexpired token with the given digest.
func (s *ResetTokenStore) FindActiveByHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
	`, tokenHash, s.now().UTC())

	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Consume marks the token used with one conditional update. Only the
// caller whose update matches the row wins; everyone else gets
// auth.ErrAlreadyConsumed.
func (s *ResetTokenStore) Consume(ctx context.Context, id int64) error {
	now := s.now().UTC()
	result, err := s.pool.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND expires_at > $2
	`, id, now)
	if err != nil {
		return oops.Code("RESET_CONSUME_FAILED").
			With("operation", "update password_reset_token").
			With("token_id", id).
			Wrap(err)
	}
	if result.RowsAffected() != 1 {
		return oops.Code("RESET_ALREADY_CONSUMED").
			With("token_id", id).
			Wrap(auth.ErrAlreadyConsumed)
	}
	return nil
}

// PurgeOlderThan deletes tokens created before now-retention, regardless
// of state.
func (s *ResetTokenStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, oops.Code("INVALID_RETENTION").
			With("retention", retention.String()).
			Errorf("retention must be positive")
	}
	cutoff := s.now().UTC().Add(-retention)

	result, err := s.pool.Exec(ctx, `
		DELETE FROM password_reset_tokens WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").
			With("operation", "delete old password_reset_tokens").
			With("cutoff", cutoff).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanResetToken scans a single row into a ResetToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		token     auth.ResetToken
		userIDStr string
	)

	err := row.Scan(&token.ID, &userIDStr, &token.TokenHash, &token.ExpiresAt, &token.UsedAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan password_reset_token").
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}
	token.UserID = userID

	return &token, nil
}

// Compile-time interface check.
var _ auth.ResetTokenStore = (*ResetTokenStore)(nil)
