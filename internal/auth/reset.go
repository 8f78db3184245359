// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// ResetTokenExpiry is how long a reset token stays usable after issue.
const ResetTokenExpiry = time.Hour

// ResetToken is a persisted password reset token. Only the digest of the
// token is ever stored.
type ResetToken struct {
	ID        int64
	UserID    ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the token expired at or before now.
func (t *ResetToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsed returns true once the token has been consumed.
func (t *ResetToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsActive returns true if the token is neither used nor expired.
func (t *ResetToken) IsActive(now time.Time) bool {
	return !t.IsUsed() && !t.IsExpired(now)
}

// ResetTokenStore persists reset tokens.
//
// Implementations must make CreateActive and Consume atomic with respect
// to concurrent callers: a user never has two active tokens, and a token
// is consumed by at most one caller.
type ResetTokenStore interface {
	// CreateActive invalidates every active token for userID and stores a
	// new one, in a single unit of work.
	CreateActive(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) error

	// FindActiveByHash returns the unused, unexpired token with the given
	// digest, or ErrNotFound.
	FindActiveByHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// Consume marks an active token as used. Returns ErrAlreadyConsumed if
	// the token is no longer active.
	Consume(ctx context.Context, id int64) error

	// PurgeOlderThan deletes tokens created before now-retention, in any
	// state, and returns how many were removed.
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}
