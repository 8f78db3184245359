// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// emailRegex matches addresses with a non-empty local part, a single @,
// and a dotted domain. Deliverability is not checked.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@.]+$`)

// User is an account as seen by the reset flow.
type User struct {
	ID           ulid.ULID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates a User with a fresh ID and a normalized, validated email.
func NewUser(email, passwordHash string) (*User, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password hash cannot be empty")
	}
	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// UserDirectory is the account store the reset flow reads from and writes
// new passwords to. Hashing the new password is the directory's job.
type UserDirectory interface {
	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID retrieves a user by ID.
	// Returns ErrNotFound if the user does not exist.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// UpdatePassword hashes and stores a new password for the user.
	UpdatePassword(ctx context.Context, id ulid.ULID, newPassword string) error
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the syntactic shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeInvalidEmailFormat).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeInvalidEmailFormat).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code(CodeInvalidEmailFormat).Errorf("email address is malformed")
	}
	return nil
}

// EmailFingerprint returns a short, stable, non-reversible label for an
// email address, safe to put in logs.
func EmailFingerprint(email string) string {
	h := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(h[:6])
}
