// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"

	"github.com/samber/oops"
)

// ResetTokenBytes is the raw token entropy: 32 bytes = 256 bits.
const ResetTokenBytes = 32

// ResetTokenHashLen is the length of a hex-encoded SHA-256 token digest.
const ResetTokenHashLen = sha256.Size * 2

// GenerateResetToken creates a URL-safe random token and its storage digest.
// Returns (plaintext_token, sha256_hex, error).
// The plaintext token goes to the user exactly once; only the digest is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = base64.RawURLEncoding.EncodeToString(tokenBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the hex SHA-256 digest used to look up a presented token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks if the plaintext token matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyResetToken(token, hash string) bool {
	if token == "" || len(hash) != ResetTokenHashLen {
		return false
	}
	computed := HashResetToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
