// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/pkg/errutil"
)

// cheapParams keeps argon2 fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}

func TestArgon2idHasher_Hash(t *testing.T) {
	hasher := auth.NewArgon2idHasherWithParams(cheapParams)

	t.Run("produces PHC string with encoded params", func(t *testing.T) {
		hash, err := hasher.Hash("Strong1Pass!")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("default hasher uses OWASP parameters", func(t *testing.T) {
		hash, err := auth.NewArgon2idHasher().Hash("Strong1Pass!")
		require.NoError(t, err)
		assert.Contains(t, hash, "$m=65536,t=1,p=4$")
	})
}

func TestArgon2idHasher_Verify(t *testing.T) {
	hasher := auth.NewArgon2idHasherWithParams(cheapParams)
	hash, err := hasher.Hash("correctpassword")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := hasher.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		ok, err := hasher.Verify("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verifies with parameters from the hash", func(t *testing.T) {
		other := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 2, Memory: 2048, Threads: 2, SaltLen: 8, KeyLen: 16})
		ok, err := other.Verify("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	invalid := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"bcrypt hash", "$2a$10$abcdefghijklmnopqrstuv"},
		{"wrong version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$a2V5"},
		{"bad params", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5"},
		{"zero threads", "$argon2id$v=19$m=1024,t=1,p=0$c2FsdA$a2V5"},
		{"too many threads", "$argon2id$v=19$m=1024,t=1,p=300$c2FsdA$a2V5"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5"},
		{"empty key", "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$"},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			ok, err := hasher.Verify("password", tt.hash)
			assert.False(t, ok)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
		})
	}
}
