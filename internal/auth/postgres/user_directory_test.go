// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/internal/auth/mocks"
	"github.com/holomush/recovery/pkg/errutil"
)

var userColumns = []string{"id", "email", "password_hash", "created_at", "updated_at"}

func newMockDirectory(t *testing.T) (*UserDirectory, pgxmock.PgxPoolIface, *mocks.MockPasswordHasher) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)

	hasher := mocks.NewMockPasswordHasher(t)
	dir := NewUserDirectory(mock, hasher)
	dir.now = func() time.Time { return storeNow }
	return dir, mock, hasher
}

func TestUserDirectory_Create(t *testing.T) {
	ctx := context.Background()
	user, err := auth.NewUser("alice@example.com", "$argon2id$hash")
	require.NoError(t, err)

	t.Run("inserts user", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, dir.Create(ctx, user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(user.ID.String(), user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		err := dir.Create(ctx, user)
		assert.ErrorIs(t, err, ErrEmailTaken)
		errutil.AssertErrorCode(t, err, "USER_EMAIL_TAKEN")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other failure", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectExec(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))

		err := dir.Create(ctx, user)
		assert.NotErrorIs(t, err, ErrEmailTaken)
		errutil.AssertErrorCode(t, err, "USER_CREATE_FAILED")
	})
}

func TestUserDirectory_GetByEmail(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("found", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectQuery(`WHERE LOWER\(email\) = LOWER\(\$1\)`).
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "alice@example.com", "hash", storeNow, storeNow))

		user, err := dir.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectQuery(`FROM users`).
			WithArgs("ghost@example.com").
			WillReturnError(pgx.ErrNoRows)

		_, err := dir.GetByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectQuery(`FROM users`).
			WithArgs("alice@example.com").
			WillReturnError(errors.New("connection refused"))

		_, err := dir.GetByEmail(ctx, "alice@example.com")
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_SCAN_FAILED")
	})
}

func TestUserDirectory_GetByID(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("found", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectQuery(`WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(id.String(), "alice@example.com", "hash", storeNow, storeNow))

		user, err := dir.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
	})

	t.Run("not found", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectQuery(`WHERE id = \$1`).WithArgs(id.String()).WillReturnError(pgx.ErrNoRows)

		_, err := dir.GetByID(ctx, id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorContext(t, err, "user_id", id.String())
	})

	t.Run("corrupt id", func(t *testing.T) {
		dir, mock, _ := newMockDirectory(t)

		mock.ExpectQuery(`FROM users`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow("garbage", "alice@example.com", "hash", storeNow, storeNow))

		_, err := dir.GetByID(ctx, id)
		errutil.AssertErrorCode(t, err, "USER_INVALID_ID")
		errutil.AssertErrorContext(t, err, "user_id", "garbage")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserDirectory_UpdatePassword(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()

	t.Run("stores hash, never the plaintext", func(t *testing.T) {
		dir, mock, hasher := newMockDirectory(t)

		hasher.On("Hash", "Strong1Pass!").Return("$argon2id$v=19$hashed", nil)
		mock.ExpectExec(`UPDATE users SET password_hash`).
			WithArgs(id.String(), "$argon2id$v=19$hashed", storeNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, dir.UpdatePassword(ctx, id, "Strong1Pass!"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		dir, mock, hasher := newMockDirectory(t)

		hasher.On("Hash", "Strong1Pass!").Return("hashed", nil)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(id.String(), "hashed", storeNow).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := dir.UpdatePassword(ctx, id, "Strong1Pass!")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "USER_NOT_FOUND")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hash failure skips the update", func(t *testing.T) {
		dir, mock, hasher := newMockDirectory(t)

		hasher.On("Hash", "Strong1Pass!").Return("", errors.New("out of memory"))

		err := dir.UpdatePassword(ctx, id, "Strong1Pass!")
		errutil.AssertErrorCode(t, err, "USER_PASSWORD_HASH_FAILED")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		dir, mock, hasher := newMockDirectory(t)

		hasher.On("Hash", "Strong1Pass!").Return("hashed", nil)
		mock.ExpectExec(`UPDATE users`).
			WithArgs(id.String(), "hashed", storeNow).
			WillReturnError(errors.New("connection refused"))

		err := dir.UpdatePassword(ctx, id, "Strong1Pass!")
		errutil.AssertErrorCode(t, err, "USER_UPDATE_PASSWORD_FAILED")
	})
}
