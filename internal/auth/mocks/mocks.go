// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/recovery/internal/auth"
	"github.com/holomush/recovery/internal/email"
)

// T is the subset of *testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserDirectory is a mock auth.UserDirectory.
type MockUserDirectory struct {
	mock.Mock
}

// NewMockUserDirectory creates a MockUserDirectory whose expectations are
// asserted when the test ends.
func NewMockUserDirectory(t T) *MockUserDirectory {
	m := &MockUserDirectory{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// GetByEmail implements auth.UserDirectory.
func (m *MockUserDirectory) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// GetByID implements auth.UserDirectory.
func (m *MockUserDirectory) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// UpdatePassword implements auth.UserDirectory.
func (m *MockUserDirectory) UpdatePassword(ctx context.Context, id ulid.ULID, newPassword string) error {
	return m.Called(ctx, id, newPassword).Error(0)
}

// MockResetTokenStore is a mock auth.ResetTokenStore.
type MockResetTokenStore struct {
	mock.Mock
}

// NewMockResetTokenStore creates a MockResetTokenStore whose expectations
// are asserted when the test ends.
func NewMockResetTokenStore(t T) *MockResetTokenStore {
	m := &MockResetTokenStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// CreateActive implements auth.ResetTokenStore.
func (m *MockResetTokenStore) CreateActive(ctx context.Context, userID ulid.ULID, tokenHash string, expiresAt time.Time) error {
	return m.Called(ctx, userID, tokenHash, expiresAt).Error(0)
}

// FindActiveByHash implements auth.ResetTokenStore.
func (m *MockResetTokenStore) FindActiveByHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	args := m.Called(ctx, tokenHash)
	token, _ := args.Get(0).(*auth.ResetToken)
	return token, args.Error(1)
}

// Consume implements auth.ResetTokenStore.
func (m *MockResetTokenStore) Consume(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// PurgeOlderThan implements auth.ResetTokenStore.
func (m *MockResetTokenStore) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

// MockRateLimiter is a mock auth.RateLimiter.
type MockRateLimiter struct {
	mock.Mock
}

// NewMockRateLimiter creates a MockRateLimiter whose expectations are
// asserted when the test ends.
func NewMockRateLimiter(t T) *MockRateLimiter {
	m := &MockRateLimiter{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Allow implements auth.RateLimiter.
func (m *MockRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockResetMailer is a mock auth.ResetMailer.
type MockResetMailer struct {
	mock.Mock
}

// NewMockResetMailer creates a MockResetMailer whose expectations are
// asserted when the test ends.
func NewMockResetMailer(t T) *MockResetMailer {
	m := &MockResetMailer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// SendPasswordReset implements auth.ResetMailer.
func (m *MockResetMailer) SendPasswordReset(ctx context.Context, msg email.ResetMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher whose expectations are
// asserted when the test ends.
func NewMockPasswordHasher(t T) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, encodedHash string) (bool, error) {
	args := m.Called(password, encodedHash)
	return args.Bool(0), args.Error(1)
}

var (
	_ auth.UserDirectory   = (*MockUserDirectory)(nil)
	_ auth.ResetTokenStore = (*MockResetTokenStore)(nil)
	_ auth.RateLimiter     = (*MockRateLimiter)(nil)
	_ auth.ResetMailer     = (*MockResetMailer)(nil)
	_ auth.PasswordHasher  = (*MockPasswordHasher)(nil)
)
