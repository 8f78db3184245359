// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements password recovery.
//
// # Building Blocks
//
//   - GenerateResetToken / HashResetToken - raw tokens and their stored digests
//   - PasswordPolicy - strength rules for new passwords
//   - ResetTokenStore - persistence with single-active and single-use guarantees
//   - UserDirectory - the account store, consumed but not owned here
//
// # Services
//
// PasswordResetService composes the building blocks with a RateLimiter and
// a ResetMailer into the request and confirm operations. RequestReset
// answers identically whether or not an account exists; tokens for known
// accounts are issued and mailed by background workers. ConfirmReset
// reports every token failure as INVALID_OR_EXPIRED_TOKEN.
//
// Raw tokens and passwords are never logged or persisted.
package auth
