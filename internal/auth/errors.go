// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyConsumed is returned by ResetTokenStore.Consume when the token
// was used, expired, or taken by a concurrent confirmation.
var ErrAlreadyConsumed = errors.New("reset token already consumed")

// Error codes surfaced by the password reset flow.
const (
	CodeRateLimited           = "RATE_LIMITED"
	CodeInvalidEmailFormat    = "INVALID_EMAIL_FORMAT"
	CodeInvalidOrExpiredToken = "INVALID_OR_EXPIRED_TOKEN"
	CodeWeakPassword          = "WEAK_PASSWORD"
	CodeUserResolutionFailed  = "USER_RESOLUTION_FAILED"
	CodeEmailDispatchFailed   = "EMAIL_DISPATCH_FAILED"
)

// violationsKey is the oops context key holding []Violation on WEAK_PASSWORD errors.
const violationsKey = "violations"

func errInvalidOrExpiredToken() error {
	return oops.Code(CodeInvalidOrExpiredToken).Errorf("reset token is invalid or has expired")
}

func errWeakPassword(violations []Violation) error {
	return oops.Code(CodeWeakPassword).
		With(violationsKey, violations).
		Errorf("password does not meet requirements")
}

// HasCode reports whether err is an oops error carrying code.
func HasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	c, ok := oopsErr.Code().(string)
	return ok && c == code
}

// IsRateLimited reports whether err is a RATE_LIMITED error.
func IsRateLimited(err error) bool { return HasCode(err, CodeRateLimited) }

// IsInvalidEmail reports whether err is an INVALID_EMAIL_FORMAT error.
func IsInvalidEmail(err error) bool { return HasCode(err, CodeInvalidEmailFormat) }

// IsInvalidToken reports whether err is an INVALID_OR_EXPIRED_TOKEN error.
func IsInvalidToken(err error) bool { return HasCode(err, CodeInvalidOrExpiredToken) }

// IsWeakPassword reports whether err is a WEAK_PASSWORD error.
func IsWeakPassword(err error) bool { return HasCode(err, CodeWeakPassword) }

// IsUserResolutionFailure reports whether err is a USER_RESOLUTION_FAILED error.
func IsUserResolutionFailure(err error) bool { return HasCode(err, CodeUserResolutionFailed) }

// Violations returns the policy violations attached to a WEAK_PASSWORD error.
func Violations(err error) []Violation {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	v, _ := oopsErr.Context()[violationsKey].([]Violation)
	return v
}
