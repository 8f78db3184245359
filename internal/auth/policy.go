// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Violation identifies a single failed password rule.
type Violation string

// Password rules, in the order they are checked and reported.
const (
	ViolationMinLength Violation = "min_length"
	ViolationUppercase Violation = "uppercase"
	ViolationLowercase Violation = "lowercase"
	ViolationDigit     Violation = "digit"
	ViolationSpecial   Violation = "special"
)

// MinPasswordLength is the minimum number of characters in a password.
const MinPasswordLength = 8

// SpecialCharacters is the set accepted by the special-character rule.
const SpecialCharacters = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"

// PasswordPolicy validates new passwords against fixed strength rules.
type PasswordPolicy struct{}

// NewPasswordPolicy returns the default password policy.
func NewPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{}
}

// Validate returns every rule the password breaks, in a stable order.
// An empty result means the password is acceptable.
func (PasswordPolicy) Validate(password string) []Violation {
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(SpecialCharacters, r):
			special = true
		}
	}

	var violations []Violation
	if utf8.RuneCountInString(password) < MinPasswordLength {
		violations = append(violations, ViolationMinLength)
	}
	if !upper {
		violations = append(violations, ViolationUppercase)
	}
	if !lower {
		violations = append(violations, ViolationLowercase)
	}
	if !digit {
		violations = append(violations, ViolationDigit)
	}
	if !special {
		violations = append(violations, ViolationSpecial)
	}
	return violations
}

// Requirements returns human-readable rule descriptions in check order.
func (PasswordPolicy) Requirements() []string {
	return []string{
		"At least 8 characters long",
		"Contains at least one uppercase letter",
		"Contains at least one lowercase letter",
		"Contains at least one number",
		"Contains at least one special character (" + SpecialCharacters + ")",
	}
}

// Describe returns the requirement text for a violation.
func (p PasswordPolicy) Describe(v Violation) string {
	reqs := p.Requirements()
	switch v {
	case ViolationMinLength:
		return reqs[0]
	case ViolationUppercase:
		return reqs[1]
	case ViolationLowercase:
		return reqs[2]
	case ViolationDigit:
		return reqs[3]
	case ViolationSpecial:
		return reqs[4]
	default:
		return string(v)
	}
}
