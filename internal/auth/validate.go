// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package auth

import (
	"regexp"

	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 7

var (
	// emailRegex accepts word characters, dots, and dashes in the local and
	// domain parts, with a TLD of at least two word characters.
	emailRegex = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w{2,}$`)

	// usernameRegex accepts 3-32 letters, digits, and underscores.
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)
)

// ValidateEmail checks that the email has a plausible address shape.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("email", email).
			Errorf("invalid email address")
	}
	return nil
}

// ValidateUsername checks length and character set.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username must be 3-32 characters of letters, numbers, and underscores")
	}
	return nil
}

// ValidatePassword enforces the password policy: at least MinPasswordLength
// characters with at least one uppercase letter, one lowercase letter, and
// one digit. There is no upper length bound and no special-character rule.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return oops.Code("AUTH_INVALID_PASSWORD").
			Errorf("password must contain an uppercase letter, a lowercase letter, and a digit")
	}
	return nil
}

// IsValidEmail reports whether the email passes validation.
func IsValidEmail(email string) bool {
	return ValidateEmail(email) == nil
}

// IsValidUsername reports whether the username passes validation.
func IsValidUsername(username string) bool {
	return ValidateUsername(username) == nil
}

// IsValidPassword reports whether the password passes the policy.
func IsValidPassword(password string) bool {
	return ValidatePassword(password) == nil
}
