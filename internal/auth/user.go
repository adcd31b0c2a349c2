// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// User represents a registered account.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	RegisteredAt time.Time
	LastAccess   time.Time
}

// UserRepository manages user persistence. Implementations signal absence
// with ErrNotFound and uniqueness conflicts with ErrDuplicate; neither is a
// transport fault and neither may panic.
type UserRepository interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *User) error

	// Touch records account activity by bumping the last-access timestamp.
	Touch(ctx context.Context, id ulid.ULID, at time.Time) error
}
