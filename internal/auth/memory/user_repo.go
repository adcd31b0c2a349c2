// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package memory provides an in-memory UserRepository for development mode
// and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/christopher-w1/gatekeeper/internal/auth"
)

// UserRepository implements auth.UserRepository with mutex-guarded maps.
// Email and username lookups are case-insensitive, matching the SQL
// implementation's lower() indexes.
type UserRepository struct {
	mu         sync.RWMutex
	byID       map[ulid.ULID]*auth.User
	byEmail    map[string]ulid.ULID
	byUsername map[string]ulid.ULID
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[ulid.ULID]*auth.User),
		byEmail:    make(map[string]ulid.ULID),
		byUsername: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	emailKey := strings.ToLower(user.Email)
	usernameKey := strings.ToLower(user.Username)

	if _, exists := r.byID[user.ID]; exists {
		return oops.Code("USER_DUPLICATE").
			With("id", user.ID.String()).
			Wrap(auth.ErrDuplicate)
	}
	if _, exists := r.byEmail[emailKey]; exists {
		return oops.Code("USER_DUPLICATE").
			With("email", user.Email).
			Wrap(auth.ErrDuplicate)
	}
	if _, exists := r.byUsername[usernameKey]; exists {
		return oops.Code("USER_DUPLICATE").
			With("username", user.Username).
			Wrap(auth.ErrDuplicate)
	}

	u := *user
	r.byID[u.ID] = &u
	r.byEmail[emailKey] = u.ID
	r.byUsername[usernameKey] = u.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.byID[id]
	if !exists {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	u := *user
	return &u, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	r.mu.RLock()
	id, exists := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()

	if !exists {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	id, exists := r.byUsername[strings.ToLower(username)]
	r.mu.RUnlock()

	if !exists {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

// Update replaces the stored user and reindexes changed email or username.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.byID[user.ID]
	if !exists {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}

	emailKey := strings.ToLower(user.Email)
	usernameKey := strings.ToLower(user.Username)

	if id, taken := r.byEmail[emailKey]; taken && id != user.ID {
		return oops.Code("USER_DUPLICATE").
			With("email", user.Email).
			Wrap(auth.ErrDuplicate)
	}
	if id, taken := r.byUsername[usernameKey]; taken && id != user.ID {
		return oops.Code("USER_DUPLICATE").
			With("username", user.Username).
			Wrap(auth.ErrDuplicate)
	}

	delete(r.byEmail, strings.ToLower(current.Email))
	delete(r.byUsername, strings.ToLower(current.Username))

	u := *user
	r.byID[u.ID] = &u
	r.byEmail[emailKey] = u.ID
	r.byUsername[usernameKey] = u.ID
	return nil
}

// Touch bumps the last-access timestamp.
func (r *UserRepository) Touch(_ context.Context, id ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.byID[id]
	if !exists {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	user.LastAccess = at
	return nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
