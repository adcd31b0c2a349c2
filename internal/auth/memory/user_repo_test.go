// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopher-w1/gatekeeper/internal/auth"
	"github.com/christopher-w1/gatekeeper/internal/auth/memory"
)

func newUser(username, email string) *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: "$SHA$00112233aabbccdd$0000000000000000000000000000000000000000000000000000000000000000",
		RegisteredAt: now,
		LastAccess:   now,
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := newUser("alice_42", "alice@example.com")

	require.NoError(t, repo.Create(ctx, user))

	t.Run("lookups are case-insensitive", func(t *testing.T) {
		byEmail, err := repo.GetByEmail(ctx, "ALICE@EXAMPLE.COM")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		byName, err := repo.GetByUsername(ctx, "Alice_42")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byName.ID)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		got.Username = "mutated"

		again, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice_42", again.Username)
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		err := repo.Create(ctx, newUser("alice_42", "fresh@example.com"))
		assert.ErrorIs(t, err, auth.ErrDuplicate)

		err = repo.Create(ctx, newUser("fresh_name", "alice@example.com"))
		assert.ErrorIs(t, err, auth.ErrDuplicate)
	})

	t.Run("missing users signal not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, ulid.Make())
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		_, err = repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := newUser("alice_42", "alice@example.com")
	require.NoError(t, repo.Create(ctx, user))

	t.Run("reindexes changed identity fields", func(t *testing.T) {
		user.Email = "alice.new@example.com"
		user.Username = "alice_renamed"
		require.NoError(t, repo.Update(ctx, user))

		_, err := repo.GetByEmail(ctx, "alice@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := repo.GetByEmail(ctx, "alice.new@example.com")
		require.NoError(t, err)
		assert.Equal(t, "alice_renamed", got.Username)
	})

	t.Run("rejects identity collisions", func(t *testing.T) {
		other := newUser("bob_7", "bob@example.com")
		require.NoError(t, repo.Create(ctx, other))

		other.Email = "alice.new@example.com"
		assert.ErrorIs(t, repo.Update(ctx, other), auth.ErrDuplicate)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		ghost := newUser("ghost_1", "ghost@example.com")
		assert.ErrorIs(t, repo.Update(ctx, ghost), auth.ErrNotFound)
	})
}

func TestUserRepository_Touch(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()
	user := newUser("alice_42", "alice@example.com")
	require.NoError(t, repo.Create(ctx, user))

	at := time.Now().UTC().Add(time.Hour)
	require.NoError(t, repo.Touch(ctx, user.ID, at))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.LastAccess.Equal(at))

	assert.ErrorIs(t, repo.Touch(ctx, ulid.Make(), at), auth.ErrNotFound)
}
