// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopher-w1/gatekeeper/internal/auth"
	"github.com/christopher-w1/gatekeeper/internal/auth/postgres"
)

var userColumns = []string{"id", "username", "email", "password_hash", "registered_at", "last_access"}

func testUser() *auth.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &auth.User{
		ID:           ulid.Make(),
		Username:     "alice_42",
		Email:        "alice@example.com",
		PasswordHash: "$SHA$00112233aabbccdd$0000000000000000000000000000000000000000000000000000000000000000",
		RegisteredAt: now,
		LastAccess:   now,
	}
}

func uniqueErr(constraint string) *pgconn.PgError {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func TestUserRepository_Create(t *testing.T) {
	t.Run("inserts a row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectExec("INSERT INTO users").
			WithArgs(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.RegisteredAt, user.LastAccess).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.Create(context.Background(), user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violations to ErrDuplicate", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectExec("INSERT INTO users").
			WithArgs(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.RegisteredAt, user.LastAccess).
			WillReturnError(uniqueErr("users_email_lower_idx"))

		repo := postgres.NewUserRepository(mock)
		err = repo.Create(context.Background(), user)
		assert.ErrorIs(t, err, auth.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_Get(t *testing.T) {
	t.Run("by id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs(user.ID.String()).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.RegisteredAt, user.LastAccess))

		repo := postgres.NewUserRepository(mock)
		got, err := repo.GetByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.Username, got.Username)
		assert.Equal(t, user.Email, got.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by email", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs(user.Email).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.RegisteredAt, user.LastAccess))

		repo := postgres.NewUserRepository(mock)
		got, err := repo.GetByEmail(context.Background(), user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing rows map to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		repo := postgres.NewUserRepository(mock)
		_, err = repo.GetByUsername(context.Background(), "ghost")
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt id fails scan", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectQuery("SELECT (.+) FROM users").
			WithArgs(user.Email).
			WillReturnRows(pgxmock.NewRows(userColumns).
				AddRow("not-a-ulid", user.Username, user.Email, user.PasswordHash, user.RegisteredAt, user.LastAccess))

		repo := postgres.NewUserRepository(mock)
		_, err = repo.GetByEmail(context.Background(), user.Email)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_Update(t *testing.T) {
	t.Run("updates a row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectExec("UPDATE users SET").
			WithArgs(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.LastAccess).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := postgres.NewUserRepository(mock)
		require.NoError(t, repo.Update(context.Background(), user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows affected means not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectExec("UPDATE users SET").
			WithArgs(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.LastAccess).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := postgres.NewUserRepository(mock)
		assert.ErrorIs(t, repo.Update(context.Background(), user), auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violations to ErrDuplicate", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser()
		mock.ExpectExec("UPDATE users SET").
			WithArgs(user.ID.String(), user.Username, user.Email, user.PasswordHash, user.LastAccess).
			WillReturnError(uniqueErr("users_username_lower_idx"))

		repo := postgres.NewUserRepository(mock)
		assert.ErrorIs(t, repo.Update(context.Background(), user), auth.ErrDuplicate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_Touch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := ulid.Make()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE users SET last_access").
		WithArgs(id.String(), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET last_access").
		WithArgs(id.String(), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := postgres.NewUserRepository(mock)
	require.NoError(t, repo.Touch(context.Background(), id, at))
	assert.ErrorIs(t, repo.Touch(context.Background(), id, at), auth.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
