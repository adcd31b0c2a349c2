// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Service orchestrates registration, login, and profile operations on top
// of the repository, the session manager, and the login limiter.
type Service struct {
	users    UserRepository
	sessions *SessionManager
	limiter  *LoginLimiter
	hasher   PasswordHasher
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions *SessionManager, limiter *LoginLimiter, hasher PasswordHasher) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		hasher:   hasher,
	}
}

// dummySHAHash is verified against when the login email is unknown, so the
// response time does not reveal whether an account exists. It is not a real
// credential and can never match any password.
//
//nolint:gosec // G101: fake hash for timing uniformity, not a credential.
const dummySHAHash = "$SHA$0000000000000000$0000000000000000000000000000000000000000000000000000000000000000"

// Register validates the inputs, checks uniqueness, and stores a new user.
// Validation and duplicate checks run in the same order as the API reports
// them: email, username, then password.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, "email", email, s.users.GetByEmail); err != nil {
		return nil, err
	}

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx, "username", username, s.users.GetByUsername); err != nil {
		return nil, err
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := time.Now().UTC()
	user := &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		RegisteredAt: now,
		LastAccess:   now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// The store closes the race the lookup-based checks leave open.
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_DUPLICATE").Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	return user, nil
}

// Login verifies credentials and opens a session. The rate limiter is
// consulted first and is the only gate that consumes attempt budget; a
// limited identifier is rejected before any credential work happens.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	if !s.limiter.Allow(email) {
		return nil, "", oops.Code("AUTH_RATE_LIMITED").
			Errorf("too many login attempts, try again later")
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	targetHash := dummySHAHash
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		// Verify against the dummy hash below to keep timing uniform.
	default:
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !userExists || !valid {
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").
			Errorf("invalid email or password")
	}

	// A successful login clears the identifier's attempt window.
	s.limiter.Reset(email)

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			user.PasswordHash = newHash
			_ = s.users.Update(ctx, user) //nolint:errcheck // Best effort, login succeeds regardless
		}
	}

	_ = s.users.Touch(ctx, user.ID, time.Now().UTC()) //nolint:errcheck // Best effort

	token, err := NewSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}
	s.sessions.Create(token, user.ID.String())

	return user, token, nil
}

// Authenticate resolves an active session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	userID, ok := s.sessions.Resolve(token)
	if !ok {
		return nil, oops.Code("SESSION_INVALID").Errorf("invalid or expired session")
	}

	id, err := ulid.Parse(userID)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").
			With("operation", "parse session user id").
			Wrap(err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The account vanished under an open session; invalidate it.
			s.sessions.CloseAllForUser(userID)
			return nil, oops.Code("SESSION_INVALID").Wrap(err)
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	_ = s.users.Touch(ctx, user.ID, time.Now().UTC()) //nolint:errcheck // Best effort

	return user, nil
}

// Logout closes the session for the token. Unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.sessions.Close(token)
}

// LogoutAll closes every session belonging to the user.
func (s *Service) LogoutAll(userID string) {
	s.sessions.CloseAllForUser(userID)
}

// ExtendSession refreshes the session's expiry and reports whether the
// token was known.
func (s *Service) ExtendSession(token string) bool {
	return s.sessions.Extend(token)
}

// ValidateSession reports whether the token belongs to an active session
// and, if so, which user owns it.
func (s *Service) ValidateSession(token string) (string, bool) {
	return s.sessions.Resolve(token)
}

// ProfileChanges describes a partial profile update. Empty fields are left
// unchanged.
type ProfileChanges struct {
	Username string
	Email    string
	Password string
}

// Modify applies profile changes for the session's user. Each changed field
// is validated and uniqueness-checked like at registration. A password
// change re-hashes the credential and closes the user's other sessions,
// keeping only the one that made the change.
func (s *Service) Modify(ctx context.Context, token string, changes ProfileChanges) (*User, error) {
	user, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	if changes.Email != "" && changes.Email != user.Email {
		if err := ValidateEmail(changes.Email); err != nil {
			return nil, err
		}
		if err := s.checkAvailable(ctx, "email", changes.Email, s.users.GetByEmail); err != nil {
			return nil, err
		}
		user.Email = changes.Email
	}

	if changes.Username != "" && changes.Username != user.Username {
		if err := ValidateUsername(changes.Username); err != nil {
			return nil, err
		}
		if err := s.checkAvailable(ctx, "username", changes.Username, s.users.GetByUsername); err != nil {
			return nil, err
		}
		user.Username = changes.Username
	}

	passwordChanged := false
	if changes.Password != "" {
		if err := ValidatePassword(changes.Password); err != nil {
			return nil, err
		}
		hash, hashErr := s.hasher.Hash(changes.Password)
		if hashErr != nil {
			return nil, oops.Code("AUTH_MODIFY_FAILED").
				With("operation", "hash password").
				Wrap(hashErr)
		}
		user.PasswordHash = hash
		passwordChanged = true
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_DUPLICATE").Wrap(err)
		}
		return nil, oops.Code("AUTH_MODIFY_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}

	if passwordChanged {
		for _, other := range s.sessions.ActiveTokens(user.ID.String()) {
			if other != token {
				s.sessions.Close(other)
			}
		}
	}

	return user, nil
}

// UserRef identifies a user by ID, email, or username. The first non-empty
// field wins, in that order.
type UserRef struct {
	ID       string
	Email    string
	Username string
}

// GetUser fetches a user by reference.
func (s *Service) GetUser(ctx context.Context, ref UserRef) (*User, error) {
	switch {
	case ref.ID != "":
		id, err := ulid.Parse(ref.ID)
		if err != nil {
			return nil, oops.Code("USER_NOT_FOUND").
				With("id", ref.ID).
				Wrap(ErrNotFound)
		}
		return s.getUser(ctx, "id", ref.ID, func(ctx context.Context, _ string) (*User, error) {
			return s.users.GetByID(ctx, id)
		})
	case ref.Email != "":
		return s.getUser(ctx, "email", ref.Email, s.users.GetByEmail)
	case ref.Username != "":
		return s.getUser(ctx, "username", ref.Username, s.users.GetByUsername)
	default:
		return nil, oops.Code("AUTH_MISSING_IDENTIFIER").
			Errorf("one of user_id, email, or username is required")
	}
}

func (s *Service) getUser(ctx context.Context, field, value string, get func(context.Context, string) (*User, error)) (*User, error) {
	user, err := get(ctx, value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").
				With(field, value).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_GET_USER_FAILED").
			With("operation", "get user by "+field).
			Wrap(err)
	}
	return user, nil
}

// checkAvailable rejects a value that is already taken. Absence is the
// success path here.
func (s *Service) checkAvailable(ctx context.Context, field, value string, get func(context.Context, string) (*User, error)) error {
	_, err := get(ctx, value)
	switch {
	case err == nil:
		return oops.Code("AUTH_DUPLICATE").
			With(field, value).
			Errorf("%s is already registered", field)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "check "+field+" availability").
			Wrap(err)
	}
}
