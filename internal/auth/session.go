// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Session token configuration.
const (
	// SessionTokenBytes of entropy per token; hex-encoded to 64 characters.
	SessionTokenBytes = 32

	// DefaultSessionTTL is the session lifetime when none is configured.
	DefaultSessionTTL = 24 * time.Hour
)

// NewSessionToken creates a secure random session token.
func NewSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Session is a snapshot of one active session, safe for callers to retain.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	Flags     []string
}

// session is the internal mutable record.
type session struct {
	userID    string
	expiresAt time.Time
	flags     map[string]struct{}
}

// SessionManager tracks sessions in memory. It keeps a forward map from
// token to session and a reverse index from user ID to token set; every
// mutation updates both under the same lock, so the two views never
// disagree and no empty reverse-index set is left behind.
//
// Lookups of unknown tokens or users are answered with zero values, never
// errors. All state is process-local; a restart signs everyone out.
type SessionManager struct {
	mu     sync.RWMutex
	ttl    time.Duration
	tokens map[string]*session
	byUser map[string]map[string]struct{}
	now    func() time.Time
}

// NewSessionManager creates a manager issuing sessions with the given TTL.
// A non-positive TTL falls back to DefaultSessionTTL.
func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		ttl:    ttl,
		tokens: make(map[string]*session),
		byUser: make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// Create registers a session for the token with a fresh expiry and no flags.
// Re-creating an existing token overwrites it; if the token previously
// belonged to another user, the old owner's reverse entry is removed.
func (sm *SessionManager) Create(token, userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if prev, exists := sm.tokens[token]; exists && prev.userID != userID {
		sm.unindexLocked(prev.userID, token)
	}

	sm.tokens[token] = &session{
		userID:    userID,
		expiresAt: sm.now().Add(sm.ttl),
		flags:     make(map[string]struct{}),
	}

	set, ok := sm.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		sm.byUser[userID] = set
	}
	set[token] = struct{}{}
}

// Close removes the session for the token. Unknown tokens are a no-op.
func (sm *SessionManager) Close(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, exists := sm.tokens[token]
	if !exists {
		slog.Debug("close called for unknown session token")
		return
	}
	delete(sm.tokens, token)
	sm.unindexLocked(s.userID, token)
}

// CloseAllForUser removes every session belonging to the user.
func (sm *SessionManager) CloseAllForUser(userID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for token := range sm.byUser[userID] {
		delete(sm.tokens, token)
	}
	delete(sm.byUser, userID)
}

// Extend pushes the session's expiry to now+TTL and reports whether the
// token was known. A token that has expired but not yet been swept is
// revived rather than rejected.
func (sm *SessionManager) Extend(token string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, exists := sm.tokens[token]
	if !exists {
		slog.Debug("extend called for unknown session token")
		return false
	}
	s.expiresAt = sm.now().Add(sm.ttl)
	return true
}

// IsActive reports whether the token exists and its expiry is strictly in
// the future. It never removes the session, even when expired.
func (sm *SessionManager) IsActive(token string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.tokens[token]
	return exists && s.expiresAt.After(sm.now())
}

// Resolve returns the owning user ID for an active session token.
func (sm *SessionManager) Resolve(token string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.tokens[token]
	if !exists || !s.expiresAt.After(sm.now()) {
		return "", false
	}
	return s.userID, true
}

// Lookup returns a snapshot of the session for the token, or nil if the
// token is unknown. Expired sessions are still returned; use IsActive or
// Resolve when liveness matters.
func (sm *SessionManager) Lookup(token string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.tokens[token]
	if !exists {
		return nil
	}
	return sm.snapshotLocked(token, s)
}

// ActiveTokens returns the tokens of the user's unexpired sessions.
func (sm *SessionManager) ActiveTokens(userID string) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	now := sm.now()
	tokens := make([]string, 0, len(sm.byUser[userID]))
	for token := range sm.byUser[userID] {
		if s, exists := sm.tokens[token]; exists && s.expiresAt.After(now) {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// AddFlag attaches a marker to the session. Adding an existing flag or
// flagging an unknown token is a no-op.
func (sm *SessionManager) AddFlag(token, flag string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, exists := sm.tokens[token]
	if !exists {
		slog.Debug("flag add for unknown session token", "flag", flag)
		return
	}
	s.flags[flag] = struct{}{}
}

// RemoveFlag detaches a marker from the session. Removing an absent flag or
// unflagging an unknown token is a no-op.
func (sm *SessionManager) RemoveFlag(token, flag string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, exists := sm.tokens[token]
	if !exists {
		return
	}
	delete(s.flags, flag)
}

// HasFlag reports whether the session carries the flag.
func (sm *SessionManager) HasFlag(token, flag string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.tokens[token]
	if !exists {
		return false
	}
	_, ok := s.flags[flag]
	return ok
}

// Flags returns the session's flags in sorted order.
func (sm *SessionManager) Flags(token string) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s, exists := sm.tokens[token]
	if !exists {
		return nil
	}
	return sortedFlags(s.flags)
}

// AddFlagForUser attaches the flag to every session of the user.
func (sm *SessionManager) AddFlagForUser(userID, flag string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for token := range sm.byUser[userID] {
		if s, exists := sm.tokens[token]; exists {
			s.flags[flag] = struct{}{}
		}
	}
}

// RemoveFlagForUser detaches the flag from every session of the user.
func (sm *SessionManager) RemoveFlagForUser(userID, flag string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for token := range sm.byUser[userID] {
		if s, exists := sm.tokens[token]; exists {
			delete(s.flags, flag)
		}
	}
}

// FlagsForUser returns the union of flags across the user's sessions,
// sorted and duplicate-free.
func (sm *SessionManager) FlagsForUser(userID string) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	union := make(map[string]struct{})
	for token := range sm.byUser[userID] {
		if s, exists := sm.tokens[token]; exists {
			for f := range s.flags {
				union[f] = struct{}{}
			}
		}
	}
	return sortedFlags(union)
}

// Len returns the number of tracked sessions, expired ones included.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.tokens)
}

// Sweep removes expired sessions and returns how many were dropped.
// Sweeping is purely an optimization: expired sessions already answer
// IsActive and Resolve as inactive.
func (sm *SessionManager) Sweep() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	removed := 0
	for token, s := range sm.tokens {
		if !s.expiresAt.After(now) {
			delete(sm.tokens, token)
			sm.unindexLocked(s.userID, token)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until the context is cancelled.
func (sm *SessionManager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sm.Sweep(); n > 0 {
					slog.Debug("swept expired sessions", "count", n)
				}
			}
		}
	}()
}

// unindexLocked removes the token from the user's reverse-index set and
// drops the set when it becomes empty. Caller must hold sm.mu.
func (sm *SessionManager) unindexLocked(userID, token string) {
	set, ok := sm.byUser[userID]
	if !ok {
		return
	}
	delete(set, token)
	if len(set) == 0 {
		delete(sm.byUser, userID)
	}
}

// snapshotLocked builds a defensive copy. Caller must hold sm.mu.
func (sm *SessionManager) snapshotLocked(token string, s *session) *Session {
	return &Session{
		Token:     token,
		UserID:    s.userID,
		ExpiresAt: s.expiresAt,
		Flags:     sortedFlags(s.flags),
	}
}

func sortedFlags(set map[string]struct{}) []string {
	flags := make([]string, 0, len(set))
	for f := range set {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	return flags
}
