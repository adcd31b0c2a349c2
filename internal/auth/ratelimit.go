// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package auth

import (
	"sync"
	"time"
)

// Default rate limiting configuration.
const (
	// DefaultMaxAttempts is the number of login attempts allowed per window.
	DefaultMaxAttempts = 5

	// DefaultWindow is the sliding window over which attempts are counted.
	DefaultWindow = 5 * time.Minute
)

// LoginLimiter is a sliding-window rate limiter keyed by identifier
// (typically the login email). State is process-local and lost on restart.
type LoginLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	attempts    map[string][]time.Time
	now         func() time.Time
}

// NewLoginLimiter creates a limiter allowing maxAttempts per window.
// Non-positive arguments fall back to the defaults.
func NewLoginLimiter(maxAttempts int, window time.Duration) *LoginLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &LoginLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records an attempt for the identifier if it is under the limit.
// Returns false without recording anything when the identifier already has
// maxAttempts attempts inside the window. The prune-check-append sequence is
// atomic, so concurrent callers cannot overshoot the limit.
func (l *LoginLimiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.pruneLocked(identifier, now)

	if len(kept) >= l.maxAttempts {
		return false
	}

	l.attempts[identifier] = append(kept, now)
	return true
}

// Reset discards all recorded attempts for the identifier.
// Resetting an unknown identifier is a no-op.
func (l *LoginLimiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, identifier)
}

// Attempts returns the number of attempts currently inside the window.
func (l *LoginLimiter) Attempts(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pruneLocked(identifier, l.now()))
}

// pruneLocked drops timestamps at or past the window edge and returns the
// retained slice. Caller must hold l.mu.
func (l *LoginLimiter) pruneLocked(identifier string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	recorded := l.attempts[identifier]

	kept := recorded[:0]
	for _, t := range recorded {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) == 0 {
		delete(l.attempts, identifier)
		return nil
	}
	l.attempts[identifier] = kept
	return kept
}
