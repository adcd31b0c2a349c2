// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package auth provides account, credential, and session primitives for Gatekeeper.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Salted SHA-256 scheme parameters. The salt is stored as hex, so 8 random
// bytes produce the 16 salt characters the stored format carries.
const (
	shaSaltBytes = 8
	shaPrefix    = "$SHA$"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing hash string for the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored hash.
	// Returns (true, nil) on match and (false, nil) on mismatch. A stored
	// value that cannot be parsed is a mismatch, not an error.
	Verify(password, stored string) (bool, error)

	// NeedsUpgrade returns true if the stored hash should be re-hashed
	// under this hasher's scheme on the next successful login.
	NeedsUpgrade(stored string) bool
}

// SHAHasher implements PasswordHasher using salted double SHA-256.
// Stored values look like $SHA$<16 hex chars>$<64 hex chars>.
type SHAHasher struct{}

// NewSHAHasher creates a new SHAHasher.
func NewSHAHasher() *SHAHasher {
	return &SHAHasher{}
}

// Hash produces a salted double SHA-256 hash with a random salt.
func (h *SHAHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, shaSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	return h.HashWithSalt(password, hex.EncodeToString(salt)), nil
}

// HashWithSalt produces the stored form for a password and an explicit salt.
// The salt is used verbatim; callers outside tests should prefer Hash.
func (h *SHAHasher) HashWithSalt(password, salt string) string {
	return shaPrefix + salt + "$" + shaDigest(password, salt)
}

// shaDigest computes hex(SHA-256(hex(SHA-256(password)) + salt)).
// The inner digest is hex-encoded before the salt is appended; both stages
// must match byte for byte or existing stored credentials stop verifying.
func shaDigest(password, salt string) string {
	inner := sha256.Sum256([]byte(password))
	outer := sha256.Sum256([]byte(hex.EncodeToString(inner[:]) + salt))
	return hex.EncodeToString(outer[:])
}

// Verify checks the password against a stored $SHA$ hash.
// Any stored value that does not have exactly the SHA marker, salt, and
// digest fields verifies false with a nil error.
func (h *SHAHasher) Verify(password, stored string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 || parts[0] != "" || parts[1] != "SHA" {
		return false, nil
	}
	salt, digest := parts[2], parts[3]
	if salt == "" || digest == "" {
		return false, nil
	}

	computed := shaDigest(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1, nil
}

// NeedsUpgrade always returns false: salted SHA-256 is the canonical
// stored format and re-hashing would churn every credential row.
func (h *SHAHasher) NeedsUpgrade(string) bool {
	return false
}

// Argon2idHasher implements PasswordHasher using argon2id for new hashes
// while still verifying legacy $SHA$ credentials.
type Argon2idHasher struct {
	legacy SHAHasher
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)

	return encoded, nil
}

// Verify checks the password against an argon2id hash. Legacy $SHA$ values
// are delegated to the SHA scheme so existing accounts keep working while
// their hashes are upgraded lazily.
func (h *Argon2idHasher) Verify(password, stored string) (bool, error) {
	if strings.HasPrefix(stored, shaPrefix) {
		return h.legacy.Verify(password, stored)
	}

	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, nil
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, nil
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, nil
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, nil
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, nil
	}

	// Reject parameters that would truncate or overflow in the key derivation.
	if threads == 0 || threads > 255 {
		return false, nil
	}
	keyLen := len(expected)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, nil
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade returns true for any hash that is not argon2id.
func (h *Argon2idHasher) NeedsUpgrade(stored string) bool {
	return !strings.HasPrefix(stored, "$argon2id$")
}

// Compile-time interface checks.
var (
	_ PasswordHasher = (*SHAHasher)(nil)
	_ PasswordHasher = (*Argon2idHasher)(nil)
)
