// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package auth_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopher-w1/gatekeeper/internal/auth"
)

func TestSHAHasher_Hash(t *testing.T) {
	hasher := auth.NewSHAHasher()

	t.Run("produces the expected stored format", func(t *testing.T) {
		stored, err := hasher.Hash("Sup3rSecret")
		require.NoError(t, err)

		parts := strings.Split(stored, "$")
		require.Len(t, parts, 4)
		assert.Empty(t, parts[0])
		assert.Equal(t, "SHA", parts[1])
		assert.Len(t, parts[2], 16, "salt must be 16 hex characters")
		assert.Len(t, parts[3], 64, "digest must be 64 hex characters")
	})

	t.Run("salts are random", func(t *testing.T) {
		first, err := hasher.Hash("Sup3rSecret")
		require.NoError(t, err)
		second, err := hasher.Hash("Sup3rSecret")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, auth.ErrEmptyPassword)
	})
}

func TestSHAHasher_HashWithSalt(t *testing.T) {
	hasher := auth.NewSHAHasher()

	// Recompute the digest independently: the outer hash covers the
	// hex-encoded inner hash concatenated with the salt.
	password := "Passw0rd!"
	salt := "00112233aabbccdd"
	inner := sha256.Sum256([]byte(password))
	outer := sha256.Sum256([]byte(hex.EncodeToString(inner[:]) + salt))
	want := "$SHA$" + salt + "$" + hex.EncodeToString(outer[:])

	assert.Equal(t, want, hasher.HashWithSalt(password, salt))
}

func TestSHAHasher_Verify(t *testing.T) {
	hasher := auth.NewSHAHasher()

	t.Run("round trip", func(t *testing.T) {
		stored, err := hasher.Hash("Correct1Horse")
		require.NoError(t, err)

		ok, err := hasher.Verify("Correct1Horse", stored)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = hasher.Verify("Wrong1Horse", stored)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed stored values fail closed", func(t *testing.T) {
		stored := []string{
			"",
			"plaintext",
			"$SHA$deadbeef00112233",
			"$SHA$deadbeef00112233$digest$extra",
			"$MD5$deadbeef00112233$0000000000000000000000000000000000000000000000000000000000000000",
			"SHA$deadbeef00112233$0000000000000000000000000000000000000000000000000000000000000000",
			"$SHA$$0000000000000000000000000000000000000000000000000000000000000000",
			"$SHA$deadbeef00112233$",
		}
		for _, hash := range stored {
			ok, err := hasher.Verify("anything", hash)
			require.NoError(t, err, "hash %q must not raise", hash)
			assert.False(t, ok, "hash %q must not verify", hash)
		}
	})

	t.Run("never reports upgrade", func(t *testing.T) {
		assert.False(t, hasher.NeedsUpgrade("$argon2id$v=19$m=65536,t=1,p=4$x$y"))
	})
}

func TestArgon2idHasher(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("round trip", func(t *testing.T) {
		stored, err := hasher.Hash("Correct1Horse")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(stored, "$argon2id$"))

		ok, err := hasher.Verify("Correct1Horse", stored)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = hasher.Verify("Wrong1Horse", stored)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("verifies legacy stored hashes", func(t *testing.T) {
		legacy := auth.NewSHAHasher().HashWithSalt("Old1Secret", "00112233aabbccdd")

		ok, err := hasher.Verify("Old1Secret", legacy)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("flags legacy hashes for upgrade", func(t *testing.T) {
		legacy := auth.NewSHAHasher().HashWithSalt("Old1Secret", "00112233aabbccdd")
		assert.True(t, hasher.NeedsUpgrade(legacy))

		current, err := hasher.Hash("New1Secret")
		require.NoError(t, err)
		assert.False(t, hasher.NeedsUpgrade(current))
	})

	t.Run("malformed stored values fail closed", func(t *testing.T) {
		for _, hash := range []string{"", "$argon2id$garbage", "$argon2i$v=19$m=1,t=1,p=1$x$y"} {
			ok, err := hasher.Verify("anything", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		}
	})
}
