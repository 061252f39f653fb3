// Package authhash provides the one Argon2id password hash/verify scheme
// shared by both binaries: the agent computes a hash of its locally
// generated per-agent secret and sends only the hash in its register frame
// (shared/wire.RegisterPayload.PasswordHash); the dashboard verifies a
// browser-submitted plaintext against that stored hash for the per-agent
// password gate (§4.8). Both sides must agree on the exact parameters and
// encoding, so the scheme lives here rather than being duplicated.
package authhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Time    = 2
	argon2Memory  = 64 * 1024
	argon2Threads = 2
	argon2KeyLen  = 32
	saltLen       = 16
)

// Hash returns an Argon2id hash of password, encoded as "saltHex:hashHex".
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("authhash: generating salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(sum), nil
}

// Verify reports whether password matches the "saltHex:hashHex" stored hash.
// An invalid hash format fails closed rather than propagating an error,
// since either way authentication must fail.
func Verify(password, stored string) bool {
	saltHex, sumHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(sumHex)
	if err != nil {
		return false
	}

	actual := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
