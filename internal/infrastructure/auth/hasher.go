// Package auth provides the authentication building blocks: password
// hashing, token encoding and the Redis-backed session store.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost balances hashing time against brute-force resistance,
// matching OWASP guidance for bcrypt work factors.
const DefaultBcryptCost = 12

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordHasher hashes and verifies passwords with bcrypt.
// Each Hash call generates a fresh salt, so hashing the same password twice
// yields different hashes.
type PasswordHasher struct {
	cost int
}

// PasswordHasherConfig contains configuration for PasswordHasher.
type PasswordHasherConfig struct {
	// Cost is the bcrypt work factor. Zero means DefaultBcryptCost.
	Cost int
}

// NewPasswordHasher creates a new PasswordHasher.
func NewPasswordHasher(cfg PasswordHasherConfig) *PasswordHasher {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}

	return &PasswordHasher{cost: cost}
}

// Hash produces a bcrypt hash of the password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// Verify reports whether the password matches the hash.
// bcrypt's comparison is constant-time with respect to the digest.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
