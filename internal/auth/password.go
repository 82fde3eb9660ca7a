// Package auth provides the credential primitives used by the identity
// service: bcrypt password hashing and the signed access/refresh token pair.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords with bcrypt. Plaintext
// passwords must never be logged or stored.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher returns a hasher with cost clamped to bcrypt's range. A
// non-positive cost selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	cost = clampCost(cost)
	h := &PasswordHasher{cost: cost}
	// Hash of a throwaway value at the same cost, compared against for
	// unknown accounts so the response time matches a real check.
	h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	return h
}

func clampCost(cost int) int {
	switch {
	case cost <= 0:
		return bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		return bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		return bcrypt.MaxCost
	}
	return cost
}

// Cost returns the effective bcrypt cost.
func (h *PasswordHasher) Cost() int { return h.cost }

// Hash produces a bcrypt hash of password suitable for storage.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash. A malformed hash is an error;
// a plain mismatch is (false, nil).
func (h *PasswordHasher) Verify(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
}

// VerifyDummy burns the same CPU time as Verify and always fails.
func (h *PasswordHasher) VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
}
