// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jimuzhe/doNow/internal/autherr"
	"golang.org/x/crypto/bcrypt"
)

// MaxBytes is the longest password bcrypt accepts.
const MaxBytes = 72

// Hasher hashes passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost      int
	dummyHash []byte
}

// NewHasher creates a hasher for the given bcrypt cost. It also prepares a
// dummy hash at the same cost so lookups of unknown users take as long as real ones.
func NewHasher(cost int) (*Hasher, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Hasher{cost: cost, dummyHash: dummy}, nil
}

// Hash returns a salted bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", autherr.ErrLongPassword
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. Malformed hashes never match.
func (h *Hasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// VerifyDummy burns the same time as Verify against a real hash.
func (h *Hasher) VerifyDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
}

// Policy holds the password rules applied on register and reset.
type Policy struct {
	MinLength int
}

// Check validates a new password. Length counts characters, not bytes.
func (p Policy) Check(plain string) error {
	if utf8.RuneCountInString(plain) < p.MinLength {
		return autherr.ErrWeakPassword
	}
	if len(plain) > MaxBytes {
		return autherr.ErrLongPassword
	}
	return nil
}
