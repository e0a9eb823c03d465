package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadSecret is returned when the presented operator secret does not match.
var ErrBadSecret = errors.New("invalid operator secret")

// Authenticator checks the operator secret against its bcrypt hash.
type Authenticator struct {
	hash []byte
}

// NewAuthenticator returns an Authenticator for a bcrypt hash. An empty
// hash puts the registry in open mode.
func NewAuthenticator(hash string) (*Authenticator, error) {
	if hash == "" {
		return &Authenticator{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("operator secret hash: %w", err)
	}
	return &Authenticator{hash: []byte(hash)}, nil
}

// Open reports whether operator routes are unauthenticated.
func (a *Authenticator) Open() bool { return len(a.hash) == 0 }

// Check verifies secret. It always fails in open mode, where no tokens are needed.
func (a *Authenticator) Check(secret string) error {
	if a.Open() {
		return ErrBadSecret
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(secret)); err != nil {
		return ErrBadSecret
	}
	return nil
}

// HashSecret returns the bcrypt hash to configure for secret.
func HashSecret(secret string) (string, error) {
	if len(secret) < 12 {
		return "", errors.New("operator secret must be at least 12 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash operator secret: %w", err)
	}
	return string(hash), nil
}
