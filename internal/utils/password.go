package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest input bcrypt accepts.  The limit is in
// bytes, so multibyte passwords reach it with fewer characters.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for input over MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher hashes and verifies credentials with bcrypt.
type PasswordHasher struct {
	cost  int
	dummy []byte // compared against when the account does not exist
}

// NewPasswordHasher returns a hasher for the given bcrypt cost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		return nil, err
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

// Hash returns a salted bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash.  A mismatch is not an error;
// a corrupt hash is.
func (h *PasswordHasher) Verify(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// Burn spends the same work as a real comparison.  Login calls it for
// unknown emails so response time does not reveal whether they exist.
func (h *PasswordHasher) Burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
