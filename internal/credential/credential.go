// Package credential hashes and verifies principal passwords.
package credential

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/rolegate/rolegate/internal/shared"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt accepts, in bytes.
const MaxPasswordBytes = 72

// Hasher produces and checks one-way credential hashes.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// Bcrypt implements Hasher with a per-hash salt.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a bcrypt Hasher. Out of range costs fall back to bcrypt.DefaultCost.
func NewBcrypt(cost int) Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Bcrypt{Cost: cost}
}

// Hash returns the bcrypt hash of plaintext. Two calls with the same input yield different hashes.
// Over-long input is a validation error; any other failure is shared.ErrCredential.
func (b Bcrypt) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", tooLong()
	}
	cost := b.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrCredential, err)
	}
	return string(out), nil
}

// Verify reports whether plaintext matches hash. Malformed hashes never match.
func (b Bcrypt) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// CheckPolicy enforces the password policy. Callers run it before hashing.
func CheckPolicy(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return shared.Invalid("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return tooLong()
	}
	return nil
}

func tooLong() error {
	return shared.Invalid("password", fmt.Sprintf("must be at most %d bytes", MaxPasswordBytes))
}
