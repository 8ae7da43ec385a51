// Package gamepassword hashes and checks lobby room passwords.
package gamepassword

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches the work factor room passwords have always used.
const DefaultCost = 10

// Hasher is the password boundary used by the game service.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(candidate, hash string) bool
}

// Bcrypt implements Hasher with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a hasher with the given cost. Values outside bcrypt's
// accepted range fall back to DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether candidate matches hash. A malformed hash never
// matches.
func (b *Bcrypt) Verify(candidate, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}
