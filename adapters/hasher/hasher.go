// Package hasher provides pluggable password/token hashing, used by the
// approval subsystem to store approval tokens at rest without keeping
// the plaintext around.
package hasher

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and compares secret values.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// Bcrypt is the production Hasher, backed by golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt builds a Bcrypt hasher at cost, clamping out-of-range values
// to bcrypt's default cost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (b *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
}

// Compare reports whether hash was produced from plaintext.
func (b *Bcrypt) Compare(hash []byte, plaintext string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// Fake is a no-op Hasher for tests: "hash" is the plaintext itself.
type Fake struct{}

// Hash returns plaintext unchanged.
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare does a byte-for-byte comparison.
func (Fake) Compare(hash []byte, plaintext string) bool {
	return string(hash) == plaintext
}
