package password

import (
	"golang.org/x/crypto/bcrypt"
)

// DummyHash is a valid bcrypt hash of a throwaway value. Login verifies
// against it when the username is unknown so that both failure paths spend
// a comparable amount of time in bcrypt.
const DummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hasher is the bcrypt implementation of domain.PasswordHasher. The cost is
// stored per hash by bcrypt itself, so it can be raised later and old hashes
// keep verifying.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *Hasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
