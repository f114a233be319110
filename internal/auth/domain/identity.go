package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an identity. Identities are never deleted,
// only deactivated through status changes.
type Status string

const (
	StatusActive      Status = "active"
	StatusLocked      Status = "locked"
	StatusUnconfirmed Status = "unconfirmed"
)

type Identity struct {
	ID           string
	Username     string
	PasswordHash string
	Status       Status
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the identity holds the given role. Role names
// compare case-insensitively everywhere in the system.
func (i *Identity) HasRole(name string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, name) {
			return true
		}
	}
	return false
}

type Role struct {
	Name        string
	Description string
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type LoginAttempt struct {
	ID          string
	Username    string
	AttemptTime time.Time
	Successful  bool
}
