package domain

//go:generate mockgen -destination=../../mocks/mock_credential_store.go -package=mocks github.com/petrachuk/avp-authcore/internal/auth/domain CredentialStore

import (
	"context"
	"time"
)

// CredentialStore is the persistence contract for identities and roles.
// Every call is atomic; Create must surface a username uniqueness violation
// as ErrDuplicateIdentity even when a prior existence check passed.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	Create(ctx context.Context, identity *Identity) error
	UpdateRoles(ctx context.Context, id string, roles []string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	RecordLoginAttempt(ctx context.Context, username string, success bool) error
	CountRecentFailures(ctx context.Context, username string, since time.Time) (int, error)
}

// PasswordHasher produces and checks one-way salted credential hashes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}
