package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petrachuk/avp-authcore/config"
	"github.com/petrachuk/avp-authcore/internal/auth/domain"
	"github.com/petrachuk/avp-authcore/internal/auth/dto"
	"github.com/petrachuk/avp-authcore/internal/auth/password"
	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
)

// AuthService verifies credentials, manages role assignment and delegates
// token minting to a TokenGenerator. It holds no mutable state of its own;
// the credential store arbitrates all races.
type AuthService struct {
	store  domain.CredentialStore
	hasher domain.PasswordHasher
	policy *password.Policy
	tokens TokenGenerator
	cfg    *config.Config
	log    *slog.Logger
}

func NewAuthService(store domain.CredentialStore, hasher domain.PasswordHasher, policy *password.Policy,
	tokens TokenGenerator, cfg *config.Config, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		store:  store,
		hasher: hasher,
		policy: policy,
		tokens: tokens,
		cfg:    cfg,
		log:    log,
	}
}

func (s *AuthService) Register(ctx context.Context, input dto.RegisterInput) (*domain.Identity, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", autherrors.ErrWeakCredential)
	}
	if err := s.policy.Validate(input.Password); err != nil {
		return nil, err
	}

	existing, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, autherrors.ErrDuplicateIdentity
	}

	roles, err := s.resolveRoles(ctx, input.Roles)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	status := domain.StatusActive
	if s.cfg.RequireEmailConfirmation {
		status = domain.StatusUnconfirmed
	}

	now := time.Now()
	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Status:       status,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The pre-check above can race a concurrent registration; the store's
	// unique constraint is the final arbiter and reports ErrDuplicateIdentity.
	if err := s.store.Create(ctx, identity); err != nil {
		return nil, err
	}

	return identity, nil
}

func (s *AuthService) Login(ctx context.Context, input dto.LoginInput) (*domain.TokenPair, error) {
	identity, err := s.store.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, err
	}

	if identity == nil {
		// Burn a bcrypt comparison so the unknown-username path takes about
		// as long as a wrong-password one.
		s.hasher.Verify(input.Password, password.DummyHash)
		s.recordAttempt(ctx, input.Username, false)
		return nil, autherrors.ErrInvalidCredential
	}

	if !s.hasher.Verify(input.Password, identity.PasswordHash) {
		s.recordAttempt(ctx, input.Username, false)
		s.maybeLock(ctx, identity)
		return nil, autherrors.ErrInvalidCredential
	}

	switch identity.Status {
	case domain.StatusLocked:
		return nil, autherrors.ErrAccountLocked
	case domain.StatusUnconfirmed:
		return nil, autherrors.ErrAccountUnconfirmed
	}

	s.recordAttempt(ctx, input.Username, true)

	return s.mintPair(identity)
}

// Refresh exchanges a valid refresh token for a new token pair. Roles are
// re-read from the store rather than taken from the presented token, so a
// role revoked after the refresh token was issued never reappears in the new
// access token.
func (s *AuthService) Refresh(ctx context.Context, input dto.RefreshInput) (*domain.TokenPair, error) {
	claims, err := s.tokens.Validate(input.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	identity, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, autherrors.ErrIdentityNotFound
	}
	if identity.Status == domain.StatusLocked {
		return nil, autherrors.ErrAccountLocked
	}

	access, expiresAt, err := s.tokens.IssueAccessToken(identity.ID, identity.Roles, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh := input.RefreshToken
	if s.cfg.RotateRefreshTokens {
		refresh, _, err = s.tokens.IssueRefreshToken(identity.ID, s.cfg.RefreshTTL)
		if err != nil {
			return nil, fmt.Errorf("issue refresh token: %w", err)
		}
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// AssignRole grants a role to an identity. Granting an already-held role is
// a no-op.
func (s *AuthService) AssignRole(ctx context.Context, identityID, roleName string) error {
	role, identity, err := s.roleAndIdentity(ctx, identityID, roleName)
	if err != nil {
		return err
	}
	if identity.HasRole(role.Name) {
		return nil
	}
	return s.store.UpdateRoles(ctx, identity.ID, append(identity.Roles, role.Name))
}

// RevokeRole removes a role from an identity. Revoking an unheld role is a
// no-op. Outstanding access tokens keep the role until they expire; the
// refresh flow picks up the change.
func (s *AuthService) RevokeRole(ctx context.Context, identityID, roleName string) error {
	role, identity, err := s.roleAndIdentity(ctx, identityID, roleName)
	if err != nil {
		return err
	}
	if !identity.HasRole(role.Name) {
		return nil
	}

	remaining := make([]string, 0, len(identity.Roles))
	for _, r := range identity.Roles {
		if !strings.EqualFold(r, role.Name) {
			remaining = append(remaining, r)
		}
	}
	return s.store.UpdateRoles(ctx, identity.ID, remaining)
}

func (s *AuthService) roleAndIdentity(ctx context.Context, identityID, roleName string) (*domain.Role, *domain.Identity, error) {
	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return nil, nil, err
	}
	if role == nil {
		return nil, nil, autherrors.ErrRoleNotFound
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		return nil, nil, err
	}
	if identity == nil {
		return nil, nil, autherrors.ErrIdentityNotFound
	}

	return role, identity, nil
}

func (s *AuthService) resolveRoles(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{s.cfg.DefaultRole}, nil
	}

	roles := make([]string, 0, len(requested))
	for _, name := range requested {
		role, err := s.store.FindRoleByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if role == nil {
			return nil, fmt.Errorf("%w: %s", autherrors.ErrRoleNotFound, name)
		}
		roles = append(roles, role.Name)
	}
	return roles, nil
}

func (s *AuthService) mintPair(identity *domain.Identity) (*domain.TokenPair, error) {
	access, expiresAt, err := s.tokens.IssueAccessToken(identity.ID, identity.Roles, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.tokens.IssueRefreshToken(identity.ID, s.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// recordAttempt is best-effort: a failed audit write must not turn a login
// outcome into a storage error.
func (s *AuthService) recordAttempt(ctx context.Context, username string, success bool) {
	if err := s.store.RecordLoginAttempt(ctx, username, success); err != nil {
		s.log.Warn("failed to record login attempt", "username", username, "error", err)
	}
}

// maybeLock flips an account to locked once the configured number of failed
// attempts accumulates inside the lock window. Disabled when the threshold
// is zero.
func (s *AuthService) maybeLock(ctx context.Context, identity *domain.Identity) {
	if s.cfg.LockThreshold <= 0 || identity.Status == domain.StatusLocked {
		return
	}

	since := time.Now().Add(-s.cfg.LockWindow)
	failures, err := s.store.CountRecentFailures(ctx, identity.Username, since)
	if err != nil {
		s.log.Warn("failed to count login failures", "username", identity.Username, "error", err)
		return
	}
	// The attempt that triggered this call was already recorded.
	if failures < s.cfg.LockThreshold {
		return
	}

	if err := s.store.UpdateStatus(ctx, identity.ID, domain.StatusLocked); err != nil {
		s.log.Warn("failed to lock account", "identity_id", identity.ID, "error", err)
		return
	}
	s.log.Info("account locked after repeated failures", "identity_id", identity.ID)
}
