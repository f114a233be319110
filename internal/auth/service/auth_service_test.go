package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/petrachuk/avp-authcore/config"
	"github.com/petrachuk/avp-authcore/internal/auth/domain"
	"github.com/petrachuk/avp-authcore/internal/auth/dto"
	"github.com/petrachuk/avp-authcore/internal/auth/password"
	"github.com/petrachuk/avp-authcore/internal/auth/service"
	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
	"github.com/petrachuk/avp-authcore/internal/mocks"
)

func testConfig() *config.Config {
	return &config.Config{
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          24 * time.Hour,
		RotateRefreshTokens: true,
		PasswordMinLength:   8,
		PasswordMinClasses:  2,
		DefaultRole:         "user",
	}
}

func newAuthService(t *testing.T, cfg *config.Config) (*service.AuthService, *mocks.MockCredentialStore, *mocks.MockTokenGenerator, *password.Hasher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockStore := mocks.NewMockCredentialStore(ctrl)
	mockTokens := mocks.NewMockTokenGenerator(ctrl)
	hasher := password.NewHasher(bcrypt.MinCost)
	policy := password.NewPolicy(cfg.PasswordMinLength, cfg.PasswordMinClasses)

	s := service.NewAuthService(mockStore, hasher, policy, mockTokens, cfg, nil)
	return s, mockStore, mockTokens, hasher
}

func hashOf(t *testing.T, hasher *password.Hasher, plaintext string) string {
	t.Helper()
	hash, err := hasher.Hash(plaintext)
	require.NoError(t, err)
	return hash
}

func TestAuthService_Register_Success(t *testing.T) {
	cfg := testConfig()
	s, mockStore, _, _ := newAuthService(t, cfg)

	input := dto.RegisterInput{Username: "alice", Password: "Password1"}

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, nil)
	mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	identity, err := s.Register(context.Background(), input)

	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "alice", identity.Username)
	assert.NotEmpty(t, identity.ID)
	assert.NotEqual(t, "Password1", identity.PasswordHash)
	assert.Equal(t, domain.StatusActive, identity.Status)
	assert.Equal(t, []string{"user"}, identity.Roles)
	assert.NotZero(t, identity.CreatedAt)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	s, _, _, _ := newAuthService(t, testConfig())

	for _, pw := range []string{"short1A", "alllowercaseonly", ""} {
		_, err := s.Register(context.Background(), dto.RegisterInput{Username: "alice", Password: pw})
		assert.ErrorIs(t, err, autherrors.ErrWeakCredential, "password %q", pw)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	s, mockStore, _, _ := newAuthService(t, testConfig())

	existing := &domain.Identity{ID: "id-1", Username: "alice"}
	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(existing, nil)

	_, err := s.Register(context.Background(), dto.RegisterInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, autherrors.ErrDuplicateIdentity)
}

func TestAuthService_Register_DuplicateAtWriteTime(t *testing.T) {
	// A concurrent registration can slip past the pre-check; the store's
	// unique constraint reports it at Create time and the error must stay
	// a duplicate, not a generic storage failure.
	s, mockStore, _, _ := newAuthService(t, testConfig())

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, nil)
	mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(autherrors.ErrDuplicateIdentity)

	_, err := s.Register(context.Background(), dto.RegisterInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, autherrors.ErrDuplicateIdentity)
}

func TestAuthService_Register_RequestedRoles(t *testing.T) {
	s, mockStore, _, _ := newAuthService(t, testConfig())

	t.Run("known roles are resolved", func(t *testing.T) {
		mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, nil)
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(&domain.Role{Name: "admin"}, nil)
		mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		identity, err := s.Register(context.Background(), dto.RegisterInput{
			Username: "alice", Password: "Password1", Roles: []string{"admin"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, identity.Roles)
	})

	t.Run("unknown role fails", func(t *testing.T) {
		mockStore.EXPECT().FindByUsername(gomock.Any(), "bob").Return(nil, nil)
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "superuser").Return(nil, nil)

		_, err := s.Register(context.Background(), dto.RegisterInput{
			Username: "bob", Password: "Password1", Roles: []string{"superuser"},
		})
		assert.ErrorIs(t, err, autherrors.ErrRoleNotFound)
	})
}

func TestAuthService_Register_UnconfirmedWhenConfirmationRequired(t *testing.T) {
	cfg := testConfig()
	cfg.RequireEmailConfirmation = true
	s, mockStore, _, _ := newAuthService(t, cfg)

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, nil)
	mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	identity, err := s.Register(context.Background(), dto.RegisterInput{Username: "alice", Password: "Password1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnconfirmed, identity.Status)
}

func TestAuthService_Login_Success(t *testing.T) {
	cfg := testConfig()
	s, mockStore, mockTokens, hasher := newAuthService(t, cfg)

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusActive,
		Roles:        []string{"user", "admin"},
	}
	expiresAt := time.Now().Add(cfg.AccessTTL)

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)
	mockStore.EXPECT().RecordLoginAttempt(gomock.Any(), "alice", true).Return(nil)
	mockTokens.EXPECT().IssueAccessToken("id-1", []string{"user", "admin"}, cfg.AccessTTL).
		Return("access-token", expiresAt, nil)
	mockTokens.EXPECT().IssueRefreshToken("id-1", cfg.RefreshTTL).
		Return("refresh-token", time.Now().Add(cfg.RefreshTTL), nil)

	pair, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "Password1"})

	require.NoError(t, err)
	assert.Equal(t, "access-token", pair.AccessToken)
	assert.Equal(t, "refresh-token", pair.RefreshToken)
	assert.Equal(t, expiresAt, pair.ExpiresAt)
}

func TestAuthService_Login_FailureIsIndistinguishable(t *testing.T) {
	s, mockStore, _, hasher := newAuthService(t, testConfig())

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusActive,
	}

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)
	mockStore.EXPECT().RecordLoginAttempt(gomock.Any(), "alice", false).Return(nil)
	_, wrongPasswordErr := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "WrongPass1"})

	mockStore.EXPECT().FindByUsername(gomock.Any(), "ghost").Return(nil, nil)
	mockStore.EXPECT().RecordLoginAttempt(gomock.Any(), "ghost", false).Return(nil)
	_, unknownUserErr := s.Login(context.Background(), dto.LoginInput{Username: "ghost", Password: "Whatever1"})

	assert.ErrorIs(t, wrongPasswordErr, autherrors.ErrInvalidCredential)
	assert.ErrorIs(t, unknownUserErr, autherrors.ErrInvalidCredential)
	assert.Equal(t, autherrors.CodeOf(wrongPasswordErr), autherrors.CodeOf(unknownUserErr))
}

func TestAuthService_Login_LockedAccount(t *testing.T) {
	s, mockStore, _, hasher := newAuthService(t, testConfig())

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusLocked,
	}
	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)

	_, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, autherrors.ErrAccountLocked)
}

func TestAuthService_Login_UnconfirmedAccount(t *testing.T) {
	s, mockStore, _, hasher := newAuthService(t, testConfig())

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusUnconfirmed,
	}
	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)

	_, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, autherrors.ErrAccountUnconfirmed)
}

func TestAuthService_Login_LocksAfterThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.LockThreshold = 3
	cfg.LockWindow = 15 * time.Minute
	s, mockStore, _, hasher := newAuthService(t, cfg)

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusActive,
	}

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)
	mockStore.EXPECT().RecordLoginAttempt(gomock.Any(), "alice", false).Return(nil)
	mockStore.EXPECT().CountRecentFailures(gomock.Any(), "alice", gomock.Any()).Return(3, nil)
	mockStore.EXPECT().UpdateStatus(gomock.Any(), "id-1", domain.StatusLocked).Return(nil)

	_, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "WrongPass1"})
	assert.ErrorIs(t, err, autherrors.ErrInvalidCredential)
}

func TestAuthService_Login_NoLockBelowThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.LockThreshold = 3
	cfg.LockWindow = 15 * time.Minute
	s, mockStore, _, hasher := newAuthService(t, cfg)

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusActive,
	}

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)
	mockStore.EXPECT().RecordLoginAttempt(gomock.Any(), "alice", false).Return(nil)
	mockStore.EXPECT().CountRecentFailures(gomock.Any(), "alice", gomock.Any()).Return(1, nil)

	_, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "WrongPass1"})
	assert.ErrorIs(t, err, autherrors.ErrInvalidCredential)
}

func TestAuthService_Login_StorageError(t *testing.T) {
	s, mockStore, _, _ := newAuthService(t, testConfig())

	storageErr := autherrors.ErrStorageUnavailable
	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, storageErr)

	_, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "Password1"})
	assert.ErrorIs(t, err, autherrors.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, autherrors.ErrInvalidCredential)
}

func TestAuthService_Refresh_ReReadsRoles(t *testing.T) {
	cfg := testConfig()
	cfg.RotateRefreshTokens = false
	s, mockStore, mockTokens, _ := newAuthService(t, cfg)

	// The presented refresh token predates an admin-role revocation; the
	// fresh access token must carry only the current role set.
	claims := &service.Claims{TokenType: service.TokenTypeRefresh}
	claims.Subject = "id-1"

	identity := &domain.Identity{
		ID:       "id-1",
		Username: "alice",
		Status:   domain.StatusActive,
		Roles:    []string{"user"},
	}
	expiresAt := time.Now().Add(cfg.AccessTTL)

	mockTokens.EXPECT().Validate("old-refresh", service.TokenTypeRefresh).Return(claims, nil)
	mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)
	mockTokens.EXPECT().IssueAccessToken("id-1", []string{"user"}, cfg.AccessTTL).
		Return("new-access", expiresAt, nil)

	pair, err := s.Refresh(context.Background(), dto.RefreshInput{RefreshToken: "old-refresh"})

	require.NoError(t, err)
	assert.Equal(t, "new-access", pair.AccessToken)
	assert.Equal(t, "old-refresh", pair.RefreshToken, "rotation disabled keeps the presented token")
}

func TestAuthService_Refresh_Rotation(t *testing.T) {
	cfg := testConfig()
	s, mockStore, mockTokens, _ := newAuthService(t, cfg)

	claims := &service.Claims{TokenType: service.TokenTypeRefresh}
	claims.Subject = "id-1"

	identity := &domain.Identity{ID: "id-1", Username: "alice", Status: domain.StatusActive, Roles: []string{"user"}}

	mockTokens.EXPECT().Validate("old-refresh", service.TokenTypeRefresh).Return(claims, nil)
	mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)
	mockTokens.EXPECT().IssueAccessToken("id-1", []string{"user"}, cfg.AccessTTL).
		Return("new-access", time.Now().Add(cfg.AccessTTL), nil)
	mockTokens.EXPECT().IssueRefreshToken("id-1", cfg.RefreshTTL).
		Return("new-refresh", time.Now().Add(cfg.RefreshTTL), nil)

	pair, err := s.Refresh(context.Background(), dto.RefreshInput{RefreshToken: "old-refresh"})

	require.NoError(t, err)
	assert.Equal(t, "new-refresh", pair.RefreshToken)
}

func TestAuthService_Refresh_InvalidToken(t *testing.T) {
	s, _, mockTokens, _ := newAuthService(t, testConfig())

	mockTokens.EXPECT().Validate("bad", service.TokenTypeRefresh).Return(nil, autherrors.ErrTokenExpired)

	_, err := s.Refresh(context.Background(), dto.RefreshInput{RefreshToken: "bad"})
	assert.ErrorIs(t, err, autherrors.ErrTokenExpired)
}

func TestAuthService_Refresh_SubjectGone(t *testing.T) {
	s, mockStore, mockTokens, _ := newAuthService(t, testConfig())

	claims := &service.Claims{TokenType: service.TokenTypeRefresh}
	claims.Subject = "id-gone"

	mockTokens.EXPECT().Validate("refresh", service.TokenTypeRefresh).Return(claims, nil)
	mockStore.EXPECT().FindByID(gomock.Any(), "id-gone").Return(nil, nil)

	_, err := s.Refresh(context.Background(), dto.RefreshInput{RefreshToken: "refresh"})
	assert.ErrorIs(t, err, autherrors.ErrIdentityNotFound)
}

func TestAuthService_Refresh_LockedSubject(t *testing.T) {
	s, mockStore, mockTokens, _ := newAuthService(t, testConfig())

	claims := &service.Claims{TokenType: service.TokenTypeRefresh}
	claims.Subject = "id-1"
	identity := &domain.Identity{ID: "id-1", Status: domain.StatusLocked}

	mockTokens.EXPECT().Validate("refresh", service.TokenTypeRefresh).Return(claims, nil)
	mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)

	_, err := s.Refresh(context.Background(), dto.RefreshInput{RefreshToken: "refresh"})
	assert.ErrorIs(t, err, autherrors.ErrAccountLocked)
}

func TestAuthService_AssignRole(t *testing.T) {
	s, mockStore, _, _ := newAuthService(t, testConfig())

	role := &domain.Role{Name: "admin"}
	identity := &domain.Identity{ID: "id-1", Roles: []string{"user"}}

	t.Run("grants new role", func(t *testing.T) {
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(role, nil)
		mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)
		mockStore.EXPECT().UpdateRoles(gomock.Any(), "id-1", []string{"user", "admin"}).Return(nil)

		assert.NoError(t, s.AssignRole(context.Background(), "id-1", "admin"))
	})

	t.Run("already held is a no-op", func(t *testing.T) {
		held := &domain.Identity{ID: "id-1", Roles: []string{"user", "admin"}}
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(role, nil)
		mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(held, nil)

		assert.NoError(t, s.AssignRole(context.Background(), "id-1", "admin"))
	})

	t.Run("unknown role", func(t *testing.T) {
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "nope").Return(nil, nil)

		err := s.AssignRole(context.Background(), "id-1", "nope")
		assert.ErrorIs(t, err, autherrors.ErrRoleNotFound)
	})

	t.Run("unknown identity", func(t *testing.T) {
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(role, nil)
		mockStore.EXPECT().FindByID(gomock.Any(), "id-gone").Return(nil, nil)

		err := s.AssignRole(context.Background(), "id-gone", "admin")
		assert.ErrorIs(t, err, autherrors.ErrIdentityNotFound)
	})
}

func TestAuthService_RevokeRole(t *testing.T) {
	s, mockStore, _, _ := newAuthService(t, testConfig())

	role := &domain.Role{Name: "admin"}

	t.Run("removes held role", func(t *testing.T) {
		identity := &domain.Identity{ID: "id-1", Roles: []string{"user", "admin"}}
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(role, nil)
		mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)
		mockStore.EXPECT().UpdateRoles(gomock.Any(), "id-1", []string{"user"}).Return(nil)

		assert.NoError(t, s.RevokeRole(context.Background(), "id-1", "admin"))
	})

	t.Run("unheld role is a no-op", func(t *testing.T) {
		identity := &domain.Identity{ID: "id-1", Roles: []string{"user"}}
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(role, nil)
		mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)

		assert.NoError(t, s.RevokeRole(context.Background(), "id-1", "admin"))
	})

	t.Run("case-insensitive match", func(t *testing.T) {
		identity := &domain.Identity{ID: "id-1", Roles: []string{"user", "Admin"}}
		mockStore.EXPECT().FindRoleByName(gomock.Any(), "ADMIN").Return(role, nil)
		mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(identity, nil)
		mockStore.EXPECT().UpdateRoles(gomock.Any(), "id-1", []string{"user"}).Return(nil)

		assert.NoError(t, s.RevokeRole(context.Background(), "id-1", "ADMIN"))
	})
}

func TestAuthService_RoleRevocationReflectedOnRefresh(t *testing.T) {
	// Revoke a role, then refresh with a token minted before the revocation;
	// the new access token must not carry the revoked role.
	cfg := testConfig()
	cfg.RotateRefreshTokens = false
	s, mockStore, mockTokens, _ := newAuthService(t, cfg)

	role := &domain.Role{Name: "admin"}
	before := &domain.Identity{ID: "id-1", Status: domain.StatusActive, Roles: []string{"user", "admin"}}
	after := &domain.Identity{ID: "id-1", Status: domain.StatusActive, Roles: []string{"user"}}

	mockStore.EXPECT().FindRoleByName(gomock.Any(), "admin").Return(role, nil)
	mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(before, nil)
	mockStore.EXPECT().UpdateRoles(gomock.Any(), "id-1", []string{"user"}).Return(nil)
	require.NoError(t, s.RevokeRole(context.Background(), "id-1", "admin"))

	claims := &service.Claims{TokenType: service.TokenTypeRefresh}
	claims.Subject = "id-1"
	mockTokens.EXPECT().Validate("stale-refresh", service.TokenTypeRefresh).Return(claims, nil)
	mockStore.EXPECT().FindByID(gomock.Any(), "id-1").Return(after, nil)
	mockTokens.EXPECT().IssueAccessToken("id-1", []string{"user"}, cfg.AccessTTL).
		Return("fresh-access", time.Now().Add(cfg.AccessTTL), nil)

	pair, err := s.Refresh(context.Background(), dto.RefreshInput{RefreshToken: "stale-refresh"})
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", pair.AccessToken)
}

func TestAuthService_Register_EmptyUsername(t *testing.T) {
	s, _, _, _ := newAuthService(t, testConfig())

	_, err := s.Register(context.Background(), dto.RegisterInput{Username: "   ", Password: "Password1"})
	assert.Error(t, err)
}

func TestAuthService_Login_AttemptAuditFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	s, mockStore, mockTokens, hasher := newAuthService(t, cfg)

	identity := &domain.Identity{
		ID:           "id-1",
		Username:     "alice",
		PasswordHash: hashOf(t, hasher, "Password1"),
		Status:       domain.StatusActive,
		Roles:        []string{"user"},
	}

	mockStore.EXPECT().FindByUsername(gomock.Any(), "alice").Return(identity, nil)
	mockStore.EXPECT().RecordLoginAttempt(gomock.Any(), "alice", true).Return(errors.New("audit table full"))
	mockTokens.EXPECT().IssueAccessToken("id-1", []string{"user"}, cfg.AccessTTL).
		Return("access", time.Now().Add(cfg.AccessTTL), nil)
	mockTokens.EXPECT().IssueRefreshToken("id-1", cfg.RefreshTTL).
		Return("refresh", time.Now().Add(cfg.RefreshTTL), nil)

	pair, err := s.Login(context.Background(), dto.LoginInput{Username: "alice", Password: "Password1"})
	require.NoError(t, err)
	assert.Equal(t, "access", pair.AccessToken)
}
