package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/petrachuk/avp-authcore/internal/auth/service TokenGenerator

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenGenerator is the issuance/validation contract AuthService depends on.
type TokenGenerator interface {
	IssueAccessToken(identityID string, roles []string, ttl time.Duration) (string, time.Time, error)
	IssueRefreshToken(identityID string, ttl time.Duration) (string, time.Time, error)
	Validate(signedToken string, expected TokenType) (*Claims, error)
}

// Claims is the payload carried by every token this service signs. Refresh
// tokens deliberately omit roles; authorization state is re-read from the
// store when a refresh token is exchanged.
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string  `json:"roles,omitempty"`
	TokenType TokenType `json:"typ"`
}

// TokenConfig is the immutable signing state loaded once at startup.
// Keys maps key id to HMAC secret; every key in the map verifies, only
// ActiveKeyID signs. Keeping superseded keys in the map lets tokens they
// signed stay valid until expiry during a rotation.
type TokenConfig struct {
	Issuer      string
	Audience    string
	ActiveKeyID string
	Keys        map[string][]byte
	Leeway      time.Duration
}

type TokenService struct {
	cfg TokenConfig
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("token service requires at least one signing key")
	}
	if _, ok := cfg.Keys[cfg.ActiveKeyID]; !ok {
		return nil, fmt.Errorf("active key id %q is not in the key set", cfg.ActiveKeyID)
	}
	for kid, key := range cfg.Keys {
		if len(key) == 0 {
			return nil, fmt.Errorf("signing key %q is empty", kid)
		}
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("negative clock-skew leeway")
	}
	return &TokenService{cfg: cfg}, nil
}

func (ts *TokenService) IssueAccessToken(identityID string, roles []string, ttl time.Duration) (string, time.Time, error) {
	return ts.issue(identityID, roles, TokenTypeAccess, ttl)
}

func (ts *TokenService) IssueRefreshToken(identityID string, ttl time.Duration) (string, time.Time, error) {
	return ts.issue(identityID, nil, TokenTypeRefresh, ttl)
}

func (ts *TokenService) issue(identityID string, roles []string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Roles:     roles,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			Issuer:    ts.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if ts.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{ts.cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = ts.cfg.ActiveKeyID

	signed, err := token.SignedString(ts.cfg.Keys[ts.cfg.ActiveKeyID])
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Validate checks signature, expiry and token type, and returns the decoded
// claims. It performs no I/O: the outcome depends only on the token, the
// configured key set and the current time, so it is safe on the hot path of
// every request.
func (ts *TokenService) Validate(signedToken string, expected TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if ts.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(ts.cfg.Leeway))
	}
	if ts.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(ts.cfg.Issuer))
	}
	if ts.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(ts.cfg.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(signedToken, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		key, ok := ts.cfg.Keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	})
	if err != nil {
		return nil, mapTokenError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, autherrors.ErrMalformedToken
	}
	if claims.TokenType != expected {
		return nil, autherrors.ErrWrongTokenType
	}

	return claims, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", autherrors.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", autherrors.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// Covers missing or unknown kid: the token cannot be matched to any
		// configured key, which is indistinguishable from a bad signature.
		return fmt.Errorf("%w: %v", autherrors.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", autherrors.ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %v", autherrors.ErrMalformedToken, err)
	}
}
