package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/petrachuk/avp-authcore/internal/auth/service"
	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
)

const claimsLocalKey = "auth_claims"

// Authenticate extracts the bearer token, validates it as an access token
// and stashes the decoded claims for downstream handlers.
func (h *AuthHandler) Authenticate(c *fiber.Ctx) error {
	claims, err := h.validateRequest(c)
	if err != nil {
		return h.respondError(c, err)
	}

	c.Locals(claimsLocalKey, claims)
	return c.Next()
}

// RequireRole authenticates the request and rejects callers whose access
// token does not carry the given role.
func (h *AuthHandler) RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := h.validateRequest(c)
		if err != nil {
			return h.respondError(c, err)
		}

		held := false
		for _, r := range claims.Roles {
			if strings.EqualFold(r, role) {
				held = true
				break
			}
		}
		if !held {
			return h.respondCode(c, fiber.StatusForbidden, "FORBIDDEN")
		}

		c.Locals(claimsLocalKey, claims)
		return c.Next()
	}
}

func (h *AuthHandler) validateRequest(c *fiber.Ctx) (*service.Claims, error) {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return nil, autherrors.ErrMalformedToken
	}
	return h.tokenService.Validate(token, service.TokenTypeAccess)
}

// ClaimsFromContext returns the validated claims stored by the middleware,
// or nil when the request did not pass authentication.
func ClaimsFromContext(c *fiber.Ctx) *service.Claims {
	claims, _ := c.Locals(claimsLocalKey).(*service.Claims)
	return claims
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
