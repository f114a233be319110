package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/petrachuk/avp-authcore/internal/auth/domain"
	"github.com/petrachuk/avp-authcore/internal/auth/dto"
	"github.com/petrachuk/avp-authcore/internal/auth/service"
	autherrors "github.com/petrachuk/avp-authcore/internal/errors"
	"github.com/petrachuk/avp-authcore/internal/i18n"
)

type AuthHandler struct {
	authService  *service.AuthService
	tokenService service.TokenGenerator
	localizer    *i18n.Localizer
}

func NewAuthHandler(authService *service.AuthService, tokenService service.TokenGenerator, localizer *i18n.Localizer) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		tokenService: tokenService,
		localizer:    localizer,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input dto.RegisterInput
	if err := c.BodyParser(&input); err != nil {
		return h.respondCode(c, fiber.StatusBadRequest, "INVALID_INPUT")
	}

	identity, err := h.authService.Register(c.UserContext(), input)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.IdentityOutput{
		ID:        identity.ID,
		Username:  identity.Username,
		Status:    string(identity.Status),
		Roles:     identity.Roles,
		CreatedAt: identity.CreatedAt,
		UpdatedAt: identity.UpdatedAt,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input dto.LoginInput
	if err := c.BodyParser(&input); err != nil {
		return h.respondCode(c, fiber.StatusBadRequest, "INVALID_INPUT")
	}

	pair, err := h.authService.Login(c.UserContext(), input)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenResponse(pair))
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var input dto.RefreshInput
	if err := c.BodyParser(&input); err != nil {
		return h.respondCode(c, fiber.StatusBadRequest, "INVALID_INPUT")
	}

	pair, err := h.authService.Refresh(c.UserContext(), input)
	if err != nil {
		return h.respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tokenResponse(pair))
}

func (h *AuthHandler) AssignRole(c *fiber.Ctx) error {
	var input dto.RoleInput
	if err := c.BodyParser(&input); err != nil {
		return h.respondCode(c, fiber.StatusBadRequest, "INVALID_INPUT")
	}

	if err := h.authService.AssignRole(c.UserContext(), c.Params("id"), input.Role); err != nil {
		return h.respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AuthHandler) RevokeRole(c *fiber.Ctx) error {
	if err := h.authService.RevokeRole(c.UserContext(), c.Params("id"), c.Params("name")); err != nil {
		return h.respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func tokenResponse(pair *domain.TokenPair) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(pair.ExpiresAt).Seconds()),
	}
}

// respondError maps an error to its stable code, a wire status and a message
// localized for the caller's Accept-Language.
func (h *AuthHandler) respondError(c *fiber.Ctx, err error) error {
	return h.respondCode(c, statusFor(err), autherrors.CodeOf(err))
}

func (h *AuthHandler) respondCode(c *fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"code":    code,
		"message": h.localizer.Resolve(code, c.Get(fiber.HeaderAcceptLanguage)),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, autherrors.ErrWeakCredential):
		return fiber.StatusBadRequest
	case errors.Is(err, autherrors.ErrDuplicateIdentity):
		return fiber.StatusConflict
	case errors.Is(err, autherrors.ErrAccountLocked):
		return fiber.StatusLocked
	case errors.Is(err, autherrors.ErrAccountUnconfirmed):
		return fiber.StatusForbidden
	case errors.Is(err, autherrors.ErrInvalidCredential),
		errors.Is(err, autherrors.ErrMalformedToken),
		errors.Is(err, autherrors.ErrInvalidSignature),
		errors.Is(err, autherrors.ErrTokenExpired),
		errors.Is(err, autherrors.ErrWrongTokenType):
		return fiber.StatusUnauthorized
	case errors.Is(err, autherrors.ErrIdentityNotFound),
		errors.Is(err, autherrors.ErrRoleNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, autherrors.ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}
