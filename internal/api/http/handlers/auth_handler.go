package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/desk-automation/internal/api/dto"
	"github.com/spec-kit/desk-automation/internal/auth"
	"github.com/spec-kit/desk-automation/internal/config"
	apperrors "github.com/spec-kit/desk-automation/pkg/util/errorutil"
)

// AuthHandler exchanges the operator key for short-lived JWTs.
type AuthHandler struct {
	tokens *auth.TokenManager
	cfg    config.AuthConfig
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{tokens: tokens, cfg: cfg}
}

// Token POST /auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.OperatorKey == "" {
		return apperrors.NewValidationError("operatorKey required", nil)
	}
	if h.cfg.OperatorKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.OperatorKey), []byte(h.cfg.OperatorKey)) != 1 {
		return apperrors.NewUnauthorized("invalid operator key")
	}

	token, expiresAt, err := h.tokens.GenerateToken("operator")
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    dto.AuthResponse{Token: token, ExpiresAt: expiresAt},
	})
}
