package app

import (
	"fmt"

	"messenger_sync/internal/devserver/domain"
	errprocess "messenger_sync/pkg/err"
	t_token "messenger_sync/pkg/token"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler dev only token minting, stands in for the SSO exchange
type AuthHandler struct {
	issuer *t_token.Issuer
}

// NewAuthHandler create AuthHandler
func NewAuthHandler(issuer *t_token.Issuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// DevToken POST /auth/dev-token
func (h *AuthHandler) DevToken(c *fiber.Ctx) error {
	var req domain.DevTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, errprocess.ErrInvalidRequest)
	}
	if err := validate.Struct(req); err != nil {
		return errorResponse(c, fmt.Errorf("%w: %v", errprocess.ErrInvalidRequest, err))
	}

	token, err := h.issuer.GenerateJWT(req.UserID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(domain.DevTokenResponse{AccessToken: token, TokenType: "bearer", UserID: req.UserID})
}
