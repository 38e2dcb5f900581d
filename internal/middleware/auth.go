package middleware

import (
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/dto"
	"github.com/ahmetcoskunkizilkaya/trophy-sync/internal/identity"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

// JWTProtected verifies access tokens issued by the identity service.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ContextKey: identity.ContextKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid or expired token",
			})
		},
	})
}
