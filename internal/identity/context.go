// Package identity reads the authenticated caller from the request context.
// Tokens are issued elsewhere; this service only verifies them.
package identity

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is where the jwt middleware stores the parsed token.
const ContextKey = "user"

var ErrNoIdentity = errors.New("no authenticated user")

// UserID returns the caller's id from the token's sub claim.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals(ContextKey).(*jwt.Token)
	if !ok {
		return uuid.Nil, ErrNoIdentity
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrNoIdentity
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, ErrNoIdentity
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrNoIdentity
	}
	return id, nil
}
