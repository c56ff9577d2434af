package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dailycoin/ubi-ledger/internal/auth"
)

const accountLocal = "account"

// TokenVerifier resolves an access token to the account it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (string, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and makes
// the token's account the actor of the request context.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		name, err := verifier.Verify(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}

		c.Locals(accountLocal, name)
		c.SetUserContext(auth.WithActor(c.UserContext(), name))
		return c.Next()
	}
}

// Account returns the authenticated account of the request, if any.
func Account(c *fiber.Ctx) string {
	name, _ := c.Locals(accountLocal).(string)
	return name
}
