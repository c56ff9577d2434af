package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dailycoin/ubi-ledger/internal/auth"
	"github.com/dailycoin/ubi-ledger/internal/identity"
)

// RegisterAccountRoutes wires account registration.
func RegisterAccountRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/accounts/register", h.Register)
}

// RegisterAuthRoutes wires the public authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/refresh", h.Refresh)
}

// RegisterSessionRoutes wires endpoints that need a signed-in account.
func RegisterSessionRoutes(r fiber.Router, h *auth.Handler) {
	r.Post("/auth/logout", h.Logout)
}
