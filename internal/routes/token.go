package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dailycoin/ubi-ledger/internal/token"
)

// RegisterQueryRoutes wires read-only ledger endpoints.
func RegisterQueryRoutes(r fiber.Router, h *token.Handler) {
	r.Get("/calendar/today", h.Today)
	r.Get("/currencies/:symbol", h.Stats)
	r.Get("/accounts/:owner/balances/:symbol", h.Balance)
	r.Get("/accounts/:owner/shares", h.Shares)
	r.Get("/accounts/:owner/profile", h.Profile)
}

// RegisterTokenRoutes wires ledger mutations. The router must authenticate
// the caller.
func RegisterTokenRoutes(r fiber.Router, h *token.Handler, claimLimiter fiber.Handler) {
	r.Post("/currencies", h.Create)
	r.Post("/currencies/:symbol/issue", h.Issue)
	r.Post("/currencies/:symbol/retire", h.Retire)

	r.Post("/transfers", h.Transfer)
	r.Post("/burns", h.Burn)

	r.Post("/balances/:symbol/open", h.Open)
	r.Delete("/balances/:symbol", h.Close)

	r.Post("/claims", claimLimiter, h.Claim)
	r.Post("/claims/:owner", claimLimiter, h.ClaimFor)

	r.Put("/shares/:to", h.SetShare)
	r.Delete("/shares", h.ResetShares)
	r.Put("/profile", h.SetProfile)
}
