package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/ledger"
)

// RegisterWalletRoutes wires wallet endpoints for users and administrators.
func RegisterWalletRoutes(user, admin fiber.Router, h *ledger.Handler) {
	user.Post("/wallet", h.Open)
	user.Get("/wallet", h.Me)

	admin.Get("/wallets/:userId", h.Get)
	admin.Put("/wallets/:userId", h.Override)
}
