package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/market"
)

// RegisterMarketRoutes wires the price snapshot endpoints.
func RegisterMarketRoutes(user, admin fiber.Router, h *market.Handler) {
	user.Get("/prices", h.Prices)
	admin.Post("/prices", h.Update)
}
