package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/settlement"
)

// RegisterSettlementRoutes wires spot trade and position endpoints.
func RegisterSettlementRoutes(user, admin fiber.Router, h *settlement.Handler) {
	user.Post("/trades", h.PlaceTrade)
	user.Get("/trades", h.MyTrades)
	user.Post("/positions", h.OpenPosition)
	user.Get("/positions", h.MyPositions)

	admin.Post("/orders/:tradeId/approve", h.ApproveTrade)
	admin.Post("/orders/:tradeId/reject", h.RejectTrade)
	admin.Get("/positions/open", h.OpenTrades)
	admin.Post("/positions/:positionId/liquidate", h.Liquidate)
	admin.Post("/users/:userId/profit-toggle", h.ToggleProfit)
}
