package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/history"
)

// RegisterHistoryRoutes wires administrator history deletion.
func RegisterHistoryRoutes(admin fiber.Router, h *history.Handler) {
	admin.Delete("/users/:userId/trades", h.DeleteTradeHistory)
	admin.Delete("/users/:userId/history", h.DeleteHistory)
	admin.Delete("/users/:userId", h.DeleteAccount)
}
