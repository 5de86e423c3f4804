package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/funding"
)

// RegisterFundingRoutes wires deposit, withdraw and swap endpoints.
func RegisterFundingRoutes(user, admin fiber.Router, h *funding.Handler, withdrawLimit fiber.Handler) {
	user.Post("/requests/withdraw", withdrawLimit, h.SubmitWithdraw)
	user.Post("/requests/deposit", h.SubmitDeposit)
	user.Get("/requests", h.MyRequests)
	user.Get("/requests/:requestId", h.GetRequest)
	user.Post("/swap", h.Swap)
	user.Post("/transfer", h.Transfer)
	user.Get("/transactions", h.MyTransactions)

	admin.Get("/requests", h.AllRequests)
	admin.Post("/requests/:requestId/approve", h.Approve)
	admin.Post("/requests/:requestId/reject", h.Reject)
	admin.Post("/tokens", h.AddTokens)
	admin.Get("/users/:userId/transactions", h.UserTransactions)
}
