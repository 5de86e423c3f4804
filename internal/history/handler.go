package history

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/ledger"
)

// Handler exposes admin history deletion.
type Handler struct {
	service *Service
}

// NewHandler builds a history handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func httpError(err error) error {
	if errors.Is(err, ErrActivityOpen) {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	return ledger.HTTPError(err)
}

// DeleteTradeHistory handles DELETE /admin/users/:userId/trades.
func (h *Handler) DeleteTradeHistory(c *fiber.Ctx) error {
	sum, err := h.service.DeleteTradeHistory(c.UserContext(), c.Params("userId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "Trade history deleted", "deleted": sum})
}

// DeleteHistory handles DELETE /admin/users/:userId/history.
func (h *Handler) DeleteHistory(c *fiber.Ctx) error {
	sum, err := h.service.DeleteHistory(c.UserContext(), c.Params("userId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "History deleted", "deleted": sum})
}

// DeleteAccount handles DELETE /admin/users/:userId.
func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	sum, err := h.service.DeleteAccount(c.UserContext(), c.Params("userId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"message": "Account deleted", "deleted": sum})
}
