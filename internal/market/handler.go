package market

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/ledger"
)

// Handler exposes the price snapshot and the admin price feed endpoint.
type Handler struct {
	store Store
}

// NewHandler builds a market handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type updateRequest struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

// Prices returns the latest snapshot.
func (h *Handler) Prices(c *fiber.Ctx) error {
	prices, err := h.store.Snapshot(c.UserContext())
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"prices": prices})
}

// Update stores prices pushed by the ingester.
func (h *Handler) Update(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if len(req.Prices) == 0 {
		return fiber.NewError(http.StatusBadRequest, "prices are required")
	}
	if err := h.store.Update(c.UserContext(), req.Prices); err != nil {
		return ledger.HTTPError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}
