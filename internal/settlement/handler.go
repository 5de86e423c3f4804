package settlement

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/middleware"
)

// Handler exposes trade and position endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a settlement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type placeTradeRequest struct {
	Type     TradeType       `json:"type" validate:"required,oneof=buy sell"`
	Asset    string          `json:"asset" validate:"required,uppercase"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type openPositionRequest struct {
	Category     Category        `json:"category" validate:"required,oneof=futures perpetual"`
	Asset        string          `json:"asset" validate:"required,uppercase"`
	Side         Side            `json:"side" validate:"required,oneof=long short"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	AssetsAmount decimal.Decimal `json:"assetsAmount"`
	Leverage     decimal.Decimal `json:"leverage"`
	MarginUsed   decimal.Decimal `json:"marginUsed"`
	ExpiresAt    *time.Time      `json:"expiresAt"`
}

type liquidateRequest struct {
	MarketPrice decimal.Decimal `json:"marketPrice"`
	Policy      string          `json:"policy" validate:"omitempty,oneof=default fixed markToMarket"`
	Favorable   bool            `json:"favorable"`
}

func (h *Handler) parse(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// PlaceTrade records a pending spot order for the caller.
func (h *Handler) PlaceTrade(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req placeTradeRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	trade, err := h.service.PlaceTrade(c.UserContext(), caller.UserID, PlaceTradeInput{
		Type:     req.Type,
		Asset:    req.Asset,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(trade)
}

// MyTrades lists the caller's spot trades.
func (h *Handler) MyTrades(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	trades, err := h.service.Trades(c.UserContext(), caller.UserID)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"trades": trades})
}

// OpenPosition opens a leveraged position for the caller.
func (h *Handler) OpenPosition(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req openPositionRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	pos, err := h.service.OpenPosition(c.UserContext(), caller.UserID, OpenPositionInput{
		Category:     req.Category,
		Asset:        req.Asset,
		Side:         req.Side,
		EntryPrice:   req.EntryPrice,
		AssetsAmount: req.AssetsAmount,
		Leverage:     req.Leverage,
		MarginUsed:   req.MarginUsed,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(pos)
}

// MyPositions lists the caller's positions.
func (h *Handler) MyPositions(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	positions, err := h.service.Positions(c.UserContext(), caller.UserID)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"positions": positions})
}

// ApproveTrade settles a pending spot order.
func (h *Handler) ApproveTrade(c *fiber.Ctx) error {
	trade, err := h.service.ApproveTrade(c.UserContext(), c.Params("tradeId"))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"message": "Order approved successfully", "trade": trade})
}

// RejectTrade rejects a pending spot order.
func (h *Handler) RejectTrade(c *fiber.Ctx) error {
	trade, err := h.service.RejectTrade(c.UserContext(), c.Params("tradeId"))
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"message": "Order rejected successfully", "trade": trade})
}

// OpenTrades lists every open position.
func (h *Handler) OpenTrades(c *fiber.Ctx) error {
	positions, err := h.service.OpenTrades(c.UserContext())
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"trades": positions})
}

// Liquidate closes a position at the provided market price.
func (h *Handler) Liquidate(c *fiber.Ctx) error {
	var req liquidateRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	var policy Policy
	switch req.Policy {
	case "fixed":
		policy = FixedRatePolicy{Favorable: req.Favorable}
	case "markToMarket":
		policy = MarkToMarketPolicy{}
	}
	pos, err := h.service.Liquidate(c.UserContext(), c.Params("positionId"), req.MarketPrice, policy)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{
		"message":    "Trade closed successfully",
		"profitLoss": pos.ProfitLoss,
		"closePrice": pos.ClosePrice,
	})
}

// ToggleProfit flips a user's profit flag.
func (h *Handler) ToggleProfit(c *fiber.Ctx) error {
	userID := c.Params("userId")
	favorable, err := h.service.ToggleProfit(c.UserContext(), userID)
	if err != nil {
		return ledger.HTTPError(err)
	}
	return c.JSON(fiber.Map{"userId": userID, "isActive": favorable})
}
