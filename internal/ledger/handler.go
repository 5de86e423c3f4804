package ledger

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/middleware"
)

// ErrorStatus maps ledger and settlement errors to HTTP status codes.
func ErrorStatus(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnsupportedAsset), errors.Is(err, ErrInvalidSubAccount):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrAlreadyClosed),
		errors.Is(err, ErrDuplicateTransaction), errors.Is(err, ErrWalletExists),
		errors.Is(err, infra.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into a fiber error carrying the mapped status.
func HTTPError(err error) error {
	status := ErrorStatus(err)
	if status == http.StatusInternalServerError {
		return fiber.NewError(status, "internal error")
	}
	return fiber.NewError(status, err.Error())
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

type holdingRequest struct {
	Asset    string          `json:"asset" validate:"required,uppercase"`
	Quantity decimal.Decimal `json:"quantity"`
}

type overrideRequest struct {
	SpotWallet       *decimal.Decimal `json:"spotWallet"`
	FuturesWallet    *decimal.Decimal `json:"futuresWallet"`
	PerpetualsWallet *decimal.Decimal `json:"perpetualsWallet"`
	Holdings         []holdingRequest `json:"holdings" validate:"omitempty,dive"`
}

// Open provisions the caller's wallet.
func (h *Handler) Open(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	wallet, err := h.service.Open(c.UserContext(), caller.UserID)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(wallet)
}

// Me returns the caller's wallet.
func (h *Handler) Me(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	wallet, err := h.service.Get(c.UserContext(), caller.UserID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(wallet)
}

// Get returns any user's wallet for administrators.
func (h *Handler) Get(c *fiber.Ctx) error {
	wallet, err := h.service.Get(c.UserContext(), c.Params("userId"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(wallet)
}

// Override rewrites a user's balances for administrators.
func (h *Handler) Override(c *fiber.Ctx) error {
	var req overrideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	o := Overrides{
		SpotWallet:       req.SpotWallet,
		FuturesWallet:    req.FuturesWallet,
		PerpetualsWallet: req.PerpetualsWallet,
	}
	if req.Holdings != nil {
		o.Holdings = make([]Holding, 0, len(req.Holdings))
		for _, hr := range req.Holdings {
			o.Holdings = append(o.Holdings, Holding{Asset: hr.Asset, Quantity: hr.Quantity})
		}
	}
	wallet, err := h.service.Override(c.UserContext(), c.Params("userId"), o)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(wallet)
}
