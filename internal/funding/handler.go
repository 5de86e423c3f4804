package funding

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/middleware"
)

// Handler exposes HTTP endpoints for deposit, withdraw and swap flows.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

func httpError(err error) error {
	if errors.Is(err, ErrWrongRequestType) {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return ledger.HTTPError(err)
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

// SubmitWithdraw escrows funds and opens a withdraw request for the caller.
func (h *Handler) SubmitWithdraw(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req WithdrawRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	result, err := h.service.SubmitWithdraw(c.UserContext(), caller.UserID, SubmitInput{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Network:       req.Network,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(result)
}

// SubmitDeposit opens a deposit request for the caller.
func (h *Handler) SubmitDeposit(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req DepositRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	result, err := h.service.SubmitDeposit(c.UserContext(), caller.UserID, SubmitInput{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Network:       req.Network,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(result)
}

// MyRequests lists the caller's requests.
func (h *Handler) MyRequests(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	list, err := h.service.Requests(c.UserContext(), middleware.Caller{UserID: caller.UserID, Role: middleware.RoleUser})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"requests": list})
}

// GetRequest returns one request the caller owns, or any request for admins.
func (h *Handler) GetRequest(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	req, err := h.service.Request(c.UserContext(), c.Params("requestId"), caller)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(req)
}

// Swap converts between two assets of the caller.
func (h *Handler) Swap(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req SwapRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	clientTxID := req.ClientTxID
	if clientTxID == "" {
		clientTxID = c.Get("Idempotency-Key")
	}
	tx, err := h.service.Swap(c.UserContext(), caller.UserID, SwapInput{
		From:         req.FromAsset,
		To:           req.ToAsset,
		Amount:       req.Amount,
		ExchangeRate: req.ExchangeRate,
		ClientTxID:   clientTxID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(tx)
}

// Transfer moves quote balance between the caller's sub-wallets.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	clientTxID := req.ClientTxID
	if clientTxID == "" {
		clientTxID = c.Get("Idempotency-Key")
	}
	tx, err := h.service.Transfer(c.UserContext(), caller.UserID, TransferInput{
		From:       ledger.SubAccount(req.FromWallet),
		To:         ledger.SubAccount(req.ToWallet),
		Amount:     req.Amount,
		ClientTxID: clientTxID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(tx)
}

// MyTransactions lists the caller's transactions.
func (h *Handler) MyTransactions(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	list, err := h.service.Transactions(c.UserContext(), caller.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"transactions": list})
}

// AllRequests lists every request, optionally only pending ones.
func (h *Handler) AllRequests(c *fiber.Ctx) error {
	var (
		list []Request
		err  error
	)
	switch {
	case c.Query("status") == string(StatusPending):
		list, err = h.service.PendingRequests(c.UserContext())
	case c.Query("userId") != "":
		list, err = h.service.UserRequests(c.UserContext(), c.Query("userId"))
	default:
		list, err = h.service.Requests(c.UserContext(), middleware.Caller{Role: middleware.RoleAdmin})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"requests": list})
}

// Approve settles a pending request.
func (h *Handler) Approve(c *fiber.Ctx) error {
	req, err := h.service.Approve(c.UserContext(), c.Params("requestId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(req)
}

// Reject closes a pending request with an optional note.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var body RejectRequest
	if len(c.Body()) > 0 {
		if err := h.parse(c, &body); err != nil {
			return err
		}
	}
	req, err := h.service.Reject(c.UserContext(), c.Params("requestId"), body.Note)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(req)
}

// AddTokens credits a user directly.
func (h *Handler) AddTokens(c *fiber.Ctx) error {
	var req AddTokensRequest
	if err := h.parse(c, &req); err != nil {
		return err
	}
	tx, err := h.service.AddTokens(c.UserContext(), req.UserID, req.Asset, req.Amount)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(tx)
}

// UserTransactions lists a user's transactions for administrators.
func (h *Handler) UserTransactions(c *fiber.Ctx) error {
	list, err := h.service.Transactions(c.UserContext(), c.Params("userId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"transactions": list})
}
