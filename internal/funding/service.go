package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/metrics"
	"github.com/rovobit/exchange/internal/middleware"
	"github.com/rovobit/exchange/internal/notification"
)

// Deps bundles the collaborators of the request processor.
type Deps struct {
	Requests     RequestRepository
	Transactions TransactionRepository
	Wallets      *ledger.Service
	Tx           infra.Transactor
	Notifier     notification.Notifier
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Service processes deposit, withdraw and swap requests against the wallet ledger.
type Service struct {
	requests     RequestRepository
	transactions TransactionRepository
	wallets      *ledger.Service
	tx           infra.Transactor
	notifier     notification.Notifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewService builds a request processor.
func NewService(d Deps) (*Service, error) {
	if d.Requests == nil || d.Transactions == nil || d.Wallets == nil || d.Tx == nil {
		return nil, fmt.Errorf("funding: repositories, wallet service and transactor are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		requests:     d.Requests,
		transactions: d.Transactions,
		wallets:      d.Wallets,
		tx:           d.Tx,
		notifier:     d.Notifier,
		metrics:      d.Metrics,
		logger:       d.Logger,
	}, nil
}

// SubmitInput describes a deposit or withdraw submission.
type SubmitInput struct {
	Amount        decimal.Decimal
	Currency      string
	Network       string
	WalletAddress string
}

func (in SubmitInput) validate() error {
	if _, ok := requestCurrencies[in.Currency]; !ok {
		return fmt.Errorf("%w: %q is not accepted for requests", ledger.ErrUnsupportedAsset, in.Currency)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	return nil
}

func newRequest(userID string, typ RequestType, in SubmitInput) Request {
	ts := time.Now().UTC()
	return Request{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          typ,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Network:       in.Network,
		WalletAddress: in.WalletAddress,
		Status:        StatusPending,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
}

// SubmitWithdraw escrows the amount and records a pending withdraw request.
// When the escrow fails no request is created.
func (s *Service) SubmitWithdraw(ctx context.Context, userID string, in SubmitInput) (Request, error) {
	if err := in.validate(); err != nil {
		return Request{}, err
	}
	req := newRequest(userID, TypeWithdraw, in)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.wallets.Apply(ctx, userID, func(w *ledger.Wallet) error {
			return w.Freeze(in.Currency, in.Amount)
		}); err != nil {
			return err
		}
		return s.requests.Create(ctx, req)
	})
	s.metrics.Request("submit_withdraw", err)
	if err != nil {
		return Request{}, err
	}
	s.logger.Info("withdraw submitted", slog.String("request_id", req.ID), slog.String("user_id", userID),
		slog.String("amount", in.Amount.String()), slog.String("currency", in.Currency))
	return req, nil
}

// SubmitDeposit records a pending deposit request without touching balances.
func (s *Service) SubmitDeposit(ctx context.Context, userID string, in SubmitInput) (Request, error) {
	if err := in.validate(); err != nil {
		return Request{}, err
	}
	if _, err := s.wallets.Get(ctx, userID); err != nil {
		return Request{}, err
	}
	req := newRequest(userID, TypeDeposit, in)
	err := s.requests.Create(ctx, req)
	s.metrics.Request("submit_deposit", err)
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// settle loads a pending request of the expected type, mutates the owner's
// wallet with fn and moves the request to status, all in one unit of work.
func (s *Service) settle(ctx context.Context, id string, want RequestType, status Status, note string, fn func(req Request, w *ledger.Wallet) error) (Request, error) {
	var out Request
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("request %s is %s: %w", id, req.Status, ledger.ErrAlreadySettled)
		}
		if want != "" && req.Type != want {
			return fmt.Errorf("request %s is a %s: %w", id, req.Type, ErrWrongRequestType)
		}
		if fn != nil {
			if _, err := s.wallets.Apply(ctx, req.UserID, func(w *ledger.Wallet) error { return fn(req, w) }); err != nil {
				return err
			}
		}
		req.Status = status
		req.AdminNote = note
		saved, err := s.requests.Update(ctx, req)
		if err != nil {
			return err
		}
		if status == StatusApproved {
			if err := s.transactions.Create(ctx, requestTransaction(saved)); err != nil {
				return err
			}
		}
		out = saved
		return nil
	})
	return out, err
}

func requestTransaction(req Request) Transaction {
	typ := TxDeposit
	if req.Type == TypeWithdraw {
		typ = TxWithdrawal
	}
	return Transaction{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Type:          typ,
		Status:        TxCompleted,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TransactionID: "request:" + req.ID,
		CreatedAt:     req.UpdatedAt,
	}
}

// ApproveWithdraw consumes the escrowed amount and records the withdrawal.
func (s *Service) ApproveWithdraw(ctx context.Context, id string) (Request, error) {
	req, err := s.settle(ctx, id, TypeWithdraw, StatusApproved, "", func(req Request, w *ledger.Wallet) error {
		if err := w.Unfreeze(req.Currency, req.Amount, ledger.Consume); err != nil {
			return err
		}
		w.AppendWithdrawal(ledger.WithdrawalEntry{
			Amount:        req.Amount,
			Currency:      req.Currency,
			Network:       req.Network,
			WalletAddress: req.WalletAddress,
		})
		return nil
	})
	s.finish(ctx, "approve_withdraw", req, err)
	return req, err
}

// ApproveDeposit credits the deposited amount and records the deposit.
func (s *Service) ApproveDeposit(ctx context.Context, id string) (Request, error) {
	req, err := s.settle(ctx, id, TypeDeposit, StatusApproved, "", func(req Request, w *ledger.Wallet) error {
		if err := w.CreditAsset(req.Currency, req.Amount); err != nil {
			return err
		}
		w.AppendDeposit(req.Currency, req.Amount)
		return nil
	})
	s.finish(ctx, "approve_deposit", req, err)
	return req, err
}

// Approve dispatches to ApproveDeposit or ApproveWithdraw by request type.
func (s *Service) Approve(ctx context.Context, id string) (Request, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Type == TypeWithdraw {
		return s.ApproveWithdraw(ctx, id)
	}
	return s.ApproveDeposit(ctx, id)
}

// Reject closes a pending request, returning escrowed funds for withdrawals.
func (s *Service) Reject(ctx context.Context, id, note string) (Request, error) {
	if note == "" {
		note = DefaultRejectNote
	}
	req, err := s.settle(ctx, id, "", StatusRejected, note, func(req Request, w *ledger.Wallet) error {
		if req.Type != TypeWithdraw {
			return nil
		}
		return w.Unfreeze(req.Currency, req.Amount, ledger.Return)
	})
	s.finish(ctx, "reject", req, err)
	return req, err
}

func (s *Service) finish(ctx context.Context, action string, req Request, err error) {
	s.metrics.Request(action, err)
	if err != nil {
		return
	}
	name := notification.RequestApproved
	if req.Status == StatusRejected {
		name = notification.RequestRejected
	}
	s.logger.Info("request settled", slog.String("request_id", req.ID), slog.String("status", string(req.Status)))
	notification.Emit(ctx, s.notifier, s.logger, notification.Event{Name: name, Payload: req})
}

// AddTokens credits a user directly on behalf of an administrator.
func (s *Service) AddTokens(ctx context.Context, userID, asset string, amount decimal.Decimal) (Transaction, error) {
	if !ledger.IsSupported(asset) {
		return Transaction{}, fmt.Errorf("%w: %q", ledger.ErrUnsupportedAsset, asset)
	}
	if !amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	tx := Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          TxDeposit,
		Status:        TxCompleted,
		Amount:        amount,
		Currency:      asset,
		TransactionID: uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.wallets.Apply(ctx, userID, func(w *ledger.Wallet) error {
			if err := w.CreditAsset(asset, amount); err != nil {
				return err
			}
			w.AppendDeposit(asset, amount)
			return nil
		}); err != nil {
			return err
		}
		return s.transactions.Create(ctx, tx)
	})
	s.metrics.Request("add_tokens", err)
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// SwapInput converts Amount of From into To at ExchangeRate (To per From).
type SwapInput struct {
	From         string
	To           string
	Amount       decimal.Decimal
	ExchangeRate decimal.Decimal
	ClientTxID   string
}

// Swap moves both legs in a single wallet mutation and records a completed
// swap transaction. A reused ClientTxID fails with ErrDuplicateTransaction
// and leaves balances untouched.
func (s *Service) Swap(ctx context.Context, userID string, in SwapInput) (Transaction, error) {
	if !ledger.IsSupported(in.From) || !ledger.IsSupported(in.To) {
		return Transaction{}, fmt.Errorf("%w: %s/%s", ledger.ErrUnsupportedAsset, in.From, in.To)
	}
	if in.From == in.To {
		return Transaction{}, fmt.Errorf("%w: cannot swap %s into itself", ledger.ErrUnsupportedAsset, in.From)
	}
	if !in.Amount.IsPositive() || !in.ExchangeRate.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: amount and rate must be positive", ledger.ErrInvalidAmount)
	}
	if in.ClientTxID == "" {
		in.ClientTxID = uuid.NewString()
	}
	toAmount := in.Amount.Mul(in.ExchangeRate)
	tx := Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          TxSwap,
		Status:        TxCompleted,
		Amount:        in.Amount,
		FromAsset:     in.From,
		ToAsset:       in.To,
		FromAmount:    in.Amount,
		ToAmount:      toAmount,
		ExchangeRate:  in.ExchangeRate,
		TransactionID: in.ClientTxID,
		CreatedAt:     time.Now().UTC(),
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureUnique(ctx, userID, in.ClientTxID); err != nil {
			return err
		}
		if _, err := s.wallets.Apply(ctx, userID, func(w *ledger.Wallet) error {
			if err := w.DebitAsset(in.From, in.Amount); err != nil {
				return err
			}
			return w.CreditAsset(in.To, toAmount)
		}); err != nil {
			return err
		}
		return s.transactions.Create(ctx, tx)
	})
	s.metrics.Request("swap", err)
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// TransferInput moves quote balance between two sub-wallets of one user.
type TransferInput struct {
	From       ledger.SubAccount
	To         ledger.SubAccount
	Amount     decimal.Decimal
	ClientTxID string
}

// Transfer moves funds between the caller's sub-wallets and records a
// completed transfer transaction. Like Swap, a reused ClientTxID fails with
// ErrDuplicateTransaction.
func (s *Service) Transfer(ctx context.Context, userID string, in TransferInput) (Transaction, error) {
	if !in.From.Valid() || !in.To.Valid() || in.From == in.To {
		return Transaction{}, fmt.Errorf("%w: %q to %q", ledger.ErrInvalidSubAccount, in.From, in.To)
	}
	if !in.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	if in.ClientTxID == "" {
		in.ClientTxID = uuid.NewString()
	}
	tx := Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          TxTransfer,
		Status:        TxCompleted,
		Amount:        in.Amount,
		Currency:      ledger.QuoteAsset,
		FromAsset:     string(in.From),
		ToAsset:       string(in.To),
		FromAmount:    in.Amount,
		ToAmount:      in.Amount,
		TransactionID: in.ClientTxID,
		CreatedAt:     time.Now().UTC(),
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureUnique(ctx, userID, in.ClientTxID); err != nil {
			return err
		}
		if _, err := s.wallets.Apply(ctx, userID, func(w *ledger.Wallet) error {
			return w.Transfer(in.From, in.To, in.Amount)
		}); err != nil {
			return err
		}
		return s.transactions.Create(ctx, tx)
	})
	s.metrics.Request("transfer", err)
	if err != nil {
		return Transaction{}, err
	}
	s.logger.Info("sub-wallet transfer", slog.String("user_id", userID), slog.String("from", string(in.From)),
		slog.String("to", string(in.To)), slog.String("amount", in.Amount.String()))
	return tx, nil
}

func (s *Service) ensureUnique(ctx context.Context, userID, transactionID string) error {
	_, err := s.transactions.GetByTransactionID(ctx, userID, transactionID)
	switch {
	case err == nil:
		return fmt.Errorf("transaction %s: %w", transactionID, ledger.ErrDuplicateTransaction)
	case errors.Is(err, ledger.ErrNotFound):
		return nil
	default:
		return err
	}
}

// Requests lists the caller's requests; administrators see every request.
func (s *Service) Requests(ctx context.Context, caller middleware.Caller) ([]Request, error) {
	if caller.IsAdmin() {
		return s.requests.List(ctx, RequestFilter{})
	}
	return s.requests.List(ctx, RequestFilter{UserID: caller.UserID})
}

// UserRequests lists every request of userID for administrators.
func (s *Service) UserRequests(ctx context.Context, userID string) ([]Request, error) {
	return s.requests.List(ctx, RequestFilter{UserID: userID})
}

// Request returns a single request, enforcing ownership for non-admin callers.
func (s *Service) Request(ctx context.Context, id string, caller middleware.Caller) (Request, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !caller.IsAdmin() && req.UserID != caller.UserID {
		return Request{}, fmt.Errorf("request %s: %w", id, ledger.ErrNotOwner)
	}
	return req, nil
}

// PendingRequests lists requests awaiting review.
func (s *Service) PendingRequests(ctx context.Context) ([]Request, error) {
	return s.requests.List(ctx, RequestFilter{Status: StatusPending})
}

// Transactions lists the transactions of userID.
func (s *Service) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	return s.transactions.ListByUser(ctx, userID)
}
