package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/metrics"
)

// Service exposes wallet operations. Every mutation loads the wallet, applies
// the change to a clone and saves it with a version check, inside a unit of
// work that callers may join from their own transaction.
type Service struct {
	repo    Repository
	tx      infra.Transactor
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService builds a wallet ledger service.
func NewService(repo Repository, tx infra.Transactor, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tx: tx, metrics: m, logger: logger}
}

// Open provisions an empty wallet for userID.
func (s *Service) Open(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, errors.New("user id is required")
	}
	ts := now()
	wallet := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	err := s.repo.Create(ctx, wallet)
	s.metrics.LedgerOp("open", err)
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet opened", slog.String("user_id", userID), slog.String("wallet_id", wallet.ID))
	return wallet, nil
}

// Get returns the wallet owned by userID.
func (s *Service) Get(ctx context.Context, userID string) (Wallet, error) {
	return s.repo.GetByUser(ctx, userID)
}

// Apply runs fn against a copy of the user's wallet and persists the result.
// When fn fails nothing is written.
func (s *Service) Apply(ctx context.Context, userID string, fn func(w *Wallet) error) (Wallet, error) {
	return s.apply(ctx, "apply", userID, fn)
}

func (s *Service) apply(ctx context.Context, op, userID string, fn func(w *Wallet) error) (Wallet, error) {
	var out Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		saved, err := s.repo.Update(ctx, next)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	s.metrics.LedgerOp(op, err)
	if err != nil {
		return Wallet{}, err
	}
	return out, nil
}

// Credit adds amount to a sub-wallet.
func (s *Service) Credit(ctx context.Context, userID string, sub SubAccount, amount decimal.Decimal) (Wallet, error) {
	return s.apply(ctx, "credit", userID, func(w *Wallet) error { return w.Credit(sub, amount) })
}

// Debit removes amount from a sub-wallet.
func (s *Service) Debit(ctx context.Context, userID string, sub SubAccount, amount decimal.Decimal) (Wallet, error) {
	return s.apply(ctx, "debit", userID, func(w *Wallet) error { return w.Debit(sub, amount) })
}

// AdjustHolding moves a holding by delta.
func (s *Service) AdjustHolding(ctx context.Context, userID, asset string, delta decimal.Decimal) (Wallet, error) {
	return s.apply(ctx, "adjust_holding", userID, func(w *Wallet) error { return w.AdjustHolding(asset, delta) })
}

// Freeze escrows amount of asset.
func (s *Service) Freeze(ctx context.Context, userID, asset string, amount decimal.Decimal) (Wallet, error) {
	return s.apply(ctx, "freeze", userID, func(w *Wallet) error { return w.Freeze(asset, amount) })
}

// Unfreeze releases escrowed asset to dest.
func (s *Service) Unfreeze(ctx context.Context, userID, asset string, amount decimal.Decimal, dest Destination) (Wallet, error) {
	return s.apply(ctx, "unfreeze", userID, func(w *Wallet) error { return w.Unfreeze(asset, amount, dest) })
}

// Override rewrites balances on behalf of an administrator.
func (s *Service) Override(ctx context.Context, userID string, o Overrides) (Wallet, error) {
	var changed bool
	w, err := s.apply(ctx, "override", userID, func(w *Wallet) error {
		var err error
		changed, err = w.Override(o)
		return err
	})
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet overridden", slog.String("user_id", userID), slog.Bool("changed", changed))
	return w, nil
}

// Delete removes the wallet as part of an account deletion.
func (s *Service) Delete(ctx context.Context, userID string) error {
	err := s.repo.DeleteByUser(ctx, userID)
	s.metrics.LedgerOp("delete", err)
	if err == nil {
		s.logger.Info("wallet deleted", slog.String("user_id", userID))
	}
	return err
}
