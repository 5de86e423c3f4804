package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rovobit/exchange/internal/funding"
	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/settlement"
)

// ErrActivityOpen is returned when history is cleared while the user still
// has open positions or pending withdraw escrow.
var ErrActivityOpen = errors.New("user has open positions or pending requests")

// Deps bundles the repositories history deletion spans.
type Deps struct {
	Trades       settlement.TradeRepository
	Positions    settlement.PositionRepository
	Requests     funding.RequestRepository
	Transactions funding.TransactionRepository
	Wallets      *ledger.Service
	Tx           infra.Transactor
	Logger       *slog.Logger
}

// Summary counts what a deletion removed.
type Summary struct {
	Trades        int64 `json:"trades"`
	Positions     int64 `json:"positions"`
	Requests      int64 `json:"requests"`
	Transactions  int64 `json:"transactions"`
	WalletDeleted bool  `json:"walletDeleted"`
}

// Service deletes per-user history in bulk.
type Service struct {
	d Deps
}

// NewService builds a history service.
func NewService(d Deps) (*Service, error) {
	if d.Trades == nil || d.Positions == nil || d.Requests == nil || d.Transactions == nil || d.Wallets == nil || d.Tx == nil {
		return nil, fmt.Errorf("history: repositories, wallet service and transactor are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{d: d}, nil
}

// DeleteTradeHistory removes the user's spot trades and positions. It refuses
// while a position is still open.
func (s *Service) DeleteTradeHistory(ctx context.Context, userID string) (Summary, error) {
	var sum Summary
	err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureSettled(ctx, userID, false); err != nil {
			return err
		}
		var err error
		if sum.Trades, err = s.d.Trades.DeleteByUser(ctx, userID); err != nil {
			return err
		}
		sum.Positions, err = s.d.Positions.DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	s.log("trade history deleted", userID, sum)
	return sum, nil
}

// DeleteHistory removes trades, positions, requests and transactions of the user.
func (s *Service) DeleteHistory(ctx context.Context, userID string) (Summary, error) {
	var sum Summary
	err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.ensureSettled(ctx, userID, true); err != nil {
			return err
		}
		var err error
		sum, err = s.deleteAll(ctx, userID)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	s.log("history deleted", userID, sum)
	return sum, nil
}

// DeleteAccount removes every record of the user including the wallet. Open
// positions and escrow are discarded with it.
func (s *Service) DeleteAccount(ctx context.Context, userID string) (Summary, error) {
	var sum Summary
	err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.d.Wallets.Get(ctx, userID); err != nil {
			return err
		}
		var err error
		if sum, err = s.deleteAll(ctx, userID); err != nil {
			return err
		}
		if err := s.d.Wallets.Delete(ctx, userID); err != nil {
			return err
		}
		sum.WalletDeleted = true
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	s.log("account deleted", userID, sum)
	return sum, nil
}

func (s *Service) ensureSettled(ctx context.Context, userID string, withRequests bool) error {
	positions, err := s.d.Positions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if p.Status == settlement.PositionOpen {
			return fmt.Errorf("position %s: %w", p.ID, ErrActivityOpen)
		}
	}
	if !withRequests {
		return nil
	}
	pending, err := s.d.Requests.List(ctx, funding.RequestFilter{UserID: userID, Status: funding.StatusPending})
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("%d pending requests: %w", len(pending), ErrActivityOpen)
	}
	return nil
}

func (s *Service) deleteAll(ctx context.Context, userID string) (Summary, error) {
	var (
		sum Summary
		err error
	)
	if sum.Trades, err = s.d.Trades.DeleteByUser(ctx, userID); err != nil {
		return Summary{}, err
	}
	if sum.Positions, err = s.d.Positions.DeleteByUser(ctx, userID); err != nil {
		return Summary{}, err
	}
	if sum.Requests, err = s.d.Requests.DeleteByUser(ctx, userID); err != nil {
		return Summary{}, err
	}
	if sum.Transactions, err = s.d.Transactions.DeleteByUser(ctx, userID); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (s *Service) log(msg, userID string, sum Summary) {
	s.d.Logger.Info(msg, slog.String("user_id", userID),
		slog.Int64("trades", sum.Trades), slog.Int64("positions", sum.Positions),
		slog.Int64("requests", sum.Requests), slog.Int64("transactions", sum.Transactions),
		slog.Bool("wallet_deleted", sum.WalletDeleted))
}
