package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/metrics"
	"github.com/rovobit/exchange/internal/notification"
)

// Deps bundles the collaborators of the settlement service.
type Deps struct {
	Trades    TradeRepository
	Positions PositionRepository
	Wallets   *ledger.Service
	Tx        infra.Transactor
	Flags     ProfitFlags
	Resolver  PolicyResolver
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service settles spot trades and leveraged positions against user wallets.
type Service struct {
	trades    TradeRepository
	positions PositionRepository
	wallets   *ledger.Service
	tx        infra.Transactor
	flags     ProfitFlags
	resolver  PolicyResolver
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds a settlement service. Without a resolver, positions
// settle at the fixed rate keyed off the owner's profit flag.
func NewService(d Deps) (*Service, error) {
	if d.Trades == nil || d.Positions == nil || d.Wallets == nil || d.Tx == nil {
		return nil, fmt.Errorf("settlement: repositories, wallet service and transactor are required")
	}
	if d.Flags == nil {
		d.Flags = NewMemoryFlags()
	}
	if d.Resolver == nil {
		d.Resolver = FlagPolicyResolver{Flags: d.Flags}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		trades:    d.Trades,
		positions: d.Positions,
		wallets:   d.Wallets,
		tx:        d.Tx,
		flags:     d.Flags,
		resolver:  d.Resolver,
		notifier:  d.Notifier,
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// PlaceTradeInput describes a spot order.
type PlaceTradeInput struct {
	Type     TradeType
	Asset    string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// PlaceTrade records a pending spot trade. Balances move only on approval.
func (s *Service) PlaceTrade(ctx context.Context, userID string, in PlaceTradeInput) (Trade, error) {
	if in.Type != Buy && in.Type != Sell {
		return Trade{}, fmt.Errorf("unknown trade type %q", in.Type)
	}
	if in.Asset == ledger.QuoteAsset || !ledger.IsSupported(in.Asset) {
		return Trade{}, fmt.Errorf("%w: %q cannot be traded", ledger.ErrUnsupportedAsset, in.Asset)
	}
	if !in.Quantity.IsPositive() || !in.Price.IsPositive() {
		return Trade{}, fmt.Errorf("%w: quantity and price must be positive", ledger.ErrInvalidAmount)
	}
	if _, err := s.wallets.Get(ctx, userID); err != nil {
		return Trade{}, err
	}
	trade := Trade{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       in.Type,
		Asset:      in.Asset,
		Quantity:   in.Quantity,
		Price:      in.Price,
		TotalCost:  in.Quantity.Mul(in.Price),
		Status:     TradePending,
		ExecutedAt: s.now(),
	}
	if err := s.trades.Create(ctx, trade); err != nil {
		return Trade{}, err
	}
	return trade, nil
}

// ApproveTrade settles a pending spot trade. A buy moves quantity*price from
// spot into the holding; a sell does the reverse.
func (s *Service) ApproveTrade(ctx context.Context, tradeID string) (Trade, error) {
	var out Trade
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		trade, err := s.trades.Get(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != TradePending {
			return fmt.Errorf("trade %s is %s: %w", tradeID, trade.Status, ledger.ErrAlreadySettled)
		}
		total := trade.Quantity.Mul(trade.Price)
		if _, err := s.wallets.Apply(ctx, trade.UserID, func(w *ledger.Wallet) error {
			switch trade.Type {
			case Buy:
				if err := w.Debit(ledger.Spot, total); err != nil {
					return err
				}
				return w.AdjustHolding(trade.Asset, trade.Quantity)
			case Sell:
				if err := w.AdjustHolding(trade.Asset, trade.Quantity.Neg()); err != nil {
					return err
				}
				return w.Credit(ledger.Spot, total)
			default:
				return fmt.Errorf("trade %s has unknown type %q", tradeID, trade.Type)
			}
		}); err != nil {
			return err
		}
		trade.Status = TradeApproved
		trade.TotalCost = total
		saved, err := s.trades.Update(ctx, trade)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	s.metrics.Settlement("spot_approve", err)
	if err != nil {
		return Trade{}, err
	}
	s.logger.Info("trade approved", slog.String("trade_id", out.ID), slog.String("user_id", out.UserID),
		slog.String("type", string(out.Type)), slog.String("total", out.TotalCost.String()))
	notification.Emit(ctx, s.notifier, s.logger, notification.Event{Name: notification.OrderApproved, Payload: out})
	return out, nil
}

// RejectTrade closes a pending spot trade without touching balances.
func (s *Service) RejectTrade(ctx context.Context, tradeID string) (Trade, error) {
	var out Trade
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		trade, err := s.trades.Get(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != TradePending {
			return fmt.Errorf("trade %s is %s: %w", tradeID, trade.Status, ledger.ErrAlreadySettled)
		}
		trade.Status = TradeRejected
		saved, err := s.trades.Update(ctx, trade)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	s.metrics.Settlement("spot_reject", err)
	if err != nil {
		return Trade{}, err
	}
	notification.Emit(ctx, s.notifier, s.logger, notification.Event{Name: notification.OrderRejected, Payload: out})
	return out, nil
}

// OpenPositionInput describes a leveraged position. A zero MarginUsed
// defaults to entryPrice*assetsAmount/leverage.
type OpenPositionInput struct {
	Category     Category
	Asset        string
	Side         Side
	EntryPrice   decimal.Decimal
	AssetsAmount decimal.Decimal
	Leverage     decimal.Decimal
	MarginUsed   decimal.Decimal
	ExpiresAt    *time.Time
}

// OpenPosition takes the margin from the category sub-wallet and records an
// open position.
func (s *Service) OpenPosition(ctx context.Context, userID string, in OpenPositionInput) (Position, error) {
	if !in.Category.Valid() {
		return Position{}, fmt.Errorf("unknown position category %q", in.Category)
	}
	if in.Side != Long && in.Side != Short {
		return Position{}, fmt.Errorf("unknown position side %q", in.Side)
	}
	if in.Asset == ledger.QuoteAsset || !ledger.IsSupported(in.Asset) {
		return Position{}, fmt.Errorf("%w: %q cannot be traded", ledger.ErrUnsupportedAsset, in.Asset)
	}
	if !in.EntryPrice.IsPositive() || !in.AssetsAmount.IsPositive() || !in.Leverage.IsPositive() || in.MarginUsed.IsNegative() {
		return Position{}, fmt.Errorf("%w: price, amount and leverage must be positive", ledger.ErrInvalidAmount)
	}
	margin := in.MarginUsed
	if margin.IsZero() {
		margin = in.EntryPrice.Mul(in.AssetsAmount).Div(in.Leverage)
	}
	pos := Position{
		ID:           uuid.NewString(),
		UserID:       userID,
		Category:     in.Category,
		Asset:        in.Asset,
		Side:         in.Side,
		EntryPrice:   in.EntryPrice,
		AssetsAmount: in.AssetsAmount,
		Leverage:     in.Leverage,
		MarginUsed:   margin,
		Status:       PositionOpen,
		OpenedAt:     s.now(),
		ExpiresAt:    in.ExpiresAt,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.wallets.Apply(ctx, userID, func(w *ledger.Wallet) error {
			return w.Debit(in.Category.SubAccount(), margin)
		}); err != nil {
			return err
		}
		return s.positions.Create(ctx, pos)
	})
	s.metrics.Settlement("position_open", err)
	if err != nil {
		return Position{}, err
	}
	return pos, nil
}

// Liquidate closes an open position at markPrice. The category sub-wallet
// becomes max(0, balance + margin + profitLoss). A nil policy uses the
// service resolver.
func (s *Service) Liquidate(ctx context.Context, positionID string, markPrice decimal.Decimal, policy Policy) (Position, error) {
	if !markPrice.IsPositive() {
		return Position{}, fmt.Errorf("%w: market price must be positive", ledger.ErrInvalidAmount)
	}
	var out Position
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		pos, err := s.positions.Get(ctx, positionID)
		if err != nil {
			return err
		}
		if pos.Status != PositionOpen {
			return fmt.Errorf("position %s: %w", positionID, ledger.ErrAlreadyClosed)
		}
		p := policy
		if p == nil {
			if p, err = s.resolver.Policy(ctx, pos); err != nil {
				return err
			}
		}
		pl := p.ProfitLoss(pos, markPrice)

		if _, err := s.wallets.Apply(ctx, pos.UserID, func(w *ledger.Wallet) error {
			sub := pos.Category.SubAccount()
			current := w.Balance(sub)
			target := decimal.Max(decimal.Zero, current.Add(pos.MarginUsed).Add(pl))
			switch diff := target.Sub(current); diff.Sign() {
			case 1:
				return w.Credit(sub, diff)
			case -1:
				return w.Debit(sub, diff.Neg())
			}
			return nil
		}); err != nil {
			return err
		}

		closedAt := s.now()
		pos.Status = PositionClosed
		pos.ClosedAt = &closedAt
		pos.ProfitLoss = pl
		pos.ClosePrice = markPrice
		saved, err := s.positions.Update(ctx, pos)
		if err != nil {
			return err
		}
		out = saved
		return nil
	})
	s.metrics.Settlement("liquidation", err)
	if err != nil {
		return Position{}, err
	}
	s.logger.Info("position closed", slog.String("position_id", out.ID), slog.String("user_id", out.UserID),
		slog.String("profit_loss", out.ProfitLoss.String()), slog.String("close_price", out.ClosePrice.String()))
	notification.Emit(ctx, s.notifier, s.logger, notification.Event{
		Name:    notification.TradeClose,
		Payload: map[string]any{"tradeId": out.ID, "profitLoss": out.ProfitLoss},
	})
	return out, nil
}

// OpenTrades lists open positions of both categories.
func (s *Service) OpenTrades(ctx context.Context) ([]Position, error) {
	return s.positions.ListOpen(ctx)
}

// Trades lists the spot trades of userID.
func (s *Service) Trades(ctx context.Context, userID string) ([]Trade, error) {
	return s.trades.ListByUser(ctx, userID)
}

// Positions lists the positions of userID.
func (s *Service) Positions(ctx context.Context, userID string) ([]Position, error) {
	return s.positions.ListByUser(ctx, userID)
}

// ToggleProfit flips the user's profit flag and returns the new value.
func (s *Service) ToggleProfit(ctx context.Context, userID string) (bool, error) {
	favorable, err := s.flags.Toggle(ctx, userID)
	if err != nil {
		return false, err
	}
	s.logger.Info("profit flag toggled", slog.String("user_id", userID), slog.Bool("favorable", favorable))
	return favorable, nil
}

// ProfitFlag reports the user's profit flag.
func (s *Service) ProfitFlag(ctx context.Context, userID string) (bool, error) {
	return s.flags.Get(ctx, userID)
}
