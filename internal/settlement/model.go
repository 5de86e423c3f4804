package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovobit/exchange/internal/ledger"
)

// TradeType is the direction of a spot trade.
type TradeType string

const (
	Buy  TradeType = "buy"
	Sell TradeType = "sell"
)

// TradeStatus is the lifecycle state of a spot trade.
type TradeStatus string

const (
	TradePending  TradeStatus = "pending"
	TradeApproved TradeStatus = "approved"
	TradeRejected TradeStatus = "rejected"
)

// Trade is a spot order awaiting or past administrator review.
type Trade struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Type       TradeType       `json:"type"`
	Asset      string          `json:"asset"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalCost  decimal.Decimal `json:"totalCost"`
	Status     TradeStatus     `json:"status"`
	ExecutedAt time.Time       `json:"executedAt"`
	Version    int64           `json:"-"`
}

// Category tags the kind of leveraged position and selects the sub-wallet
// its margin is drawn from.
type Category string

const (
	Futures   Category = "futures"
	Perpetual Category = "perpetual"
)

// SubAccount returns the wallet pool backing the category.
func (c Category) SubAccount() ledger.SubAccount {
	if c == Perpetual {
		return ledger.Perpetuals
	}
	return ledger.Futures
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == Futures || c == Perpetual
}

// Side is the direction of a leveraged position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// PositionStatus is the lifecycle state of a leveraged position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is an open or closed futures or perpetual position. MarginUsed
// was taken from the category sub-wallet when the position opened.
type Position struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Category     Category        `json:"category"`
	Asset        string          `json:"asset"`
	Side         Side            `json:"side"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	AssetsAmount decimal.Decimal `json:"assetsAmount"`
	Leverage     decimal.Decimal `json:"leverage"`
	MarginUsed   decimal.Decimal `json:"marginUsed"`
	Status       PositionStatus  `json:"status"`
	OpenedAt     time.Time       `json:"openedAt"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	ClosedAt     *time.Time      `json:"closedAt,omitempty"`
	ProfitLoss   decimal.Decimal `json:"profitLoss"`
	ClosePrice   decimal.Decimal `json:"closePrice"`
	Version      int64           `json:"-"`
}

// Expired reports whether the position has an expiry at or before now.
func (p Position) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}
