package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Policy computes the realised profit or loss of a position closed at markPrice.
type Policy interface {
	ProfitLoss(p Position, markPrice decimal.Decimal) decimal.Decimal
}

// FixedRatePolicy settles every position at assetsAmount*leverage/100,
// positive when Favorable and negative otherwise. The mark price is ignored.
type FixedRatePolicy struct {
	Favorable bool
}

// ProfitLoss implements Policy.
func (f FixedRatePolicy) ProfitLoss(p Position, _ decimal.Decimal) decimal.Decimal {
	fixed := p.AssetsAmount.Mul(p.Leverage).Div(hundred)
	if f.Favorable {
		return fixed
	}
	return fixed.Neg()
}

// MarkToMarketPolicy settles at the price move times the position size,
// signed by side.
type MarkToMarketPolicy struct{}

// ProfitLoss implements Policy.
func (MarkToMarketPolicy) ProfitLoss(p Position, markPrice decimal.Decimal) decimal.Decimal {
	pl := markPrice.Sub(p.EntryPrice).Mul(p.AssetsAmount)
	if p.Side == Short {
		return pl.Neg()
	}
	return pl
}

// MarginExhausted reports whether the mark-to-market loss at markPrice has
// consumed the position's margin.
func MarginExhausted(p Position, markPrice decimal.Decimal) bool {
	pl := MarkToMarketPolicy{}.ProfitLoss(p, markPrice)
	return pl.IsNegative() && pl.Neg().GreaterThanOrEqual(p.MarginUsed)
}

// PolicyResolver picks the settlement policy for a position.
type PolicyResolver interface {
	Policy(ctx context.Context, p Position) (Policy, error)
}

// FlagPolicyResolver settles at the fixed rate, favorable when the owner's
// profit flag is set.
type FlagPolicyResolver struct {
	Flags ProfitFlags
}

// Policy implements PolicyResolver.
func (r FlagPolicyResolver) Policy(ctx context.Context, p Position) (Policy, error) {
	favorable, err := r.Flags.Get(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("profit flag for %s: %w", p.UserID, err)
	}
	return FixedRatePolicy{Favorable: favorable}, nil
}
