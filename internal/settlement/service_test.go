package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rovobit/exchange/internal/infra"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/logging"
	"github.com/rovobit/exchange/internal/metrics"
	"github.com/rovobit/exchange/internal/notification"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	wallets  *ledger.Service
	flags    *MemoryFlags
	metrics  *metrics.Metrics
	recorder *notification.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	tx := infra.NewMemoryTransactor()
	m := metrics.New()
	logger := logging.Discard()
	wallets := ledger.NewService(ledger.NewMemoryRepository(), tx, m, logger)
	flags := NewMemoryFlags()
	rec := notification.NewRecorder(32)
	svc, err := NewService(Deps{
		Trades:    NewMemoryTradeRepository(),
		Positions: NewMemoryPositionRepository(),
		Wallets:   wallets,
		Tx:        tx,
		Flags:     flags,
		Notifier:  rec,
		Metrics:   m,
		Logger:    logger,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	return fixture{svc: svc, wallets: wallets, flags: flags, metrics: m, recorder: rec}
}

func (f fixture) openWallet(t *testing.T, userID string, o ledger.Overrides) {
	t.Helper()
	ctx := context.Background()
	_, err := f.wallets.Open(ctx, userID)
	require.NoError(t, err)
	_, err = f.wallets.Override(ctx, userID, o)
	require.NoError(t, err)
}

func ptr(v string) *decimal.Decimal {
	amount := d(v)
	return &amount
}

func (f fixture) wallet(t *testing.T, userID string) ledger.Wallet {
	t.Helper()
	w, err := f.wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	require.Error(t, err)
}

func TestBuyTradeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{SpotWallet: ptr("1000")})

	trade, err := f.svc.PlaceTrade(ctx, "u1", PlaceTradeInput{Type: Buy, Asset: "BTC", Quantity: d("0.01"), Price: d("50000")})
	require.NoError(t, err)
	require.Equal(t, TradePending, trade.Status)
	require.True(t, trade.TotalCost.Equal(d("500")))

	w := f.wallet(t, "u1")
	require.True(t, w.SpotWallet.Equal(d("1000")), "placing a trade must not move funds")

	approved, err := f.svc.ApproveTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, TradeApproved, approved.Status)

	w = f.wallet(t, "u1")
	require.True(t, w.SpotWallet.Equal(d("500")), "spot: %s", w.SpotWallet)
	require.True(t, w.Holding("BTC").Equal(d("0.01")), "btc: %s", w.Holding("BTC"))

	_, err = f.svc.ApproveTrade(ctx, trade.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadySettled)
	_, err = f.svc.RejectTrade(ctx, trade.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadySettled)

	w = f.wallet(t, "u1")
	require.True(t, w.SpotWallet.Equal(d("500")), "second approval moved funds")

	events := f.recorder.Events()
	require.Len(t, events, 1)
	require.Equal(t, notification.OrderApproved, events[0].Name)
}

func TestSellTradeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{Holdings: []ledger.Holding{{Asset: "ETH", Quantity: d("2")}}})

	trade, err := f.svc.PlaceTrade(ctx, "u1", PlaceTradeInput{Type: Sell, Asset: "ETH", Quantity: d("1.5"), Price: d("3000")})
	require.NoError(t, err)
	_, err = f.svc.ApproveTrade(ctx, trade.ID)
	require.NoError(t, err)

	w := f.wallet(t, "u1")
	require.True(t, w.SpotWallet.Equal(d("4500")))
	require.True(t, w.Holding("ETH").Equal(d("0.5")))
}

func TestApproveWithoutFundsKeepsTradePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{SpotWallet: ptr("10")})

	buy, err := f.svc.PlaceTrade(ctx, "u1", PlaceTradeInput{Type: Buy, Asset: "BTC", Quantity: d("1"), Price: d("100")})
	require.NoError(t, err)
	_, err = f.svc.ApproveTrade(ctx, buy.ID)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	sell, err := f.svc.PlaceTrade(ctx, "u1", PlaceTradeInput{Type: Sell, Asset: "SOL", Quantity: d("1"), Price: d("100")})
	require.NoError(t, err)
	_, err = f.svc.ApproveTrade(ctx, sell.ID)
	require.ErrorIs(t, err, ledger.ErrInsufficientHoldings)

	trades, err := f.svc.Trades(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	for _, tr := range trades {
		require.Equal(t, TradePending, tr.Status)
	}
	w := f.wallet(t, "u1")
	require.True(t, w.SpotWallet.Equal(d("10")))
	require.Empty(t, w.Holdings)
}

func TestRejectTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{SpotWallet: ptr("1000")})

	trade, err := f.svc.PlaceTrade(ctx, "u1", PlaceTradeInput{Type: Buy, Asset: "BTC", Quantity: d("0.01"), Price: d("50000")})
	require.NoError(t, err)
	rejected, err := f.svc.RejectTrade(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, TradeRejected, rejected.Status)

	_, err = f.svc.ApproveTrade(ctx, trade.ID)
	require.ErrorIs(t, err, ledger.ErrAlreadySettled)
	require.True(t, f.wallet(t, "u1").SpotWallet.Equal(d("1000")))

	events := f.recorder.Events()
	require.Len(t, events, 1)
	require.Equal(t, notification.OrderRejected, events[0].Name)
}

func TestPlaceTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{})

	cases := []struct {
		name string
		in   PlaceTradeInput
		want error
	}{
		{"quote asset", PlaceTradeInput{Type: Buy, Asset: "USDT", Quantity: d("1"), Price: d("1")}, ledger.ErrUnsupportedAsset},
		{"unknown asset", PlaceTradeInput{Type: Buy, Asset: "FOO", Quantity: d("1"), Price: d("1")}, ledger.ErrUnsupportedAsset},
		{"zero quantity", PlaceTradeInput{Type: Buy, Asset: "BTC", Quantity: d("0"), Price: d("1")}, ledger.ErrInvalidAmount},
		{"negative price", PlaceTradeInput{Type: Sell, Asset: "BTC", Quantity: d("1"), Price: d("-1")}, ledger.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PlaceTrade(ctx, "u1", tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.PlaceTrade(ctx, "ghost", PlaceTradeInput{Type: Buy, Asset: "BTC", Quantity: d("1"), Price: d("1")})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func openFutures(t *testing.T, f fixture, userID string) Position {
	t.Helper()
	pos, err := f.svc.OpenPosition(context.Background(), userID, OpenPositionInput{
		Category:     Futures,
		Asset:        "BTC",
		Side:         Long,
		EntryPrice:   d("100"),
		AssetsAmount: d("10"),
		Leverage:     d("5"),
	})
	require.NoError(t, err)
	return pos
}

func TestOpenPositionTakesMargin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{FuturesWallet: ptr("1000")})

	pos := openFutures(t, f, "u1")
	require.True(t, pos.MarginUsed.Equal(d("200")), "margin: %s", pos.MarginUsed)
	require.Equal(t, PositionOpen, pos.Status)
	require.True(t, f.wallet(t, "u1").FuturesWallet.Equal(d("800")))

	_, err := f.svc.OpenPosition(ctx, "u1", OpenPositionInput{
		Category: Perpetual, Asset: "BTC", Side: Short,
		EntryPrice: d("100"), AssetsAmount: d("1"), Leverage: d("1"),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	open, err := f.svc.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestLiquidateFixedRateFollowsProfitFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{FuturesWallet: ptr("1000")})

	// Unset flag settles unfavorably: -(10*5/100).
	pos := openFutures(t, f, "u1")
	closed, err := f.svc.Liquidate(ctx, pos.ID, d("120"), nil)
	require.NoError(t, err)
	require.True(t, closed.ProfitLoss.Equal(d("-0.5")), "pl: %s", closed.ProfitLoss)
	require.Equal(t, PositionClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.True(t, f.wallet(t, "u1").FuturesWallet.Equal(d("999.5")))

	on, err := f.svc.ToggleProfit(ctx, "u1")
	require.NoError(t, err)
	require.True(t, on)

	pos = openFutures(t, f, "u1")
	closed, err = f.svc.Liquidate(ctx, pos.ID, d("80"), nil)
	require.NoError(t, err)
	require.True(t, closed.ProfitLoss.Equal(d("0.5")))
	require.True(t, f.wallet(t, "u1").FuturesWallet.Equal(d("1000")))

	_, err = f.svc.Liquidate(ctx, pos.ID, d("80"), nil)
	require.ErrorIs(t, err, ledger.ErrAlreadyClosed)
	require.True(t, f.wallet(t, "u1").FuturesWallet.Equal(d("1000")), "second close moved funds")

	var closes int
	for _, ev := range f.recorder.Events() {
		if ev.Name == notification.TradeClose {
			closes++
		}
	}
	require.Equal(t, 2, closes)
}

func TestLiquidateFloorsSubWalletAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{FuturesWallet: ptr("200")})

	pos := openFutures(t, f, "u1")
	require.True(t, f.wallet(t, "u1").FuturesWallet.IsZero())

	closed, err := f.svc.Liquidate(ctx, pos.ID, d("50"), MarkToMarketPolicy{})
	require.NoError(t, err)
	require.True(t, closed.ProfitLoss.Equal(d("-500")))
	require.True(t, f.wallet(t, "u1").FuturesWallet.IsZero())
}

func TestLiquidateMarkToMarketShortPerpetual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openWallet(t, "u1", ledger.Overrides{PerpetualsWallet: ptr("100")})

	pos, err := f.svc.OpenPosition(ctx, "u1", OpenPositionInput{
		Category: Perpetual, Asset: "ETH", Side: Short,
		EntryPrice: d("100"), AssetsAmount: d("2"), Leverage: d("10"),
	})
	require.NoError(t, err)
	require.True(t, f.wallet(t, "u1").PerpetualsWallet.Equal(d("80")))

	closed, err := f.svc.Liquidate(ctx, pos.ID, d("90"), MarkToMarketPolicy{})
	require.NoError(t, err)
	require.True(t, closed.ProfitLoss.Equal(d("20")))
	require.True(t, closed.ClosePrice.Equal(d("90")))
	require.True(t, f.wallet(t, "u1").PerpetualsWallet.Equal(d("120")))
}

func TestLiquidateRejectsBadPrice(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Liquidate(context.Background(), "missing", d("0"), nil)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = f.svc.Liquidate(context.Background(), "missing", d("1"), nil)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestMarginExhausted(t *testing.T) {
	pos := Position{Side: Long, EntryPrice: d("100"), AssetsAmount: d("10"), MarginUsed: d("200")}
	require.False(t, MarginExhausted(pos, d("81")))
	require.True(t, MarginExhausted(pos, d("80")))
	require.False(t, MarginExhausted(pos, d("150")))

	pos.Side = Short
	require.True(t, MarginExhausted(pos, d("120")))
	require.False(t, MarginExhausted(pos, d("90")))
}
