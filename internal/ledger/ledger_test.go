package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func funded(spot string, holdings ...Holding) Wallet {
	return Wallet{UserID: "u1", SpotWallet: d(spot), Holdings: holdings}
}

func TestCreditDebitRoundTrip(t *testing.T) {
	w := funded("100.10")
	before := w.Clone()
	if err := w.Debit(Spot, d("33.333")); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := w.Credit(Spot, d("33.333")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if !w.SpotWallet.Equal(before.SpotWallet) {
		t.Fatalf("expected %s after round trip, got %s", before.SpotWallet, w.SpotWallet)
	}
	if len(w.WalletChangeHistory) != 2 {
		t.Fatalf("expected two change-sets, got %d", len(w.WalletChangeHistory))
	}
}

func TestDebitNeverGoesNegative(t *testing.T) {
	w := funded("10")
	err := w.Debit(Spot, d("10.0001"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if !w.SpotWallet.Equal(d("10")) || len(w.WalletChangeHistory) != 0 {
		t.Fatalf("failed debit must not mutate wallet: %+v", w)
	}
	if err := w.Debit(Futures, d("1")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient futures funds, got %v", err)
	}
}

func TestInvalidAmounts(t *testing.T) {
	w := funded("10")
	if err := w.Credit(Spot, d("-1")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := w.Credit("margin", d("1")); !errors.Is(err, ErrInvalidSubAccount) {
		t.Fatalf("expected invalid sub-account, got %v", err)
	}
	for _, s := range []string{"abc", "NaN", "-0.5", ""} {
		if _, err := ParseAmount(s); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%q): expected invalid amount, got %v", s, err)
		}
	}
	got, err := ParseAmount("0.1")
	if err != nil || !got.Equal(d("0.1")) {
		t.Fatalf("ParseAmount(0.1) = %s, %v", got, err)
	}
}

func TestAdjustHolding(t *testing.T) {
	w := funded("0")
	if err := w.AdjustHolding("BTC", d("0.5")); err != nil {
		t.Fatalf("create holding: %v", err)
	}
	if got := w.Holding("BTC"); !got.Equal(d("0.5")) {
		t.Fatalf("expected 0.5 BTC, got %s", got)
	}
	if err := w.AdjustHolding("BTC", d("-0.6")); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected insufficient holdings, got %v", err)
	}
	if err := w.AdjustHolding("ETH", d("-1")); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected insufficient holdings for absent asset, got %v", err)
	}
	if err := w.AdjustHolding("BTC", d("-0.5")); err != nil {
		t.Fatalf("drain holding: %v", err)
	}
	if len(w.Holdings) != 0 {
		t.Fatalf("expected zero holding to be removed, got %+v", w.Holdings)
	}
	if err := w.AdjustHolding("USDT", d("1")); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected quote asset rejection, got %v", err)
	}
	if err := w.AdjustHolding("FOO", d("1")); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected unknown asset rejection, got %v", err)
	}

	last := w.WalletChangeHistory[len(w.WalletChangeHistory)-1]
	if len(last.Changes.SpotWallet) != 1 || last.Changes.SpotWallet[0].Asset != "BTC" {
		t.Fatalf("expected holding change recorded under spot bucket, got %+v", last.Changes)
	}
}

func TestFreezeReturnRoundTrip(t *testing.T) {
	w := funded("50", Holding{Asset: "ETH", Quantity: d("2")})
	before := w.Clone()

	if err := w.Freeze("USDT", d("20")); err != nil {
		t.Fatalf("freeze usdt: %v", err)
	}
	if err := w.Freeze("ETH", d("2")); err != nil {
		t.Fatalf("freeze eth: %v", err)
	}
	if !w.SpotWallet.Equal(d("30")) || !w.Frozen("USDT").Equal(d("20")) {
		t.Fatalf("unexpected usdt state: spot %s frozen %s", w.SpotWallet, w.Frozen("USDT"))
	}
	if len(w.Holdings) != 0 || !w.Frozen("ETH").Equal(d("2")) {
		t.Fatalf("unexpected eth state: %+v frozen %s", w.Holdings, w.Frozen("ETH"))
	}

	if err := w.Unfreeze("USDT", d("20"), Return); err != nil {
		t.Fatalf("unfreeze usdt: %v", err)
	}
	if err := w.Unfreeze("ETH", d("2"), Return); err != nil {
		t.Fatalf("unfreeze eth: %v", err)
	}
	if !w.SpotWallet.Equal(before.SpotWallet) || !w.Holding("ETH").Equal(before.Holding("ETH")) {
		t.Fatalf("expected balances restored, got spot %s eth %s", w.SpotWallet, w.Holding("ETH"))
	}
	if len(w.FrozenAssets) != 0 {
		t.Fatalf("expected frozen entries removed, got %+v", w.FrozenAssets)
	}
}

func TestFreezeAndUnfreezeFailures(t *testing.T) {
	w := funded("5")
	if err := w.Freeze("USDT", d("6")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := w.Freeze("BTC", d("1")); !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected insufficient holdings, got %v", err)
	}
	if err := w.Freeze("XYZ", d("1")); !errors.Is(err, ErrUnsupportedAsset) {
		t.Fatalf("expected unsupported asset, got %v", err)
	}
	if err := w.Freeze("USDT", d("5")); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := w.Unfreeze("USDT", d("5.01"), Consume); !errors.Is(err, ErrFrozenAmountMismatch) {
		t.Fatalf("expected frozen mismatch, got %v", err)
	}
	if err := w.Unfreeze("USDT", d("5"), Consume); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !w.SpotWallet.IsZero() || len(w.FrozenAssets) != 0 {
		t.Fatalf("consume must not return funds: spot %s frozen %+v", w.SpotWallet, w.FrozenAssets)
	}
}

func TestOverrideSingleChangeSet(t *testing.T) {
	w := funded("10", Holding{Asset: "BTC", Quantity: d("1")})
	spot := d("25")
	futures := d("5")
	changed, err := w.Override(Overrides{
		SpotWallet:    &spot,
		FuturesWallet: &futures,
		Holdings:      []Holding{{Asset: "ETH", Quantity: d("3")}},
	})
	if err != nil || !changed {
		t.Fatalf("override: changed=%v err=%v", changed, err)
	}
	if len(w.WalletChangeHistory) != 1 {
		t.Fatalf("expected one change-set, got %d", len(w.WalletChangeHistory))
	}
	cs := w.WalletChangeHistory[0].Changes
	// spot balance, BTC removal and ETH addition are all bucketed under spot.
	if len(cs.SpotWallet) != 3 || len(cs.FuturesWallet) != 1 || len(cs.PerpetualsWallet) != 0 {
		t.Fatalf("unexpected buckets: %+v", cs)
	}
	if w.Holding("BTC").Sign() != 0 || !w.Holding("ETH").Equal(d("3")) {
		t.Fatalf("holdings not replaced: %+v", w.Holdings)
	}

	changed, err = w.Override(Overrides{SpotWallet: &spot})
	if err != nil || changed {
		t.Fatalf("no-op override: changed=%v err=%v", changed, err)
	}

	negative := d("-1")
	if _, err := w.Override(Overrides{PerpetualsWallet: &negative}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	w := funded("1", Holding{Asset: "SOL", Quantity: d("4")})
	c := w.Clone()
	if err := c.AdjustHolding("SOL", d("-4")); err != nil {
		t.Fatalf("adjust clone: %v", err)
	}
	if !w.Holding("SOL").Equal(d("4")) {
		t.Fatalf("original mutated through clone: %+v", w.Holdings)
	}
}

func TestTransferBetweenSubAccounts(t *testing.T) {
	w := funded("50")
	if err := w.Transfer(Spot, Perpetuals, d("20")); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !w.SpotWallet.Equal(d("30")) || !w.PerpetualsWallet.Equal(d("20")) {
		t.Fatalf("unexpected balances spot=%s perpetuals=%s", w.SpotWallet, w.PerpetualsWallet)
	}
	if len(w.WalletChangeHistory) != 1 || len(w.TransferHistory) != 1 {
		t.Fatalf("expected one change-set and one transfer entry, got %d and %d", len(w.WalletChangeHistory), len(w.TransferHistory))
	}

	if err := w.Transfer(Perpetuals, Futures, d("20.5")); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := w.Transfer(Spot, "margin", d("1")); !errors.Is(err, ErrInvalidSubAccount) {
		t.Fatalf("expected invalid sub-account, got %v", err)
	}
	if len(w.TransferHistory) != 1 {
		t.Fatalf("failed transfers must not be logged")
	}
}
