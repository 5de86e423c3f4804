package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount occurs when an amount is negative or not a finite number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when a sub-wallet lacks the balance to cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings occurs when a holding would drop below zero.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrFrozenAmountMismatch indicates the escrowed quantity does not cover a release.
	// Outside of bugs this should never reach a user.
	ErrFrozenAmountMismatch = errors.New("frozen amount mismatch")

	// ErrAlreadySettled is returned when a trade or request already reached a terminal state.
	ErrAlreadySettled = errors.New("already settled")

	// ErrAlreadyClosed is returned when a leveraged position is no longer open.
	ErrAlreadyClosed = errors.New("already closed")

	// ErrUnsupportedAsset is returned for assets outside the supported list.
	ErrUnsupportedAsset = errors.New("unsupported asset")

	// ErrInvalidSubAccount is returned for sub-accounts other than spot, futures and perpetuals.
	ErrInvalidSubAccount = errors.New("invalid sub-account")

	// ErrNotFound is returned when a wallet or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrNotOwner indicates the caller does not own the referenced record.
	ErrNotOwner = errors.New("not owner")
)

// supportedAssets lists every asset a wallet may hold, freeze or swap.
var supportedAssets = map[string]struct{}{
	"USDT": {}, "USDC": {}, "ETH": {}, "BTC": {}, "BNB": {}, "SOL": {}, "XRP": {},
	"ADA": {}, "DOGE": {}, "MATIC": {}, "DOTUS": {}, "LTC": {}, "DOT": {},
}

// IsSupported reports whether asset can be held by a wallet.
func IsSupported(asset string) bool {
	_, ok := supportedAssets[asset]
	return ok
}

// Destination selects what Unfreeze does with the released quantity.
type Destination int

const (
	// Return puts the released quantity back into the spendable balance.
	Return Destination = iota
	// Consume removes the released quantity permanently.
	Consume
)

var now = func() time.Time { return time.Now().UTC() }

// ParseAmount parses a decimal string, rejecting malformed and negative input.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := checkAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func checkAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount)
	}
	return nil
}

func checkHoldingAsset(asset string) error {
	if asset == QuoteAsset || !IsSupported(asset) {
		return fmt.Errorf("%w: %q cannot be held", ErrUnsupportedAsset, asset)
	}
	return nil
}

// Credit increases a sub-wallet balance.
func (w *Wallet) Credit(sub SubAccount, amount decimal.Decimal) error {
	if !sub.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSubAccount, sub)
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	var cs ChangeBuckets
	w.setBalance(sub, w.Balance(sub).Add(amount), &cs)
	w.record(cs)
	return nil
}

// Debit decreases a sub-wallet balance.
func (w *Wallet) Debit(sub SubAccount, amount decimal.Decimal) error {
	if !sub.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSubAccount, sub)
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	current := w.Balance(sub)
	if amount.GreaterThan(current) {
		return fmt.Errorf("%w: %s wallet has %s, needs %s", ErrInsufficientFunds, sub, current, amount)
	}
	var cs ChangeBuckets
	w.setBalance(sub, current.Sub(amount), &cs)
	w.record(cs)
	return nil
}

// Transfer moves amount between two sub-wallets as a single change-set and
// appends it to the transfer log.
func (w *Wallet) Transfer(from, to SubAccount, amount decimal.Decimal) error {
	if !from.Valid() || !to.Valid() || from == to {
		return fmt.Errorf("%w: %q to %q", ErrInvalidSubAccount, from, to)
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	current := w.Balance(from)
	if amount.GreaterThan(current) {
		return fmt.Errorf("%w: %s wallet has %s, needs %s", ErrInsufficientFunds, from, current, amount)
	}
	var cs ChangeBuckets
	w.setBalance(from, current.Sub(amount), &cs)
	w.setBalance(to, w.Balance(to).Add(amount), &cs)
	w.record(cs)
	w.TransferHistory = append(w.TransferHistory, TransferEntry{From: from, To: to, Amount: amount, Timestamp: now()})
	return nil
}

// AdjustHolding moves the holding of asset by delta, creating it when needed
// and removing it when it reaches zero.
func (w *Wallet) AdjustHolding(asset string, delta decimal.Decimal) error {
	if err := checkHoldingAsset(asset); err != nil {
		return err
	}
	current := w.Holding(asset)
	next := current.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: holds %s %s, needs %s", ErrInsufficientHoldings, current, asset, delta.Neg())
	}
	if delta.IsZero() {
		return nil
	}
	var cs ChangeBuckets
	w.setHolding(asset, next, &cs)
	w.record(cs)
	return nil
}

// CreditAsset adds amount of asset to the spendable balance: spot for the quote
// asset, the holding otherwise.
func (w *Wallet) CreditAsset(asset string, amount decimal.Decimal) error {
	if asset == QuoteAsset {
		return w.Credit(Spot, amount)
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return w.AdjustHolding(asset, amount)
}

// DebitAsset removes amount of asset from the spendable balance.
func (w *Wallet) DebitAsset(asset string, amount decimal.Decimal) error {
	if asset == QuoteAsset {
		return w.Debit(Spot, amount)
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return w.AdjustHolding(asset, amount.Neg())
}

// Freeze moves amount of asset out of the spendable balance into escrow.
func (w *Wallet) Freeze(asset string, amount decimal.Decimal) error {
	if !IsSupported(asset) {
		return fmt.Errorf("%w: %q", ErrUnsupportedAsset, asset)
	}
	if err := w.DebitAsset(asset, amount); err != nil {
		return err
	}
	w.setFrozen(asset, w.Frozen(asset).Add(amount))
	return nil
}

// Unfreeze releases amount of asset from escrow, either back to the spendable
// balance or out of the wallet entirely.
func (w *Wallet) Unfreeze(asset string, amount decimal.Decimal, dest Destination) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	frozen := w.Frozen(asset)
	if amount.GreaterThan(frozen) {
		return fmt.Errorf("%w: %s %s frozen, release of %s requested", ErrFrozenAmountMismatch, frozen, asset, amount)
	}
	if dest == Return {
		if err := w.CreditAsset(asset, amount); err != nil {
			return err
		}
	}
	w.setFrozen(asset, frozen.Sub(amount))
	return nil
}

// Overrides describes an administrative rewrite of wallet balances. Nil
// fields are left untouched; a nil Holdings slice keeps the current holdings.
type Overrides struct {
	SpotWallet       *decimal.Decimal
	FuturesWallet    *decimal.Decimal
	PerpetualsWallet *decimal.Decimal
	Holdings         []Holding
}

// Override applies o as a single change-set and reports whether anything changed.
func (w *Wallet) Override(o Overrides) (bool, error) {
	for _, v := range []*decimal.Decimal{o.SpotWallet, o.FuturesWallet, o.PerpetualsWallet} {
		if v != nil {
			if err := checkAmount(*v); err != nil {
				return false, err
			}
		}
	}
	seen := make(map[string]struct{}, len(o.Holdings))
	for _, h := range o.Holdings {
		if err := checkHoldingAsset(h.Asset); err != nil {
			return false, err
		}
		if err := checkAmount(h.Quantity); err != nil {
			return false, err
		}
		if _, dup := seen[h.Asset]; dup {
			return false, fmt.Errorf("%w: %q listed twice", ErrUnsupportedAsset, h.Asset)
		}
		seen[h.Asset] = struct{}{}
	}

	var cs ChangeBuckets
	if o.SpotWallet != nil && !o.SpotWallet.Equal(w.SpotWallet) {
		w.setBalance(Spot, *o.SpotWallet, &cs)
	}
	if o.FuturesWallet != nil && !o.FuturesWallet.Equal(w.FuturesWallet) {
		w.setBalance(Futures, *o.FuturesWallet, &cs)
	}
	if o.PerpetualsWallet != nil && !o.PerpetualsWallet.Equal(w.PerpetualsWallet) {
		w.setBalance(Perpetuals, *o.PerpetualsWallet, &cs)
	}
	if o.Holdings != nil {
		for _, h := range w.Holdings {
			if _, kept := seen[h.Asset]; !kept {
				w.setHolding(h.Asset, decimal.Zero, &cs)
			}
		}
		for _, h := range o.Holdings {
			if !h.Quantity.Equal(w.Holding(h.Asset)) {
				w.setHolding(h.Asset, h.Quantity, &cs)
			}
		}
	}

	changed := len(cs.SpotWallet)+len(cs.FuturesWallet)+len(cs.PerpetualsWallet) > 0
	w.record(cs)
	return changed, nil
}

// AppendDeposit adds an entry to the deposit audit log.
func (w *Wallet) AppendDeposit(currency string, amount decimal.Decimal) {
	w.DepositHistory = append(w.DepositHistory, DepositEntry{Amount: amount, Currency: currency, CreatedAt: now()})
}

// AppendWithdrawal adds an entry to the withdrawal audit log.
func (w *Wallet) AppendWithdrawal(entry WithdrawalEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now()
	}
	w.WithdrawalHistory = append(w.WithdrawalHistory, entry)
}

func (w *Wallet) setBalance(sub SubAccount, value decimal.Decimal, cs *ChangeBuckets) {
	change := Change{Asset: QuoteAsset, OldValue: w.Balance(sub), NewValue: value}
	switch sub {
	case Futures:
		w.FuturesWallet = value
		cs.FuturesWallet = append(cs.FuturesWallet, change)
	case Perpetuals:
		w.PerpetualsWallet = value
		cs.PerpetualsWallet = append(cs.PerpetualsWallet, change)
	default:
		w.SpotWallet = value
		cs.SpotWallet = append(cs.SpotWallet, change)
	}
}

func (w *Wallet) setHolding(asset string, value decimal.Decimal, cs *ChangeBuckets) {
	cs.SpotWallet = append(cs.SpotWallet, Change{Asset: asset, OldValue: w.Holding(asset), NewValue: value})
	w.Holdings = upsert(w.Holdings, asset, value)
}

func (w *Wallet) setFrozen(asset string, value decimal.Decimal) {
	w.FrozenAssets = upsert(w.FrozenAssets, asset, value)
}

func (w *Wallet) record(cs ChangeBuckets) {
	if len(cs.SpotWallet)+len(cs.FuturesWallet)+len(cs.PerpetualsWallet) == 0 {
		return
	}
	w.WalletChangeHistory = append(w.WalletChangeHistory, ChangeSet{Changes: cs, Timestamp: now()})
}

// upsert sets the quantity of asset, dropping the entry at zero. The input
// slice is never written in place so clones stay independent.
func upsert(list []Holding, asset string, quantity decimal.Decimal) []Holding {
	out := make([]Holding, 0, len(list)+1)
	found := false
	for _, h := range list {
		if h.Asset == asset {
			found = true
			if !quantity.IsZero() {
				out = append(out, Holding{Asset: asset, Quantity: quantity})
			}
			continue
		}
		out = append(out, h)
	}
	if !found && !quantity.IsZero() {
		out = append(out, Holding{Asset: asset, Quantity: quantity})
	}
	return out
}
