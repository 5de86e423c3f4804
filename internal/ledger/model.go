package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteAsset is the currency the three sub-wallets are denominated in.
const QuoteAsset = "USDT"

// SubAccount names one of the three quote-denominated balance pools of a wallet.
type SubAccount string

const (
	Spot       SubAccount = "spot"
	Futures    SubAccount = "futures"
	Perpetuals SubAccount = "perpetuals"
)

// Valid reports whether s is one of the known sub-accounts.
func (s SubAccount) Valid() bool {
	switch s {
	case Spot, Futures, Perpetuals:
		return true
	}
	return false
}

// Holding is a quantity of a single asset.
type Holding struct {
	Asset    string          `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Change records one balance transition inside a change-set.
type Change struct {
	Asset    string          `json:"asset"`
	OldValue decimal.Decimal `json:"oldValue"`
	NewValue decimal.Decimal `json:"newValue"`
}

// ChangeBuckets groups changes by the sub-wallet they are attributed to.
// Holdings movements are attributed to the spot bucket.
type ChangeBuckets struct {
	SpotWallet       []Change `json:"spotWallet"`
	FuturesWallet    []Change `json:"futuresWallet"`
	PerpetualsWallet []Change `json:"perpetualsWallet"`
}

// ChangeSet is one entry of the wallet change history.
type ChangeSet struct {
	Changes   ChangeBuckets `json:"changes"`
	Timestamp time.Time     `json:"timestamp"`
}

// DepositEntry is an append-only deposit audit record.
type DepositEntry struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"createdAt"`
}

// WithdrawalEntry is an append-only withdrawal audit record.
type WithdrawalEntry struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Network       string          `json:"network"`
	WalletAddress string          `json:"walletAddress"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TransferEntry is an append-only record of a move between sub-wallets.
type TransferEntry struct {
	From      SubAccount      `json:"fromWallet"`
	To        SubAccount      `json:"toWallet"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Wallet holds every balance of a single user. It is persisted as one document
// and guarded by Version for compare-and-set updates.
type Wallet struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"userId"`
	Version             int64             `json:"version"`
	SpotWallet          decimal.Decimal   `json:"spotWallet"`
	FuturesWallet       decimal.Decimal   `json:"futuresWallet"`
	PerpetualsWallet    decimal.Decimal   `json:"perpetualsWallet"`
	Holdings            []Holding         `json:"holdings"`
	FrozenAssets        []Holding         `json:"frozenAssets"`
	DepositHistory      []DepositEntry    `json:"depositHistory"`
	WithdrawalHistory   []WithdrawalEntry `json:"withdrawalHistory"`
	TransferHistory     []TransferEntry   `json:"transferHistory"`
	WalletChangeHistory []ChangeSet       `json:"walletChangeHistory"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so that a failed mutation never leaks into the original.
func (w Wallet) Clone() Wallet {
	c := w
	c.Holdings = append([]Holding(nil), w.Holdings...)
	c.FrozenAssets = append([]Holding(nil), w.FrozenAssets...)
	c.DepositHistory = append([]DepositEntry(nil), w.DepositHistory...)
	c.WithdrawalHistory = append([]WithdrawalEntry(nil), w.WithdrawalHistory...)
	c.TransferHistory = append([]TransferEntry(nil), w.TransferHistory...)
	c.WalletChangeHistory = make([]ChangeSet, len(w.WalletChangeHistory))
	for i, cs := range w.WalletChangeHistory {
		c.WalletChangeHistory[i] = ChangeSet{
			Changes: ChangeBuckets{
				SpotWallet:       append([]Change(nil), cs.Changes.SpotWallet...),
				FuturesWallet:    append([]Change(nil), cs.Changes.FuturesWallet...),
				PerpetualsWallet: append([]Change(nil), cs.Changes.PerpetualsWallet...),
			},
			Timestamp: cs.Timestamp,
		}
	}
	return c
}

// Balance returns the balance of a sub-account.
func (w *Wallet) Balance(sub SubAccount) decimal.Decimal {
	switch sub {
	case Futures:
		return w.FuturesWallet
	case Perpetuals:
		return w.PerpetualsWallet
	default:
		return w.SpotWallet
	}
}

// Holding returns the held quantity of asset, zero when absent.
func (w *Wallet) Holding(asset string) decimal.Decimal {
	if i := indexOf(w.Holdings, asset); i >= 0 {
		return w.Holdings[i].Quantity
	}
	return decimal.Zero
}

// Frozen returns the escrowed quantity of asset, zero when absent.
func (w *Wallet) Frozen(asset string) decimal.Decimal {
	if i := indexOf(w.FrozenAssets, asset); i >= 0 {
		return w.FrozenAssets[i].Quantity
	}
	return decimal.Zero
}

// Available returns the spendable amount of asset: the spot balance for the
// quote asset, the holding otherwise.
func (w *Wallet) Available(asset string) decimal.Decimal {
	if asset == QuoteAsset {
		return w.SpotWallet
	}
	return w.Holding(asset)
}

func indexOf(list []Holding, asset string) int {
	for i, h := range list {
		if h.Asset == asset {
			return i
		}
	}
	return -1
}
