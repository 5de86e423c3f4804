package funding

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RequestType distinguishes deposit and withdraw requests.
type RequestType string

const (
	TypeDeposit  RequestType = "deposit"
	TypeWithdraw RequestType = "withdraw"
)

// Status is the lifecycle state of a request. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// DefaultRejectNote is stored when an administrator rejects without a note.
const DefaultRejectNote = "Request rejected by admin"

// ErrWrongRequestType is returned when an approval targets the other request type.
var ErrWrongRequestType = errors.New("wrong request type")

// requestCurrencies lists the currencies accepted for deposit and withdraw requests.
var requestCurrencies = map[string]struct{}{"USDT": {}, "BTC": {}, "ETH": {}}

// Request is a user-initiated deposit or withdraw awaiting administrator review.
type Request struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Type          RequestType     `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Network       string          `json:"network"`
	WalletAddress string          `json:"walletAddress"`
	Status        Status          `json:"status"`
	AdminNote     string          `json:"adminNote,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Version       int64           `json:"-"`
}

// RequestFilter narrows request listings. Empty fields match everything.
type RequestFilter struct {
	UserID string
	Status Status
}

// TransactionType classifies ledger-visible transactions.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxTransfer   TransactionType = "transfer"
	TxSwap       TransactionType = "swap"
)

// TransactionStatus is the outcome of a transaction.
type TransactionStatus string

const TxCompleted TransactionStatus = "completed"

// Transaction records a completed balance movement. TransactionID is unique
// per user and doubles as the client idempotency key.
type Transaction struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency,omitempty"`
	FromAsset     string            `json:"fromAsset,omitempty"`
	ToAsset       string            `json:"toAsset,omitempty"`
	FromAmount    decimal.Decimal   `json:"fromAmount"`
	ToAmount      decimal.Decimal   `json:"toAmount"`
	ExchangeRate  decimal.Decimal   `json:"exchangeRate"`
	TransactionID string            `json:"transactionId"`
	CreatedAt     time.Time         `json:"createdAt"`
}
