package funding

import "github.com/shopspring/decimal"

// WithdrawRequest captures a user's withdraw submission.
type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,oneof=USDT BTC ETH"`
	Network       string          `json:"network" validate:"required,max=32"`
	WalletAddress string          `json:"walletAddress" validate:"required,max=128"`
}

// DepositRequest captures a user's deposit notice.
type DepositRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,oneof=USDT BTC ETH"`
	Network       string          `json:"network" validate:"omitempty,max=32"`
	WalletAddress string          `json:"walletAddress" validate:"omitempty,max=128"`
}

// RejectRequest carries the optional administrator note.
type RejectRequest struct {
	Note string `json:"note" validate:"max=512"`
}

// AddTokensRequest is an administrator's direct credit.
type AddTokensRequest struct {
	UserID string          `json:"userId" validate:"required"`
	Asset  string          `json:"asset" validate:"required,uppercase"`
	Amount decimal.Decimal `json:"amount"`
}

// SwapRequest converts one asset into another at a client-quoted rate.
type SwapRequest struct {
	FromAsset    string          `json:"fromAsset" validate:"required,uppercase"`
	ToAsset      string          `json:"toAsset" validate:"required,uppercase,nefield=FromAsset"`
	Amount       decimal.Decimal `json:"amount"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	ClientTxID   string          `json:"clientTxId" validate:"omitempty,max=64"`
}

// TransferRequest moves quote balance between two of the caller's sub-wallets.
type TransferRequest struct {
	FromWallet string          `json:"fromWallet" validate:"required,oneof=spot futures perpetuals"`
	ToWallet   string          `json:"toWallet" validate:"required,oneof=spot futures perpetuals,nefield=FromWallet"`
	Amount     decimal.Decimal `json:"amount"`
	ClientTxID string          `json:"clientTxId" validate:"omitempty,max=64"`
}
