package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a trade as stored in the ledger.
type Transaction struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	AccountID    *int64          `json:"account_id"`
	InstrumentID int64           `json:"instrument_id"`
	Symbol       string          `json:"symbol,omitempty"`
	Exchange     string          `json:"exchange,omitempty"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	Fees         decimal.Decimal `json:"fees"`
	TradeDate    string          `json:"trade_date"`
	Source       Source          `json:"source"`
	ImportID     *int64          `json:"import_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ManualTransactionRequest is the body accepted for a hand-entered trade.
// Numeric fields are strings so they go through the same validation as statement cells.
type ManualTransactionRequest struct {
	AccountID *int64 `json:"account_id"`
	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Side      string `json:"side"`
	Quantity  string `json:"qty"`
	Price     string `json:"price"`
	Fees      string `json:"fees"`
	TradeDate string `json:"trade_date"`
}
