package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is a tradable security identified by symbol and exchange.
type Instrument struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PositionKey identifies one holding. A nil AccountID is the user's unassigned bucket.
type PositionKey struct {
	UserID       string
	AccountID    *int64
	InstrumentID int64
}

// Holding is the derived position for a PositionKey.
type Holding struct {
	UserID       string          `json:"user_id"`
	AccountID    *int64          `json:"account_id"`
	InstrumentID int64           `json:"instrument_id"`
	Quantity     decimal.Decimal `json:"qty"`
	AverageCost  decimal.Decimal `json:"avg_cost"`
	MarketValue  decimal.Decimal `json:"market_value"`
	LastPrice    decimal.Decimal `json:"last_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Key returns the position key of the holding.
func (h Holding) Key() PositionKey {
	return PositionKey{UserID: h.UserID, AccountID: h.AccountID, InstrumentID: h.InstrumentID}
}

// HoldingView is a holding joined with its instrument for display.
type HoldingView struct {
	Holding
	Symbol             string          `json:"symbol"`
	Exchange           string          `json:"exchange"`
	Name               string          `json:"name"`
	Currency           string          `json:"currency"`
	CostBasis          decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL      decimal.Decimal `json:"unrealized_pnl"`
	MarketValueDisplay string          `json:"market_value_display"`
	CostBasisDisplay   string          `json:"cost_basis_display"`
}

// ClosePrice is an end-of-day price for an instrument.
type ClosePrice struct {
	InstrumentID int64           `json:"instrument_id"`
	Date         string          `json:"date"` // YYYY-MM-DD
	Close        decimal.Decimal `json:"close"`
	Currency     string          `json:"currency"`
}
