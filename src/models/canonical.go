package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Source tags where a transaction came from.
type Source string

const (
	SourceZerodhaImport Source = "zerodha_import"
	SourceGenericImport Source = "generic_import"
	SourceManual        Source = "manual"
)

// DefaultExchange is used when a row or request does not name an exchange.
const DefaultExchange = "NSE"

// DefaultCurrency is the currency assigned to lazily created instruments.
const DefaultCurrency = "INR"

// RawRow is one non-empty physical line of a CSV file split into trimmed fields.
type RawRow struct {
	Line   int
	Fields []string
}

// CanonicalTransaction is the broker-agnostic trade produced by a statement parser.
// Quantity and Price are always positive, Fees is never negative and TradeDate
// is formatted as YYYY-MM-DD.
type CanonicalTransaction struct {
	InstrumentID int64           `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	Exchange     string          `json:"exchange"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	Fees         decimal.Decimal `json:"fees"`
	TradeDate    string          `json:"trade_date"`
	Source       Source          `json:"source"`
	RowNumber    int             `json:"row_number"`
}

// ImportError reports why a single statement row was rejected.
type ImportError struct {
	RowNumber int    `json:"row_number"`
	Message   string `json:"message"`
}

func (e ImportError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.RowNumber, e.Message)
}
