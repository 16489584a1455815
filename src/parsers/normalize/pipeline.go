// Package normalize validates statement rows and turns them into canonical transactions.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers/csvrow"
)

// InstrumentResolver maps a symbol on an exchange to a stable instrument id.
type InstrumentResolver interface {
	ResolveInstrument(ctx context.Context, symbol, exchange string) (int64, error)
}

// Fields are the raw cells a statement format extracted from one row.
type Fields struct {
	Symbol    string
	TradeDate string
	Exchange  string
	Side      string
	Quantity  string
	Price     string
	Fees      string
}

// SideFunc classifies a raw side cell.
type SideFunc func(raw string) (models.Side, error)

// Rules describe one statement format.
type Rules struct {
	Source  models.Source
	Extract func(row models.RawRow) (Fields, error)
	Side    SideFunc
}

// ExactSide accepts BUY or SELL, ignoring case and surrounding space.
func ExactSide(raw string) (models.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(models.SideBuy):
		return models.SideBuy, nil
	case string(models.SideSell):
		return models.SideSell, nil
	}
	return "", fmt.Errorf("Invalid trade type '%s'. Must be BUY or SELL", raw)
}

// ContainsSide accepts any value containing BUY or SELL. BUY is checked first.
func ContainsSide(raw string) (models.Side, error) {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, string(models.SideBuy)):
		return models.SideBuy, nil
	case strings.Contains(upper, string(models.SideSell)):
		return models.SideSell, nil
	}
	return "", fmt.Errorf("Invalid trade type '%s'. Must contain BUY or SELL", upper)
}

// Validate checks the fields of one row in a fixed order and stops at the
// first failure. The returned transaction has no instrument id yet.
func Validate(f Fields, side SideFunc) (models.CanonicalTransaction, error) {
	var tx models.CanonicalTransaction

	tx.Symbol = NormalizeSymbol(f.Symbol)
	if tx.Symbol == "" {
		return tx, errors.New("Missing symbol")
	}
	if strings.TrimSpace(f.TradeDate) == "" {
		return tx, errors.New("Missing trade date")
	}

	s, err := side(f.Side)
	if err != nil {
		return tx, err
	}
	tx.Side = s

	qty, ok := ParsePositive(f.Quantity)
	if !ok {
		return tx, fmt.Errorf("Invalid quantity '%s'", f.Quantity)
	}
	tx.Quantity = qty

	price, ok := ParsePositive(f.Price)
	if !ok {
		return tx, fmt.Errorf("Invalid price '%s'", f.Price)
	}
	tx.Price = price

	tx.Fees = decimal.Zero
	if strings.TrimSpace(f.Fees) != "" {
		fees, ok := ParseAmount(f.Fees)
		if !ok || fees.IsNegative() {
			return tx, fmt.Errorf("Invalid fees '%s'", f.Fees)
		}
		tx.Fees = fees
	}

	date, ok := ParseTradeDate(f.TradeDate)
	if !ok {
		return tx, fmt.Errorf("Invalid date format '%s'", f.TradeDate)
	}
	tx.TradeDate = date

	tx.Exchange = NormalizeSymbol(f.Exchange)
	if tx.Exchange == "" {
		tx.Exchange = models.DefaultExchange
	}
	return tx, nil
}

// Rows normalises every row, resolving instruments for the valid ones.
// A rejected row yields exactly one ImportError; processing always continues.
func Rows(ctx context.Context, rows iter.Seq[models.RawRow], rules Rules, resolver InstrumentResolver) *models.ParseResult {
	result := &models.ParseResult{}
	for row := range rows {
		if csvrow.IsBlank(row) {
			continue
		}
		tx, err := normalizeRow(ctx, row, rules, resolver)
		if err != nil {
			result.Errors = append(result.Errors, models.ImportError{RowNumber: row.Line, Message: err.Error()})
			continue
		}
		result.Transactions = append(result.Transactions, tx)
	}
	logger.FromContext(ctx).Debug("Rows normalised",
		"source", rules.Source, "transactions", len(result.Transactions), "errors", len(result.Errors))
	return result
}

func normalizeRow(ctx context.Context, row models.RawRow, rules Rules, resolver InstrumentResolver) (models.CanonicalTransaction, error) {
	fields, err := rules.Extract(row)
	if err != nil {
		return models.CanonicalTransaction{}, err
	}
	tx, err := Validate(fields, rules.Side)
	if err != nil {
		return tx, err
	}
	id, err := resolver.ResolveInstrument(ctx, tx.Symbol, tx.Exchange)
	if err != nil {
		return tx, fmt.Errorf("Could not resolve instrument %s: %v", tx.Symbol, err)
	}
	tx.InstrumentID = id
	tx.Source = rules.Source
	tx.RowNumber = row.Line
	return tx, nil
}

// Cell returns fields[i] or an empty string when the row is too short.
func Cell(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}
