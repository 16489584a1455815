// Package zerodha parses Zerodha tradebook exports, which use fixed column positions.
package zerodha

import (
	"context"
	"fmt"

	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers/csvrow"
	"github.com/username/holdfolio/backend/src/parsers/normalize"
)

// BrokerCode identifies this format on statements.
const BrokerCode = "zerodha"

const (
	colSymbol   = 0
	colDate     = 2
	colExchange = 3
	colSide     = 6
	colQuantity = 7
	colPrice    = 8
	minColumns  = 9
)

// Parser implements parsers.Parser for Zerodha files.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) BrokerCode() string { return BrokerCode }

// Parse skips the header row and normalises every data row by position.
func (p *Parser) Parse(ctx context.Context, content string, resolver normalize.InstrumentResolver) (*models.ParseResult, error) {
	if _, ok := csvrow.Header(content); !ok {
		return nil, csvrow.ErrEmptyFile
	}
	result := normalize.Rows(ctx, csvrow.DataRows(content), rules, resolver)
	result.BrokerCode = BrokerCode
	return result, nil
}

var rules = normalize.Rules{
	Source:  models.SourceZerodhaImport,
	Extract: extract,
	Side:    normalize.ExactSide,
}

func extract(row models.RawRow) (normalize.Fields, error) {
	if len(row.Fields) < minColumns {
		return normalize.Fields{}, fmt.Errorf("Insufficient columns (expected %d+, got %d)", minColumns, len(row.Fields))
	}
	return normalize.Fields{
		Symbol:    row.Fields[colSymbol],
		TradeDate: row.Fields[colDate],
		Exchange:  row.Fields[colExchange],
		Side:      row.Fields[colSide],
		Quantity:  row.Fields[colQuantity],
		Price:     row.Fields[colPrice],
	}, nil
}
