// Package generic parses broker exports whose columns are found by header name.
package generic

import (
	"context"

	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers/csvrow"
	"github.com/username/holdfolio/backend/src/parsers/normalize"
)

// BrokerCode identifies this format on statements.
const BrokerCode = "generic"

// Parser implements parsers.Parser for header-mapped CSV files.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) BrokerCode() string { return BrokerCode }

// Parse maps the header row once and then normalises every data row.
// A header that lacks any required column fails the whole file.
func (p *Parser) Parse(ctx context.Context, content string, resolver normalize.InstrumentResolver) (*models.ParseResult, error) {
	header, ok := csvrow.Header(content)
	if !ok {
		return nil, csvrow.ErrEmptyFile
	}
	columns, err := csvrow.RequireColumns(header.Fields)
	if err != nil {
		return nil, err
	}

	rules := normalize.Rules{
		Source: models.SourceGenericImport,
		Extract: func(row models.RawRow) (normalize.Fields, error) {
			return normalize.Fields{
				Symbol:    normalize.Cell(row.Fields, columns.Symbol),
				TradeDate: normalize.Cell(row.Fields, columns.Date),
				Side:      normalize.Cell(row.Fields, columns.Side),
				Quantity:  normalize.Cell(row.Fields, columns.Quantity),
				Price:     normalize.Cell(row.Fields, columns.Price),
			}, nil
		},
		Side: normalize.ContainsSide,
	}

	result := normalize.Rows(ctx, csvrow.DataRows(content), rules, resolver)
	result.BrokerCode = BrokerCode
	return result, nil
}
