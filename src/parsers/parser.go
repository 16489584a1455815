package parsers

import (
	"context"

	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers/normalize"
)

// Parser turns the text of one broker statement into canonical transactions.
// A returned error means the file as a whole could not be read; row problems
// are reported in the result instead.
type Parser interface {
	BrokerCode() string
	Parse(ctx context.Context, content string, resolver normalize.InstrumentResolver) (*models.ParseResult, error)
}
