package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/holdfolio/backend/src/models"
)

// Define common service errors
var (
	ErrParsingFailed      = errors.New("statement parsing failed")
	ErrUnsupportedBroker  = errors.New("unsupported broker")
	ErrStatementNotFound  = errors.New("statement not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

const (
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
	StatementHistoryLimit  = 50
)

// UploadRequest carries one decoded statement file.
type UploadRequest struct {
	UserID     string
	AccountID  *int64
	Filename   string
	BrokerCode string // optional; detected from content and filename when empty
	Content    string
}

// InstrumentResolver maps (symbol, exchange) to a stable instrument id, creating
// the instrument on first sight.
type InstrumentResolver interface {
	ResolveInstrument(ctx context.Context, symbol, exchange string) (int64, error)
}

// UploadService drives statement imports and their history.
type UploadService interface {
	ProcessUpload(ctx context.Context, req UploadRequest) (*models.ImportSummary, error)
	GetStatements(ctx context.Context, userID string) ([]models.Statement, error)
	GetStatementErrors(ctx context.Context, userID string, statementID int64) ([]models.ImportError, error)
	DeleteStatement(ctx context.Context, userID string, statementID int64) error
}

// LedgerService owns transactions and the holdings derived from them.
type LedgerService interface {
	// RecomputeHolding rebuilds one holding from the full transaction history.
	// It returns nil when the position is closed and the holding was removed.
	RecomputeHolding(ctx context.Context, key models.PositionKey) (*models.Holding, error)
	RecomputePositions(ctx context.Context, keys []models.PositionKey) error
	RecomputeUser(ctx context.Context, userID string) (int, error)
	RecordTransaction(ctx context.Context, userID string, req models.ManualTransactionRequest) (*models.CanonicalTransaction, error)
	GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
	GetHoldings(ctx context.Context, userID string) ([]models.HoldingView, error)
	RefreshPrices(ctx context.Context, userID string) (int, error)
	InvalidateUserCache(userID string)
}

// PriceService provides end-of-day closes.
type PriceService interface {
	// GetLatestClose returns zero when no close is known.
	GetLatestClose(ctx context.Context, instrumentID int64) (decimal.Decimal, error)
	RefreshClosePrices(ctx context.Context, instruments []models.Instrument) (int, error)
}
