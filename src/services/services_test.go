package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/username/holdfolio/backend/src/database"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/processors"
)

const tradebookHeader = "Symbol,ISIN,Trade Date,Exchange,Segment,Series,Trade Type,Quantity,Price,Order ID,Trade ID\n"

type MockPriceService struct {
	mock.Mock
}

func (m *MockPriceService) GetLatestClose(ctx context.Context, instrumentID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, instrumentID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPriceService) RefreshClosePrices(ctx context.Context, instruments []models.Instrument) (int, error) {
	args := m.Called(ctx, instruments)
	return args.Int(0), args.Error(1)
}

// unpricedFeed knows no closes.
func unpricedFeed() *MockPriceService {
	prices := new(MockPriceService)
	prices.On("GetLatestClose", mock.Anything, mock.Anything).Return(decimal.Zero, nil).Maybe()
	return prices
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

type testServices struct {
	db       *sql.DB
	resolver InstrumentResolver
	ledger   LedgerService
	upload   UploadService
}

func newTestServices(t *testing.T, prices PriceService) testServices {
	t.Helper()
	db := newTestDB(t)
	resolver := NewInstrumentResolver(db, cache.New(cache.NoExpiration, 0))
	return wireServices(db, resolver, prices)
}

func wireServices(db *sql.DB, resolver InstrumentResolver, prices PriceService) testServices {
	ledger := NewLedgerService(db, resolver, prices, processors.NewPositionProcessor(), cache.New(DefaultCacheExpiration, CacheCleanupInterval))
	return testServices{
		db:       db,
		resolver: resolver,
		ledger:   ledger,
		upload:   NewUploadService(db, resolver, ledger),
	}
}

func holdingBySymbol(t *testing.T, views []models.HoldingView, symbol string) models.HoldingView {
	t.Helper()
	for _, v := range views {
		if v.Symbol == symbol {
			return v
		}
	}
	t.Fatalf("no holding for %s", symbol)
	return models.HoldingView{}
}
