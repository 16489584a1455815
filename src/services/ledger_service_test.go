package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/username/holdfolio/backend/src/models"
)

func record(t *testing.T, l LedgerService, side, qty, price string) *models.CanonicalTransaction {
	t.Helper()
	tx, err := l.RecordTransaction(context.Background(), "u1", models.ManualTransactionRequest{
		Symbol: "INFY", Side: side, Quantity: qty, Price: price, TradeDate: "2025-08-12",
	})
	require.NoError(t, err)
	return tx
}

func TestLedger_AverageCostAndSell(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, unpricedFeed())

	record(t, s.ledger, "BUY", "10", "100")
	tx := record(t, s.ledger, "BUY", "10", "200")
	assert.Equal(t, models.SourceManual, tx.Source)
	assert.Equal(t, "NSE", tx.Exchange)

	holdings, err := s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "20", holdings[0].Quantity.String())
	assert.Equal(t, "150", holdings[0].AverageCost.String())

	record(t, s.ledger, "SELL", "5", "300")
	holdings, err = s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "15", holdings[0].Quantity.String())
	assert.Equal(t, "100", holdings[0].AverageCost.String())
}

func TestLedger_RecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, unpricedFeed())
	tx := record(t, s.ledger, "BUY", "7", "1840.50")
	record(t, s.ledger, "BUY", "3", "1790")
	key := models.PositionKey{UserID: "u1", InstrumentID: tx.InstrumentID}

	first, err := s.ledger.RecomputeHolding(ctx, key)
	require.NoError(t, err)
	second, err := s.ledger.RecomputeHolding(ctx, key)
	require.NoError(t, err)

	require.NotNil(t, first)
	assert.True(t, first.Quantity.Equal(second.Quantity))
	assert.True(t, first.AverageCost.Equal(second.AverageCost))
	assert.Equal(t, "1825.35", second.AverageCost.String())

	holdings, err := s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, holdings, 1)
}

func TestLedger_ClosedPositionRemovesHolding(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, unpricedFeed())
	record(t, s.ledger, "BUY", "3", "1840.50")
	tx := record(t, s.ledger, "SELL", "3", "1900")

	holding, err := s.ledger.RecomputeHolding(ctx, models.PositionKey{UserID: "u1", InstrumentID: tx.InstrumentID})
	require.NoError(t, err)
	assert.Nil(t, holding)

	holdings, err := s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestLedger_MarketValueUsesLatestClose(t *testing.T) {
	ctx := context.Background()
	prices := new(MockPriceService)
	prices.On("GetLatestClose", mock.Anything, mock.Anything).Return(decimal.NewFromInt(310), nil)
	s := newTestServices(t, prices)

	record(t, s.ledger, "BUY", "15", "300")

	holdings, err := s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.Equal(t, "4650", h.MarketValue.String())
	assert.Equal(t, "310", h.LastPrice.String())
	assert.Equal(t, "4500", h.CostBasis.String())
	assert.Equal(t, "150", h.UnrealizedPnL.String())
	assert.Equal(t, "₹4,650.00", h.MarketValueDisplay)
	assert.Equal(t, "₹4,500.00", h.CostBasisDisplay)
	prices.AssertExpectations(t)
}

func TestLedger_PriceLookupFailureStillRecomputes(t *testing.T) {
	prices := new(MockPriceService)
	prices.On("GetLatestClose", mock.Anything, mock.Anything).Return(decimal.Zero, errors.New("feed down"))
	s := newTestServices(t, prices)

	record(t, s.ledger, "BUY", "2", "50")

	holdings, err := s.ledger.GetHoldings(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, holdings[0].MarketValue.IsZero())
	assert.True(t, holdings[0].UnrealizedPnL.IsZero())
}

func TestLedger_AccountsAreSeparatePositions(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, unpricedFeed())
	account := int64(3)

	record(t, s.ledger, "BUY", "4", "100")
	_, err := s.ledger.RecordTransaction(ctx, "u1", models.ManualTransactionRequest{
		AccountID: &account, Symbol: "INFY", Side: "BUY", Quantity: "6", Price: "120", TradeDate: "2025-08-13",
	})
	require.NoError(t, err)

	holdings, err := s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 2)

	n, err := s.ledger.RecomputeUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLedger_RecordTransactionValidates(t *testing.T) {
	s := newTestServices(t, unpricedFeed())

	cases := []struct {
		req  models.ManualTransactionRequest
		want string
	}{
		{models.ManualTransactionRequest{Side: "BUY", Quantity: "1", Price: "1", TradeDate: "2025-08-12"}, "Missing symbol"},
		{models.ManualTransactionRequest{Symbol: "TCS", Side: "HOLD", Quantity: "1", Price: "1", TradeDate: "2025-08-12"}, "Invalid trade type 'HOLD'"},
		{models.ManualTransactionRequest{Symbol: "TCS", Side: "BUY", Quantity: "0", Price: "1", TradeDate: "2025-08-12"}, "Invalid quantity '0'"},
		{models.ManualTransactionRequest{Symbol: "TCS", Side: "BUY", Quantity: "1", Price: "1", Fees: "-2", TradeDate: "2025-08-12"}, "Invalid fees '-2'"},
		{models.ManualTransactionRequest{Symbol: "TCS", Side: "BUY", Quantity: "1", Price: "1", TradeDate: "yesterday"}, "Invalid date format 'yesterday'"},
	}
	for _, tc := range cases {
		_, err := s.ledger.RecordTransaction(context.Background(), "u1", tc.req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransaction))
		assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
	}

	txs, err := s.ledger.GetTransactions(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_RefreshPricesRevaluesHoldings(t *testing.T) {
	ctx := context.Background()
	prices := new(MockPriceService)
	s := newTestServices(t, prices)

	prices.On("GetLatestClose", mock.Anything, mock.Anything).Return(decimal.Zero, nil).Once()
	tx := record(t, s.ledger, "BUY", "2", "1800")

	prices.On("RefreshClosePrices", mock.Anything, mock.MatchedBy(func(insts []models.Instrument) bool {
		return len(insts) == 1 && insts[0].ID == tx.InstrumentID && insts[0].Symbol == "INFY"
	})).Return(1, nil).Once()
	prices.On("GetLatestClose", mock.Anything, tx.InstrumentID).Return(decimal.NewFromInt(1850), nil).Once()

	stored, err := s.ledger.RefreshPrices(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	holdings, err := s.ledger.GetHoldings(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "3700", holdings[0].MarketValue.String())
	prices.AssertExpectations(t)
}
