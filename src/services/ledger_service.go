package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/model"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers/normalize"
	"github.com/username/holdfolio/backend/src/processors"
	"github.com/username/holdfolio/backend/src/utils"
)

const ckHoldings = "res_holdings_user_%s"

type ledgerServiceImpl struct {
	db                *sql.DB
	resolver          InstrumentResolver
	priceService      PriceService
	positionProcessor *processors.PositionProcessor
	reportCache       *cache.Cache
}

func NewLedgerService(
	db *sql.DB,
	resolver InstrumentResolver,
	priceService PriceService,
	positionProcessor *processors.PositionProcessor,
	reportCache *cache.Cache,
) LedgerService {
	return &ledgerServiceImpl{
		db:                db,
		resolver:          resolver,
		priceService:      priceService,
		positionProcessor: positionProcessor,
		reportCache:       reportCache,
	}
}

func (l *ledgerServiceImpl) RecomputeHolding(ctx context.Context, key models.PositionKey) (*models.Holding, error) {
	// The price is read before the transaction starts; the pool has a single
	// connection and the price lookup needs it.
	price, err := l.priceService.GetLatestClose(ctx, key.InstrumentID)
	if err != nil {
		logger.FromContext(ctx).Warn("Recomputing holding without a price", "instrumentID", key.InstrumentID, "error", err)
		price = decimal.Zero
	}

	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	txs, err := model.GetPositionTransactions(ctx, dbTx, key)
	if err != nil {
		return nil, fmt.Errorf("loading transactions of instrument %d: %w", key.InstrumentID, err)
	}
	pos := l.positionProcessor.Calculate(txs)

	var holding *models.Holding
	if !pos.Open() {
		if err := model.DeleteHolding(ctx, dbTx, key); err != nil {
			return nil, fmt.Errorf("removing closed holding of instrument %d: %w", key.InstrumentID, err)
		}
	} else {
		holding = &models.Holding{
			UserID:       key.UserID,
			AccountID:    key.AccountID,
			InstrumentID: key.InstrumentID,
			Quantity:     pos.Quantity,
			AverageCost:  pos.AverageCost,
			LastPrice:    price,
			MarketValue:  pos.MarketValue(price),
		}
		if err := model.UpsertHolding(ctx, dbTx, *holding); err != nil {
			return nil, fmt.Errorf("saving holding of instrument %d: %w", key.InstrumentID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing holding: %w", err)
	}
	l.InvalidateUserCache(key.UserID)

	logger.FromContext(ctx).Debug("Holding recomputed", "userID", key.UserID, "instrumentID", key.InstrumentID,
		"qty", pos.Quantity.String(), "avgCost", pos.AverageCost.String(), "open", holding != nil)
	return holding, nil
}

// RecomputePositions rebuilds each position in instrument order. A failing
// position does not stop the others; all failures are returned together.
func (l *ledgerServiceImpl) RecomputePositions(ctx context.Context, keys []models.PositionKey) error {
	sorted := append([]models.PositionKey(nil), keys...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].InstrumentID != sorted[j].InstrumentID {
			return sorted[i].InstrumentID < sorted[j].InstrumentID
		}
		return accountOrder(sorted[i].AccountID) < accountOrder(sorted[j].AccountID)
	})

	var errs []error
	for _, key := range sorted {
		if _, err := l.RecomputeHolding(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func accountOrder(id *int64) int64 {
	if id == nil {
		return -1
	}
	return *id
}

// RecomputeUser rebuilds every position of the user, including holdings whose
// transactions are all gone. It returns the number of positions visited.
func (l *ledgerServiceImpl) RecomputeUser(ctx context.Context, userID string) (int, error) {
	keys, err := model.GetPositionKeysByUser(ctx, l.db, userID)
	if err != nil {
		return 0, fmt.Errorf("listing positions: %w", err)
	}
	existing, err := model.GetHoldingsByUser(ctx, l.db, userID)
	if err != nil {
		return 0, fmt.Errorf("listing holdings: %w", err)
	}

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[positionID(k)] = true
	}
	for _, h := range existing {
		if k := h.Key(); !seen[positionID(k)] {
			seen[positionID(k)] = true
			keys = append(keys, k)
		}
	}

	if err := l.RecomputePositions(ctx, keys); err != nil {
		return len(keys), err
	}
	logger.FromContext(ctx).Info("Recomputed user holdings", "userID", userID, "positions", len(keys))
	return len(keys), nil
}

func positionID(k models.PositionKey) string {
	return fmt.Sprintf("%d/%d", accountOrder(k.AccountID), k.InstrumentID)
}

// RecordTransaction validates a hand-entered trade with the same rules as
// statement rows, stores it and refreshes the affected holding.
func (l *ledgerServiceImpl) RecordTransaction(ctx context.Context, userID string, req models.ManualTransactionRequest) (*models.CanonicalTransaction, error) {
	tx, err := normalize.Validate(normalize.Fields{
		Symbol:    req.Symbol,
		TradeDate: req.TradeDate,
		Exchange:  req.Exchange,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Fees:      req.Fees,
	}, normalize.ExactSide)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	tx.InstrumentID, err = l.resolver.ResolveInstrument(ctx, tx.Symbol, tx.Exchange)
	if err != nil {
		return nil, fmt.Errorf("resolving instrument %s: %w", tx.Symbol, err)
	}
	tx.Source = models.SourceManual

	dbTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()
	if _, err := model.InsertTransactions(ctx, dbTx, userID, req.AccountID, nil, []models.CanonicalTransaction{tx}); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	key := models.PositionKey{UserID: userID, AccountID: req.AccountID, InstrumentID: tx.InstrumentID}
	if _, err := l.RecomputeHolding(ctx, key); err != nil {
		logger.FromContext(ctx).Error("Failed to recompute holding after manual entry", "userID", userID, "instrumentID", tx.InstrumentID, "error", err)
	}
	return &tx, nil
}

func (l *ledgerServiceImpl) GetTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	txs, err := model.GetTransactionsByUser(ctx, l.db, userID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return txs, nil
}

// GetHoldings returns the user's holdings with cost basis, unrealized P&L and
// display strings. Results are cached until the next recompute.
func (l *ledgerServiceImpl) GetHoldings(ctx context.Context, userID string) ([]models.HoldingView, error) {
	cacheKey := fmt.Sprintf(ckHoldings, userID)
	if cached, found := l.reportCache.Get(cacheKey); found {
		return cached.([]models.HoldingView), nil
	}

	views, err := model.GetHoldingsByUser(ctx, l.db, userID)
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}
	if views == nil {
		views = []models.HoldingView{}
	}
	for i := range views {
		v := &views[i]
		v.CostBasis = v.Quantity.Mul(v.AverageCost)
		v.UnrealizedPnL = decimal.Zero
		if v.LastPrice.IsPositive() {
			v.UnrealizedPnL = v.MarketValue.Sub(v.CostBasis)
		}
		v.MarketValueDisplay = utils.FormatMoney(v.MarketValue, v.Currency)
		v.CostBasisDisplay = utils.FormatMoney(v.CostBasis, v.Currency)
	}

	l.reportCache.Set(cacheKey, views, cache.DefaultExpiration)
	return views, nil
}

// RefreshPrices fetches closes for every instrument the user holds and then
// revalues the holdings. It returns the number of closes stored.
func (l *ledgerServiceImpl) RefreshPrices(ctx context.Context, userID string) (int, error) {
	views, err := model.GetHoldingsByUser(ctx, l.db, userID)
	if err != nil {
		return 0, fmt.Errorf("listing holdings: %w", err)
	}

	ids := make([]int64, 0, len(views))
	seen := make(map[int64]bool, len(views))
	for _, v := range views {
		if !seen[v.InstrumentID] {
			seen[v.InstrumentID] = true
			ids = append(ids, v.InstrumentID)
		}
	}
	byID, err := model.GetInstrumentsByIDs(ctx, l.db, ids)
	if err != nil {
		return 0, fmt.Errorf("loading instruments: %w", err)
	}
	instruments := make([]models.Instrument, 0, len(ids))
	for _, id := range ids {
		if inst, ok := byID[id]; ok {
			instruments = append(instruments, inst)
		}
	}

	stored, err := l.priceService.RefreshClosePrices(ctx, instruments)
	if err != nil {
		return stored, err
	}
	if _, err := l.RecomputeUser(ctx, userID); err != nil {
		return stored, err
	}
	return stored, nil
}

func (l *ledgerServiceImpl) InvalidateUserCache(userID string) {
	l.reportCache.Delete(fmt.Sprintf(ckHoldings, userID))
}
