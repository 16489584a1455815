package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/model"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers/normalize"
)

const ckInstrumentID = "instrument_id_%s_%s"

const instrumentStatusActive = "active"

type instrumentResolverImpl struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewInstrumentResolver(db *sql.DB, idCache *cache.Cache) InstrumentResolver {
	return &instrumentResolverImpl{db: db, cache: idCache}
}

var _ normalize.InstrumentResolver = (*instrumentResolverImpl)(nil)

// ResolveInstrument looks the instrument up and creates it when missing.
// Instruments are never deleted, so resolved ids are cached without expiry.
func (r *instrumentResolverImpl) ResolveInstrument(ctx context.Context, symbol, exchange string) (int64, error) {
	symbol = normalize.NormalizeSymbol(symbol)
	exchange = normalize.NormalizeSymbol(exchange)
	if exchange == "" {
		exchange = models.DefaultExchange
	}
	if symbol == "" {
		return 0, errors.New("empty symbol")
	}

	cacheKey := fmt.Sprintf(ckInstrumentID, exchange, symbol)
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.(int64), nil
	}

	inst, err := model.GetInstrumentBySymbol(ctx, r.db, symbol, exchange)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		inst, err = r.create(ctx, symbol, exchange)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("looking up instrument %s on %s: %w", symbol, exchange, err)
	}

	r.cache.Set(cacheKey, inst.ID, cache.NoExpiration)
	return inst.ID, nil
}

// create inserts a new instrument. Losing a creation race to another import
// surfaces as a unique constraint error, which is settled by re-reading.
func (r *instrumentResolverImpl) create(ctx context.Context, symbol, exchange string) (*models.Instrument, error) {
	inst := &models.Instrument{
		Symbol:   symbol,
		Exchange: exchange,
		Name:     symbol,
		Currency: models.DefaultCurrency,
		Status:   instrumentStatusActive,
	}
	err := model.InsertInstrument(ctx, r.db, inst)
	if err == nil {
		logger.FromContext(ctx).Info("Created instrument", "symbol", symbol, "exchange", exchange, "instrumentID", inst.ID)
		return inst, nil
	}
	if !model.IsUniqueConstraintError(err) {
		return nil, fmt.Errorf("creating instrument %s on %s: %w", symbol, exchange, err)
	}

	logger.FromContext(ctx).Debug("Instrument created concurrently, re-reading", "symbol", symbol, "exchange", exchange)
	existing, err := model.GetInstrumentBySymbol(ctx, r.db, symbol, exchange)
	if err != nil {
		return nil, fmt.Errorf("re-reading instrument %s on %s: %w", symbol, exchange, err)
	}
	return existing, nil
}
