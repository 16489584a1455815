package main

import (
	"database/sql"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/username/holdfolio/backend/src/config"
	"github.com/username/holdfolio/backend/src/database"
	"github.com/username/holdfolio/backend/src/processors"
	"github.com/username/holdfolio/backend/src/services"
)

// env is the set of services a command runs against.
type env struct {
	db     *sql.DB
	ledger services.LedgerService
	upload services.UploadService
}

func openEnv(path string) (*env, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return newEnv(db, services.NewPriceService(db, config.Cfg.PriceFeedBaseURL, config.Cfg.PriceFeedTimeout, config.Cfg.PriceFeedInterval)), nil
}

func newEnv(db *sql.DB, prices services.PriceService) *env {
	resolver := services.NewInstrumentResolver(db, cache.New(cache.NoExpiration, 0))
	ledger := services.NewLedgerService(db, resolver, prices, processors.NewPositionProcessor(),
		cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval))
	return &env{
		db:     db,
		ledger: ledger,
		upload: services.NewUploadService(db, resolver, ledger),
	}
}

func (e *env) Close() error {
	return e.db.Close()
}
