package model

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/models"
)

// GetLatestClosePrice returns the most recent end-of-day close for an
// instrument, and false when no price has been stored.
func GetLatestClosePrice(ctx context.Context, db Querier, instrumentID int64) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := db.QueryRowContext(ctx, `SELECT close FROM prices_eod WHERE instrument_id = ? ORDER BY date DESC LIMIT 1`, instrumentID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

// InsertOrUpdateClosePrice saves a close, updating it if one already exists for that day.
func InsertOrUpdateClosePrice(ctx context.Context, db Querier, p models.ClosePrice) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO prices_eod (instrument_id, date, close, currency, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(instrument_id, date) DO UPDATE SET
			close = excluded.close,
			currency = excluded.currency,
			updated_at = excluded.updated_at`,
		p.InstrumentID, p.Date, p.Close.String(), p.Currency)
	if err != nil {
		logger.L.Error("Failed to insert or update close price", "instrumentID", p.InstrumentID, "date", p.Date, "error", err)
	}
	return err
}
