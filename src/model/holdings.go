package model

import (
	"context"
	"database/sql"

	"github.com/username/holdfolio/backend/src/models"
)

// UpsertHolding writes h, replacing any existing row for the same position.
func UpsertHolding(ctx context.Context, db Querier, h models.Holding) error {
	res, err := db.ExecContext(ctx, `UPDATE holdings
		SET qty = ?, avg_cost = ?, mv_local = ?, last_price = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND instrument_id = ? AND account_id IS ?`,
		h.Quantity.String(), h.AverageCost.String(), h.MarketValue.String(), h.LastPrice.String(),
		h.UserID, h.InstrumentID, nullableID(h.AccountID))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO holdings
		(user_id, account_id, instrument_id, qty, avg_cost, mv_local, last_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.UserID, nullableID(h.AccountID), h.InstrumentID,
		h.Quantity.String(), h.AverageCost.String(), h.MarketValue.String(), h.LastPrice.String())
	return err
}

// DeleteHolding removes the holding of a position, if any.
func DeleteHolding(ctx context.Context, db Querier, key models.PositionKey) error {
	_, err := db.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ? AND instrument_id = ? AND account_id IS ?`,
		key.UserID, key.InstrumentID, nullableID(key.AccountID))
	return err
}

const holdingViewQuery = `SELECT h.user_id, h.account_id, h.instrument_id, h.qty, h.avg_cost, h.mv_local, h.last_price, h.updated_at,
	i.symbol, i.exchange, i.name, i.currency
	FROM holdings h JOIN instruments i ON i.id = h.instrument_id`

func scanHoldingViews(rows *sql.Rows) ([]models.HoldingView, error) {
	defer rows.Close()
	var out []models.HoldingView
	for rows.Next() {
		var (
			v         models.HoldingView
			accountID sql.NullInt64
		)
		if err := rows.Scan(&v.UserID, &accountID, &v.InstrumentID, &v.Quantity, &v.AverageCost, &v.MarketValue, &v.LastPrice, &v.UpdatedAt,
			&v.Symbol, &v.Exchange, &v.Name, &v.Currency); err != nil {
			return nil, err
		}
		v.AccountID = idPtr(accountID)
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetHoldingsByUser returns the user's holdings joined with their instruments.
func GetHoldingsByUser(ctx context.Context, db Querier, userID string) ([]models.HoldingView, error) {
	rows, err := db.QueryContext(ctx, holdingViewQuery+` WHERE h.user_id = ? ORDER BY i.symbol, h.account_id`, userID)
	if err != nil {
		return nil, err
	}
	return scanHoldingViews(rows)
}

// GetHolding returns sql.ErrNoRows when the position has no holding.
func GetHolding(ctx context.Context, db Querier, key models.PositionKey) (*models.HoldingView, error) {
	rows, err := db.QueryContext(ctx, holdingViewQuery+` WHERE h.user_id = ? AND h.instrument_id = ? AND h.account_id IS ?`,
		key.UserID, key.InstrumentID, nullableID(key.AccountID))
	if err != nil {
		return nil, err
	}
	views, err := scanHoldingViews(rows)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, sql.ErrNoRows
	}
	return &views[0], nil
}
