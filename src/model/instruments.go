package model

import (
	"context"
	"strings"

	"github.com/username/holdfolio/backend/src/models"
)

const instrumentColumns = `id, symbol, exchange, name, currency, status, created_at`

func scanInstrument(row interface{ Scan(...any) error }) (*models.Instrument, error) {
	var inst models.Instrument
	if err := row.Scan(&inst.ID, &inst.Symbol, &inst.Exchange, &inst.Name, &inst.Currency, &inst.Status, &inst.CreatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetInstrumentBySymbol returns sql.ErrNoRows when the instrument is unknown.
func GetInstrumentBySymbol(ctx context.Context, db Querier, symbol, exchange string) (*models.Instrument, error) {
	row := db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE symbol = ? AND exchange = ?`, symbol, exchange)
	return scanInstrument(row)
}

// GetInstrumentByID returns sql.ErrNoRows when the instrument is unknown.
func GetInstrumentByID(ctx context.Context, db Querier, id int64) (*models.Instrument, error) {
	row := db.QueryRowContext(ctx, `SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id)
	return scanInstrument(row)
}

// InsertInstrument stores inst and sets its ID. A duplicate (symbol, exchange)
// fails with a unique constraint error.
func InsertInstrument(ctx context.Context, db Querier, inst *models.Instrument) error {
	res, err := db.ExecContext(ctx,
		`INSERT INTO instruments (symbol, exchange, name, currency, status) VALUES (?, ?, ?, ?, ?)`,
		inst.Symbol, inst.Exchange, inst.Name, inst.Currency, inst.Status)
	if err != nil {
		return err
	}
	inst.ID, err = res.LastInsertId()
	return err
}

// GetInstrumentsByIDs returns the instruments found, keyed by id.
func GetInstrumentsByIDs(ctx context.Context, db Querier, ids []int64) (map[int64]models.Instrument, error) {
	out := make(map[int64]models.Instrument, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+instrumentColumns+` FROM instruments WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		out[inst.ID] = *inst
	}
	return out, rows.Err()
}
