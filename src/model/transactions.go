package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/holdfolio/backend/src/models"
)

// InsertTransactions appends txs for one user and account through a single
// prepared statement. It must run inside a transaction to be atomic.
func InsertTransactions(ctx context.Context, tx *sql.Tx, userID string, accountID *int64, importID *int64, txs []models.CanonicalTransaction) (int, error) {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions
		(user_id, account_id, instrument_id, side, qty, price, fees, trade_date, source, import_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range txs {
		_, err := stmt.ExecContext(ctx,
			userID, nullableID(accountID), t.InstrumentID, string(t.Side),
			t.Quantity.String(), t.Price.String(), t.Fees.String(),
			t.TradeDate, string(t.Source), nullableID(importID))
		if err != nil {
			return inserted, fmt.Errorf("error inserting transaction (row %d, %s): %w", t.RowNumber, t.Symbol, err)
		}
		inserted++
	}
	return inserted, nil
}

const transactionColumns = `t.id, t.user_id, t.account_id, t.instrument_id, i.symbol, i.exchange,
	t.side, t.qty, t.price, t.fees, t.trade_date, t.source, t.import_id, t.created_at`

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var (
			t         models.Transaction
			accountID sql.NullInt64
			importID  sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &accountID, &t.InstrumentID, &t.Symbol, &t.Exchange,
			&t.Side, &t.Quantity, &t.Price, &t.Fees, &t.TradeDate, &t.Source, &importID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.AccountID = idPtr(accountID)
		t.ImportID = idPtr(importID)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetPositionTransactions returns every transaction of one position in trade order.
func GetPositionTransactions(ctx context.Context, db Querier, key models.PositionKey) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions t JOIN instruments i ON i.id = t.instrument_id
		WHERE t.user_id = ? AND t.instrument_id = ? AND t.account_id IS ?
		ORDER BY t.trade_date ASC, t.id ASC`,
		key.UserID, key.InstrumentID, nullableID(key.AccountID))
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// GetTransactionsByUser returns the user's ledger, newest first.
func GetTransactionsByUser(ctx context.Context, db Querier, userID string) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+`
		FROM transactions t JOIN instruments i ON i.id = t.instrument_id
		WHERE t.user_id = ?
		ORDER BY t.trade_date DESC, t.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// GetPositionKeysByImport lists the distinct positions touched by an import.
func GetPositionKeysByImport(ctx context.Context, db Querier, importID int64) ([]models.PositionKey, error) {
	return queryPositionKeys(ctx, db, `SELECT DISTINCT user_id, account_id, instrument_id
		FROM transactions WHERE import_id = ? ORDER BY instrument_id`, importID)
}

// GetPositionKeysByUser lists every position the user has traded.
func GetPositionKeysByUser(ctx context.Context, db Querier, userID string) ([]models.PositionKey, error) {
	return queryPositionKeys(ctx, db, `SELECT DISTINCT user_id, account_id, instrument_id
		FROM transactions WHERE user_id = ? ORDER BY instrument_id`, userID)
}

func queryPositionKeys(ctx context.Context, db Querier, query string, arg any) ([]models.PositionKey, error) {
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []models.PositionKey
	for rows.Next() {
		var (
			key       models.PositionKey
			accountID sql.NullInt64
		)
		if err := rows.Scan(&key.UserID, &accountID, &key.InstrumentID); err != nil {
			return nil, err
		}
		key.AccountID = idPtr(accountID)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteTransactionsByImport removes every transaction committed by an import.
func DeleteTransactionsByImport(ctx context.Context, db Querier, importID int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM transactions WHERE import_id = ?`, importID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
