package model

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/username/holdfolio/backend/src/models"
)

// CreateStatement inserts s and sets its ID.
func CreateStatement(ctx context.Context, db Querier, s *models.Statement) error {
	res, err := db.ExecContext(ctx, `INSERT INTO statements (user_id, account_id, filename, broker_code, status)
		VALUES (?, ?, ?, ?, ?)`,
		s.UserID, nullableID(s.AccountID), s.Filename, s.BrokerCode, string(s.Status))
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

// UpdateStatementStatus records the state, broker code and error summary of a statement.
func UpdateStatementStatus(ctx context.Context, db Querier, id int64, status models.StatementStatus, brokerCode, errorSummary string) error {
	res, err := db.ExecContext(ctx, `UPDATE statements
		SET status = ?, broker_code = ?, error_summary = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), brokerCode, errorSummary, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("statement %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// CreateImport inserts the counters of an import run and sets their ID.
func CreateImport(ctx context.Context, db Querier, c *models.ImportCounts) error {
	res, err := db.ExecContext(ctx, `INSERT INTO imports (statement_id, rows_total, rows_parsed, rows_flagged, rows_committed)
		VALUES (?, ?, ?, ?, ?)`, c.StatementID, c.RowsTotal, c.RowsParsed, c.RowsFlagged, c.RowsCommitted)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// UpdateImportCommitted sets the number of rows persisted by an import.
func UpdateImportCommitted(ctx context.Context, db Querier, importID int64, committed int) error {
	_, err := db.ExecContext(ctx, `UPDATE imports SET rows_committed = ? WHERE id = ?`, committed, importID)
	return err
}

// InsertImportErrors stores the row errors of an import.
func InsertImportErrors(ctx context.Context, db Querier, importID int64, errs []models.ImportError) error {
	for _, e := range errs {
		if _, err := db.ExecContext(ctx, `INSERT INTO import_errors (import_id, row_number, message) VALUES (?, ?, ?)`,
			importID, e.RowNumber, e.Message); err != nil {
			return err
		}
	}
	return nil
}

// GetImportErrors returns the row errors of the statement's import in row order.
func GetImportErrors(ctx context.Context, db Querier, statementID int64) ([]models.ImportError, error) {
	rows, err := db.QueryContext(ctx, `SELECT e.row_number, e.message
		FROM import_errors e JOIN imports im ON im.id = e.import_id
		WHERE im.statement_id = ?
		ORDER BY e.row_number, e.id`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ImportError
	for rows.Next() {
		var e models.ImportError
		if err := rows.Scan(&e.RowNumber, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const statementQuery = `SELECT s.id, s.user_id, s.account_id, s.filename, s.broker_code, s.status, s.error_summary,
	s.created_at, s.updated_at, im.id, im.rows_total, im.rows_parsed, im.rows_flagged, im.rows_committed
	FROM statements s LEFT JOIN imports im ON im.statement_id = s.id`

func scanStatements(rows *sql.Rows) ([]models.Statement, error) {
	defer rows.Close()
	var out []models.Statement
	for rows.Next() {
		var (
			s                                     models.Statement
			accountID, importID                   sql.NullInt64
			total, parsed, flagged, committedRows sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &accountID, &s.Filename, &s.BrokerCode, &s.Status, &s.ErrorSummary,
			&s.CreatedAt, &s.UpdatedAt, &importID, &total, &parsed, &flagged, &committedRows); err != nil {
			return nil, err
		}
		s.AccountID = idPtr(accountID)
		if importID.Valid {
			s.Import = &models.ImportCounts{
				ID:            importID.Int64,
				StatementID:   s.ID,
				RowsTotal:     int(total.Int64),
				RowsParsed:    int(parsed.Int64),
				RowsFlagged:   int(flagged.Int64),
				RowsCommitted: int(committedRows.Int64),
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetStatementsByUser returns the user's most recent statements with their import counts.
func GetStatementsByUser(ctx context.Context, db Querier, userID string, limit int) ([]models.Statement, error) {
	rows, err := db.QueryContext(ctx, statementQuery+` WHERE s.user_id = ? ORDER BY s.created_at DESC, s.id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanStatements(rows)
}

// GetStatement returns sql.ErrNoRows unless the statement exists and belongs to userID.
func GetStatement(ctx context.Context, db Querier, userID string, id int64) (*models.Statement, error) {
	rows, err := db.QueryContext(ctx, statementQuery+` WHERE s.user_id = ? AND s.id = ?`, userID, id)
	if err != nil {
		return nil, err
	}
	statements, err := scanStatements(rows)
	if err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		return nil, sql.ErrNoRows
	}
	return &statements[0], nil
}

// DeleteStatement removes a statement; its imports and import errors cascade.
// Transactions referencing the imports must be deleted first.
func DeleteStatement(ctx context.Context, db Querier, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM statements WHERE id = ?`, id)
	return err
}
