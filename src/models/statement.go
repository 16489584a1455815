package models

import "time"

// StatementStatus is the lifecycle state of an uploaded statement.
type StatementStatus string

const (
	StatusPending             StatementStatus = "pending"
	StatusProcessing          StatementStatus = "processing"
	StatusCompleted           StatementStatus = "completed"
	StatusCompletedWithErrors StatementStatus = "completed_with_errors"
	StatusFailed              StatementStatus = "failed"
)

// BrokerAutoDetect is recorded on a statement until its format is known.
const BrokerAutoDetect = "auto-detect"

// Statement is one uploaded broker file and its processing outcome.
type Statement struct {
	ID           int64           `json:"id"`
	UserID       string          `json:"user_id"`
	AccountID    *int64          `json:"account_id"`
	Filename     string          `json:"filename"`
	BrokerCode   string          `json:"broker_code"`
	Status       StatementStatus `json:"status"`
	ErrorSummary string          `json:"error_summary"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Import       *ImportCounts   `json:"import,omitempty"`
}

// ImportCounts are the row counters of one import run.
type ImportCounts struct {
	ID            int64 `json:"id"`
	StatementID   int64 `json:"statement_id"`
	RowsTotal     int   `json:"rows_total"`
	RowsParsed    int   `json:"rows_parsed"`
	RowsFlagged   int   `json:"rows_flagged"`
	RowsCommitted int   `json:"rows_committed"`
}

// ImportSummary is returned to the caller after a statement has been processed.
type ImportSummary struct {
	StatementID    int64           `json:"statement_id"`
	Status         StatementStatus `json:"status"`
	BrokerCode     string          `json:"broker_code"`
	CommittedCount int             `json:"committed_count"`
	TotalRows      int             `json:"total_rows"`
	ErrorCount     int             `json:"error_count"`
	Message        string          `json:"message"`
	Errors         []ImportError   `json:"errors"`
}

// ParseResult is what a statement parser extracted from one file.
type ParseResult struct {
	BrokerCode   string                 `json:"broker_code"`
	Transactions []CanonicalTransaction `json:"transactions"`
	Errors       []ImportError          `json:"errors"`
}

// TotalRows counts every data row that produced a transaction or an error.
func (r *ParseResult) TotalRows() int {
	return len(r.Transactions) + len(r.Errors)
}
