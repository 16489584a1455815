package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/model"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers"
	"github.com/username/holdfolio/backend/src/security/validation"
)

const (
	msgNoValidTransactions = "No valid transactions found in the file"
	msgParsingFailed       = "File parsing failed: %s"
	msgPersistFailed       = "Failed to save transactions: %s"
	msgRowErrors           = "%d errors occurred during processing"
	msgProcessed           = "Successfully processed %d transactions"
)

type uploadServiceImpl struct {
	db            *sql.DB
	resolver      InstrumentResolver
	ledgerService LedgerService
}

func NewUploadService(db *sql.DB, resolver InstrumentResolver, ledgerService LedgerService) UploadService {
	return &uploadServiceImpl{
		db:            db,
		resolver:      resolver,
		ledgerService: ledgerService,
	}
}

// ProcessUpload imports one statement. The returned error is reserved for
// precondition and infrastructure failures; an import that fails on its
// content still yields a summary with status failed.
func (s *uploadServiceImpl) ProcessUpload(ctx context.Context, req UploadRequest) (*models.ImportSummary, error) {
	overallStartTime := time.Now()
	log := logger.FromContext(ctx).With("userID", req.UserID, "filename", req.Filename)
	log.Info("ProcessUpload START", "broker", req.BrokerCode, "bytes", len(req.Content))

	var parser parsers.Parser
	if req.BrokerCode != "" {
		p, err := parsers.GetParser(req.BrokerCode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedBroker, err)
		}
		parser = p
	}

	statement := &models.Statement{
		UserID:     req.UserID,
		AccountID:  req.AccountID,
		Filename:   validation.SanitizeFilename(req.Filename),
		BrokerCode: models.BrokerAutoDetect,
		Status:     models.StatusPending,
	}
	if err := model.CreateStatement(ctx, s.db, statement); err != nil {
		return nil, fmt.Errorf("failed to record statement: %w", err)
	}
	if err := model.UpdateStatementStatus(ctx, s.db, statement.ID, models.StatusProcessing, statement.BrokerCode, ""); err != nil {
		return nil, fmt.Errorf("failed to mark statement processing: %w", err)
	}

	if parser == nil {
		parser = parsers.Detect(req.Content, req.Filename)
	}
	summary := &models.ImportSummary{
		StatementID: statement.ID,
		BrokerCode:  parser.BrokerCode(),
		Errors:      []models.ImportError{},
	}

	result, err := parser.Parse(ctx, req.Content, s.resolver)
	if err != nil {
		log.Warn("Statement could not be parsed", "statementID", statement.ID, "error", err)
		return s.fail(ctx, summary, fmt.Sprintf(msgParsingFailed, err.Error()))
	}

	summary.TotalRows = result.TotalRows()
	summary.ErrorCount = len(result.Errors)
	summary.Errors = append(summary.Errors, result.Errors...)

	counts := &models.ImportCounts{
		StatementID: statement.ID,
		RowsTotal:   summary.TotalRows,
		RowsParsed:  len(result.Transactions),
		RowsFlagged: len(result.Errors),
	}
	if err := model.CreateImport(ctx, s.db, counts); err != nil {
		log.Error("Failed to record import", "statementID", statement.ID, "error", err)
		return s.fail(ctx, summary, fmt.Sprintf(msgPersistFailed, err.Error()))
	}
	if err := model.InsertImportErrors(ctx, s.db, counts.ID, result.Errors); err != nil {
		log.Error("Failed to store row errors", "statementID", statement.ID, "error", err)
	}

	if len(result.Transactions) == 0 {
		return s.fail(ctx, summary, msgNoValidTransactions)
	}

	committed, err := s.persist(ctx, req, counts.ID, result.Transactions)
	if err != nil {
		log.Error("Import batch rolled back", "statementID", statement.ID, "error", err)
		return s.fail(ctx, summary, fmt.Sprintf(msgPersistFailed, err.Error()))
	}
	summary.CommittedCount = committed
	if err := model.UpdateImportCommitted(ctx, s.db, counts.ID, committed); err != nil {
		log.Error("Failed to record committed row count", "importID", counts.ID, "error", err)
	}

	// Holdings are derived data; a failed recompute leaves the import valid and
	// is repaired by the next recompute of the user.
	keys, err := model.GetPositionKeysByImport(ctx, s.db, counts.ID)
	if err == nil {
		err = s.ledgerService.RecomputePositions(ctx, keys)
	}
	if err != nil {
		log.Error("Failed to recompute holdings after import", "statementID", statement.ID, "error", err)
	}

	summary.Status = models.StatusCompleted
	errorSummary := ""
	if summary.ErrorCount > 0 {
		summary.Status = models.StatusCompletedWithErrors
		errorSummary = fmt.Sprintf(msgRowErrors, summary.ErrorCount)
	}
	summary.Message = fmt.Sprintf(msgProcessed, committed)
	if err := model.UpdateStatementStatus(ctx, s.db, statement.ID, summary.Status, summary.BrokerCode, errorSummary); err != nil {
		log.Error("Failed to record statement outcome", "statementID", statement.ID, "status", summary.Status, "error", err)
	}

	log.Info("ProcessUpload END", "statementID", statement.ID, "status", summary.Status,
		"committed", committed, "errors", summary.ErrorCount, "duration", time.Since(overallStartTime))
	return summary, nil
}

// persist appends every transaction in one SQL transaction.
func (s *uploadServiceImpl) persist(ctx context.Context, req UploadRequest, importID int64, txs []models.CanonicalTransaction) (int, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	inserted, err := model.InsertTransactions(ctx, dbTx, req.UserID, req.AccountID, &importID, txs)
	if err != nil {
		return 0, err
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transactions: %w", err)
	}
	return inserted, nil
}

func (s *uploadServiceImpl) fail(ctx context.Context, summary *models.ImportSummary, message string) (*models.ImportSummary, error) {
	summary.Status = models.StatusFailed
	summary.CommittedCount = 0
	summary.Message = message
	if err := model.UpdateStatementStatus(ctx, s.db, summary.StatementID, models.StatusFailed, summary.BrokerCode, message); err != nil {
		return nil, fmt.Errorf("failed to record statement failure: %w", err)
	}
	logger.FromContext(ctx).Info("Import failed", "statementID", summary.StatementID, "reason", message)
	return summary, nil
}

func (s *uploadServiceImpl) GetStatements(ctx context.Context, userID string) ([]models.Statement, error) {
	statements, err := model.GetStatementsByUser(ctx, s.db, userID, StatementHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("listing statements: %w", err)
	}
	if statements == nil {
		statements = []models.Statement{}
	}
	return statements, nil
}

func (s *uploadServiceImpl) GetStatementErrors(ctx context.Context, userID string, statementID int64) ([]models.ImportError, error) {
	if _, err := model.GetStatement(ctx, s.db, userID, statementID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatementNotFound
		}
		return nil, err
	}
	rowErrors, err := model.GetImportErrors(ctx, s.db, statementID)
	if err != nil {
		return nil, fmt.Errorf("listing row errors: %w", err)
	}
	if rowErrors == nil {
		rowErrors = []models.ImportError{}
	}
	return rowErrors, nil
}

// DeleteStatement removes a statement together with the transactions it
// imported, then rebuilds the holdings those transactions contributed to.
func (s *uploadServiceImpl) DeleteStatement(ctx context.Context, userID string, statementID int64) error {
	statement, err := model.GetStatement(ctx, s.db, userID, statementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatementNotFound
		}
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	var keys []models.PositionKey
	if statement.Import != nil {
		keys, err = model.GetPositionKeysByImport(ctx, dbTx, statement.Import.ID)
		if err != nil {
			return fmt.Errorf("listing affected positions: %w", err)
		}
		if _, err := model.DeleteTransactionsByImport(ctx, dbTx, statement.Import.ID); err != nil {
			return fmt.Errorf("deleting imported transactions: %w", err)
		}
	}
	if err := model.DeleteStatement(ctx, dbTx, statementID); err != nil {
		return fmt.Errorf("deleting statement: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing statement deletion: %w", err)
	}

	logger.FromContext(ctx).Info("Statement deleted", "userID", userID, "statementID", statementID,
		"filename", statement.Filename, "positions", len(keys))
	if err := s.ledgerService.RecomputePositions(ctx, keys); err != nil {
		logger.FromContext(ctx).Error("Failed to recompute holdings after statement deletion", "statementID", statementID, "error", err)
	}
	return nil
}

