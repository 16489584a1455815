package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/security/validation"
	"github.com/username/holdfolio/backend/src/services"
	"github.com/username/holdfolio/backend/src/utils"
)

const maxTransactionBodyBytes = 64 * 1024

type TransactionHandler struct {
	ledgerService services.LedgerService
}

func NewTransactionHandler(ledgerService services.LedgerService) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: ledgerService,
	}
}

func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	txs, err := h.ledgerService.GetTransactions(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error retrieving transactions", "error", err)
		utils.SendJSONError(w, "Error retrieving transactions", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, txs, http.StatusOK)
}

func (h *TransactionHandler) HandleAddManualTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req models.ManualTransactionRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTransactionBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateSymbol(req.Symbol); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateExchange(req.Exchange); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.ledgerService.RecordTransaction(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidTransaction) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to record manual transaction", "error", err)
		utils.SendJSONError(w, "Failed to record transaction", http.StatusInternalServerError)
		return
	}
	logger.FromContext(r.Context()).Info("Manual transaction recorded", "symbol", tx.Symbol, "side", tx.Side)
	utils.SendJSON(w, tx, http.StatusCreated)
}
