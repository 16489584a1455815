package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/services"
	"github.com/username/holdfolio/backend/src/utils"
)

type PortfolioHandler struct {
	ledgerService services.LedgerService
}

func NewPortfolioHandler(ledgerService services.LedgerService) *PortfolioHandler {
	return &PortfolioHandler{
		ledgerService: ledgerService,
	}
}

// HandleGetHoldings serves the user's holdings with ETag support.
func (h *PortfolioHandler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	holdings, err := h.ledgerService.GetHoldings(r.Context(), userID)
	if err != nil {
		ctxLogger.Error("Error retrieving holdings", "error", err)
		utils.SendJSONError(w, "Error retrieving holdings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	currentETag, etagErr := utils.GenerateETag(holdings)
	if etagErr != nil {
		ctxLogger.Warn("Proceeding without ETag check", "error", etagErr)
	} else {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		if utils.ETagMatches(r.Header.Get("If-None-Match"), quotedETag) {
			ctxLogger.Debug("ETag match for holdings", "etag", currentETag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(holdings); err != nil {
		ctxLogger.Error("Error encoding holdings response", "error", err)
	}
}

// HandleRefreshPrices pulls the latest closes for the user's holdings and revalues them.
func (h *PortfolioHandler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	stored, err := h.ledgerService.RefreshPrices(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Price refresh failed", "error", err)
		utils.SendJSONError(w, "Failed to refresh prices", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]int{"prices_updated": stored}, http.StatusOK)
}
