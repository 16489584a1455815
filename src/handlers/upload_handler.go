package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers"
	"github.com/username/holdfolio/backend/src/security/validation"
	"github.com/username/holdfolio/backend/src/services"
	"github.com/username/holdfolio/backend/src/utils"
)

// multipartOverhead is allowed on top of the file size for boundaries and form fields.
const multipartOverhead = 512 * 1024

const sampleFilename = "zerodha_sample_tradebook.csv"

type UploadHandler struct {
	uploadService services.UploadService
	maxUploadSize int64
}

func NewUploadHandler(service services.UploadService, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{
		uploadService: service,
		maxUploadSize: maxUploadSize,
	}
}

// HandleUpload accepts a multipart form with a "file" field and optional
// "broker" and "account_id" fields, and imports the statement.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ctxLogger := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", h.maxUploadSize)
		utils.SendJSONError(w, fmt.Sprintf("Failed to read upload or file too large (max %d MB)", h.maxUploadSize/(1024*1024)), http.StatusBadRequest)
		return
	}

	brokerCode := strings.TrimSpace(r.FormValue("broker"))
	if err := validation.ValidateBrokerCode(brokerCode); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	accountID, err := optionalID(r.FormValue("account_id"))
	if err != nil {
		utils.SendJSONError(w, "account_id must be a positive integer", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateFileExtension(fileHeader.Filename); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateFileSize(fileHeader.Size, h.maxUploadSize); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validation.ValidateClientContentType(fileHeader.Header.Get("Content-Type")); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		ctxLogger.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}
	ctxLogger.Info("Processing upload request", "filename", fileHeader.Filename, "size", fileHeader.Size, "detectedType", detectedContentType)

	summary, err := h.uploadService.ProcessUpload(r.Context(), services.UploadRequest{
		UserID:     userID,
		AccountID:  accountID,
		Filename:   fileHeader.Filename,
		BrokerCode: brokerCode,
		Content:    string(content),
	})
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedBroker) {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctxLogger.Error("Upload processing failed", "error", err)
		utils.SendJSONError(w, "Failed to process statement", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if summary.Status == models.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	utils.SendJSON(w, summary, status)
}

func (h *UploadHandler) HandleGetStatements(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	statements, err := h.uploadService.GetStatements(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Error retrieving statements", "error", err)
		utils.SendJSONError(w, "Error retrieving statements", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, statements, http.StatusOK)
}

func (h *UploadHandler) HandleGetStatementErrors(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	statementID, err := idParam(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid statement id", http.StatusBadRequest)
		return
	}
	rowErrors, err := h.uploadService.GetStatementErrors(r.Context(), userID, statementID)
	if err != nil {
		writeStatementError(w, r, err)
		return
	}
	utils.SendJSON(w, rowErrors, http.StatusOK)
}

func (h *UploadHandler) HandleDeleteStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	statementID, err := idParam(r, "id")
	if err != nil {
		utils.SendJSONError(w, "invalid statement id", http.StatusBadRequest)
		return
	}
	if err := h.uploadService.DeleteStatement(r.Context(), userID, statementID); err != nil {
		writeStatementError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDownloadSample serves a small tradebook users can start from.
func (h *UploadHandler) HandleDownloadSample(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sampleFilename))
	io.WriteString(w, parsers.SampleZerodhaCSV)
}

func writeStatementError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, services.ErrStatementNotFound) {
		utils.SendJSONError(w, "Statement not found", http.StatusNotFound)
		return
	}
	logger.FromContext(r.Context()).Error("Statement request failed", "error", err)
	utils.SendJSONError(w, "Error processing statement request", http.StatusInternalServerError)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func optionalID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid id %q", raw)
	}
	return &id, nil
}
