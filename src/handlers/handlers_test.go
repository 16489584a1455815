package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/holdfolio/backend/src/database"
	"github.com/username/holdfolio/backend/src/models"
	"github.com/username/holdfolio/backend/src/parsers"
	"github.com/username/holdfolio/backend/src/processors"
	"github.com/username/holdfolio/backend/src/services"
)

const userHeader = "X-User-ID"

type noPrices struct{}

func (noPrices) GetLatestClose(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (noPrices) RefreshClosePrices(context.Context, []models.Instrument) (int, error) {
	return 0, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	resolver := services.NewInstrumentResolver(db, cache.New(cache.NoExpiration, 0))
	ledger := services.NewLedgerService(db, resolver, noPrices{}, processors.NewPositionProcessor(),
		cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval))
	upload := services.NewUploadService(db, resolver, ledger)

	uploadHandler := NewUploadHandler(upload, 1024*1024)
	txHandler := NewTransactionHandler(ledger)
	portfolioHandler := NewPortfolioHandler(ledger)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Get("/statements/sample-csv", uploadHandler.HandleDownloadSample)
		r.Group(func(r chi.Router) {
			r.Use(UserContextMiddleware(userHeader))
			r.Post("/upload", uploadHandler.HandleUpload)
			r.Get("/statements", uploadHandler.HandleGetStatements)
			r.Get("/statements/{id}/errors", uploadHandler.HandleGetStatementErrors)
			r.Delete("/statements/{id}", uploadHandler.HandleDeleteStatement)
			r.Get("/transactions", txHandler.HandleGetTransactions)
			r.Post("/transactions", txHandler.HandleAddManualTransaction)
			r.Get("/holdings", portfolioHandler.HandleGetHoldings)
			r.Post("/prices/refresh", portfolioHandler.HandleRefreshPrices)
		})
	})
	return r
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(userHeader, "u1")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func authed(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(userHeader, "u1")
	return req
}

func TestUserContextMiddleware_RequiresUserHeader(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/holdings", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHandleUpload_SampleTradebook(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, uploadRequest(t, "zerodha_tradebook.csv", parsers.SampleZerodhaCSV, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary models.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, models.StatusCompleted, summary.Status)
	assert.Equal(t, 5, summary.CommittedCount)
	assert.Equal(t, "Successfully processed 5 transactions", summary.Message)

	rec = serve(router, authed(http.MethodGet, "/api/statements", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var statements []models.Statement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statements))
	require.Len(t, statements, 1)
	assert.Equal(t, "zerodha_tradebook.csv", statements[0].Filename)
}

func TestHandleUpload_FailedImportIsUnprocessable(t *testing.T) {
	router := newTestRouter(t)
	header := "Symbol,ISIN,Trade Date,Exchange,Segment,Series,Trade Type,Quantity,Price,Order ID,Trade ID\n"

	rec := serve(router, uploadRequest(t, "zerodha.csv", header, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var summary models.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, models.StatusFailed, summary.Status)
	assert.Equal(t, "No valid transactions found in the file", summary.Message)
}

func TestHandleUpload_RejectsUnsupportedInput(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		contains string
	}{
		{"pdf extension", "contract_note.pdf", "%PDF-1.7", nil, "PDF"},
		{"spreadsheet", "tradebook.xlsx", "PK\x03\x04", nil, "spreadsheet"},
		{"binary csv", "tradebook.csv", "a,b\x00c", nil, "binary"},
		{"unknown broker", "tradebook.csv", parsers.SampleZerodhaCSV, map[string]string{"broker": "degiro"}, "unsupported broker"},
		{"bad account", "tradebook.csv", parsers.SampleZerodhaCSV, map[string]string{"account_id": "abc"}, "account_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(router, uploadRequest(t, tc.filename, tc.content, tc.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.contains)
		})
	}

	rec := serve(router, authed(http.MethodGet, "/api/statements", ""))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleStatementErrorsAndDelete(t *testing.T) {
	router := newTestRouter(t)
	content := "Symbol,ISIN,Trade Date,Exchange,Segment,Series,Trade Type,Quantity,Price,Order ID,Trade ID\n" +
		"RELIANCE,INE002A01018,2025-08-15,NSE,EQ,EQ,BUY,10,2850.75,12345,67890\n" +
		"TCS,INE467B01029,2025-08-14,NSE,EQ,EQ,BUY,-5,4150.20,12346,67891\n"

	rec := serve(router, uploadRequest(t, "zerodha.csv", content, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, models.StatusCompletedWithErrors, summary.Status)

	path := "/api/statements/" + jsonNumber(summary.StatementID)
	rec = serve(router, authed(http.MethodGet, path+"/errors", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"row_number":3,"message":"Invalid quantity '-5'"}]`, rec.Body.String())

	rec = serve(router, authed(http.MethodDelete, path, ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(router, authed(http.MethodDelete, path, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(router, authed(http.MethodGet, "/api/statements/abc/errors", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, authed(http.MethodGet, "/api/holdings", ""))
	assert.JSONEq(t, "[]", rec.Body.String())
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestHandleTransactionsAndHoldings(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, authed(http.MethodPost, "/api/transactions",
		`{"symbol":"infy","side":"buy","qty":"10","price":"1500","fees":"20","trade_date":"2025-08-12"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tx models.CanonicalTransaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tx))
	assert.Equal(t, "INFY", tx.Symbol)
	assert.Equal(t, models.SourceManual, tx.Source)

	rec = serve(router, authed(http.MethodPost, "/api/transactions",
		`{"symbol":"INFY","side":"HOLD","qty":"1","price":"1","trade_date":"2025-08-12"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid trade type")

	rec = serve(router, authed(http.MethodPost, "/api/transactions", `{"symbol":"INFY","colour":"red"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, authed(http.MethodGet, "/api/transactions", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []models.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	assert.Len(t, txs, 1)

	rec = serve(router, authed(http.MethodGet, "/api/holdings", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	var holdings []models.HoldingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdings))
	require.Len(t, holdings, 1)
	assert.Equal(t, "1502", holdings[0].AverageCost.String())
	assert.Equal(t, "₹15,020.00", holdings[0].CostBasisDisplay)

	req := authed(http.MethodGet, "/api/holdings", "")
	req.Header.Set("If-None-Match", etag)
	rec = serve(router, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = serve(router, authed(http.MethodPost, "/api/prices/refresh", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"prices_updated":0}`, rec.Body.String())
}

func TestHandleDownloadSample(t *testing.T) {
	router := newTestRouter(t)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/statements/sample-csv", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "zerodha")
	assert.Equal(t, parsers.SampleZerodhaCSV, rec.Body.String())
}
