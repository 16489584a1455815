package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/model"
	"github.com/username/holdfolio/backend/src/models"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const priceFeedUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Exchange suffixes used by the chart API for Indian listings.
var exchangeTickerSuffix = map[string]string{
	"NSE": ".NS",
	"BSE": ".BO",
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

type priceServiceImpl struct {
	db            *sql.DB
	httpClient    http.Client
	baseURL       string
	limiter       *rate.Limiter
	isInitialized bool
	crumb         string
	mu            sync.Mutex
}

// NewPriceService returns a PriceService that stores closes in prices_eod and
// fetches them from a Yahoo-compatible chart API at baseURL. Requests to the
// feed are spaced at least interval apart.
func NewPriceService(db *sql.DB, baseURL string, timeout, interval time.Duration) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &priceServiceImpl{
		db:         db,
		httpClient: http.Client{Jar: jar, Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (s *priceServiceImpl) GetLatestClose(ctx context.Context, instrumentID int64) (decimal.Decimal, error) {
	price, _, err := model.GetLatestClosePrice(ctx, s.db, instrumentID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading close for instrument %d: %w", instrumentID, err)
	}
	return price, nil
}

// RefreshClosePrices fetches the latest close of each instrument and stores it.
// Instruments the feed cannot price are logged and skipped. It returns the
// number of closes stored.
func (s *priceServiceImpl) RefreshClosePrices(ctx context.Context, instruments []models.Instrument) (int, error) {
	if len(instruments) == 0 {
		return 0, nil
	}
	s.ensureSession(ctx)

	stored := 0
	for _, inst := range instruments {
		if err := s.limiter.Wait(ctx); err != nil {
			return stored, err
		}
		ticker := tickerFor(inst)
		price, err := s.fetchLatestClose(ctx, ticker)
		if err != nil {
			logger.FromContext(ctx).Warn("Could not get close price for ticker", "ticker", ticker, "instrumentID", inst.ID, "error", err)
			continue
		}
		if price.Currency == "" {
			price.Currency = inst.Currency
		}
		price.InstrumentID = inst.ID
		if err := model.InsertOrUpdateClosePrice(ctx, s.db, price); err != nil {
			continue
		}
		stored++
	}
	logger.FromContext(ctx).Info("Close prices refreshed", "requested", len(instruments), "stored", stored)
	return stored, nil
}

func tickerFor(inst models.Instrument) string {
	return inst.Symbol + exchangeTickerSuffix[strings.ToUpper(inst.Exchange)]
}

// ensureSession obtains the cookie and crumb the chart API expects. A missing
// crumb is not fatal; requests are still attempted without it.
func (s *priceServiceImpl) ensureSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isInitialized && s.crumb != "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", priceFeedUserAgent)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		logger.L.Error("Failed to fetch crumb", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.L.Warn("Failed to fetch crumb", "status", resp.Status)
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.L.Warn("Failed to read crumb", "error", err)
		return
	}
	s.crumb = strings.TrimSpace(string(body))
	s.isInitialized = true
	logger.L.Info("Price feed session initialized")
}

func (s *priceServiceImpl) currentCrumb() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crumb
}

// chartURL builds the daily chart request for ticker. Symbols come from user
// files and may contain path or query delimiters.
func (s *priceServiceImpl) chartURL(ticker string) string {
	return fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d&crumb=%s",
		s.baseURL, url.PathEscape(ticker), url.QueryEscape(s.currentCrumb()))
}

func (s *priceServiceImpl) fetchLatestClose(ctx context.Context, ticker string) (models.ClosePrice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.chartURL(ticker), nil)
	if err != nil {
		return models.ClosePrice{}, err
	}
	req.Header.Set("User-Agent", priceFeedUserAgent)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.ClosePrice{}, fmt.Errorf("failed to call chart API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		s.mu.Lock()
		s.isInitialized = false
		s.mu.Unlock()
		return models.ClosePrice{}, fmt.Errorf("status 401 (Unauthorized) - crumb invalid")
	}
	if resp.StatusCode != http.StatusOK {
		return models.ClosePrice{}, fmt.Errorf("chart API returned non-OK status %d", resp.StatusCode)
	}

	var data yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return models.ClosePrice{}, fmt.Errorf("failed to decode chart response: %w", err)
	}
	if data.Chart.Error != nil {
		return models.ClosePrice{}, fmt.Errorf("chart API returned an error: %v", data.Chart.Error)
	}
	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Indicators.Quote) == 0 {
		return models.ClosePrice{}, fmt.Errorf("no price data found")
	}

	result := data.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	if len(closes) != len(result.Timestamp) {
		return models.ClosePrice{}, fmt.Errorf("data mismatch")
	}
	// Walk back to the most recent session that has a close; the current day
	// is often still null.
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		return models.ClosePrice{
			Date:     time.Unix(result.Timestamp[i], 0).UTC().Format(time.DateOnly),
			Close:    decimal.NewFromFloat(*closes[i]),
			Currency: result.Meta.Currency,
		}, nil
	}
	return models.ClosePrice{}, fmt.Errorf("no price data found")
}
