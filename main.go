package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/holdfolio/backend/src/config"
	"github.com/username/holdfolio/backend/src/database"
	"github.com/username/holdfolio/backend/src/handlers"
	"github.com/username/holdfolio/backend/src/logger"
	"github.com/username/holdfolio/backend/src/processors"
	"github.com/username/holdfolio/backend/src/services"
	"golang.org/x/time/rate"
)

func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func enableCORS(origins []string, userHeader string) func(http.Handler) http.Handler {
	allowedOrigins := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowedOrigins[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, DELETE")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Requested-With, If-None-Match, "+userHeader)
				w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Holdfolio backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations()

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	instrumentCache := cache.New(cache.NoExpiration, services.CacheCleanupInterval)

	priceService := services.NewPriceService(database.DB, config.Cfg.PriceFeedBaseURL, config.Cfg.PriceFeedTimeout, config.Cfg.PriceFeedInterval)
	resolver := services.NewInstrumentResolver(database.DB, instrumentCache)
	ledgerService := services.NewLedgerService(database.DB, resolver, priceService, processors.NewPositionProcessor(), reportCache)
	uploadService := services.NewUploadService(database.DB, resolver, ledgerService)

	uploadHandler := handlers.NewUploadHandler(uploadService, config.Cfg.MaxUploadSizeBytes)
	txHandler := handlers.NewTransactionHandler(ledgerService)
	portfolioHandler := handlers.NewPortfolioHandler(ledgerService)

	limiter := rate.NewLimiter(rate.Limit(config.Cfg.RateLimitPerSecond), config.Cfg.RateLimitBurst)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS(config.Cfg.AllowedOrigins, config.Cfg.UserIDHeader))
	r.Use(rateLimitMiddleware(limiter))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Holdfolio backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/statements/sample-csv", uploadHandler.HandleDownloadSample)

		r.Group(func(r chi.Router) {
			r.Use(handlers.UserContextMiddleware(config.Cfg.UserIDHeader))

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

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
