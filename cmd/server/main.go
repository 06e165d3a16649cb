package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valutatrade/parser-service/internal/application/service"
	"github.com/valutatrade/parser-service/internal/config"
	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/api"
	"github.com/valutatrade/parser-service/internal/infrastructure/cache"
	"github.com/valutatrade/parser-service/internal/infrastructure/db"
	"github.com/valutatrade/parser-service/internal/infrastructure/handler"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
	"github.com/valutatrade/parser-service/internal/infrastructure/metrics"
	"github.com/valutatrade/parser-service/internal/infrastructure/middleware"
	"github.com/valutatrade/parser-service/internal/infrastructure/scheduler"
)

func main() {
	// A missing .env is fine; env vars may come from the environment.
	_ = godotenv.Load()

	log := logger.NewJSONLogger(os.Stdout, logger.InfoLevel)
	logger.SetDefaultLogger(log)

	cfg, err := config.Load(os.Getenv("RATEPARSER_CONFIG"))
	if err != nil {
		log.Fatal("Failed to load configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Starting rate parser service", map[string]interface{}{
		"rates_file": cfg.RatesFile,
		"port":       cfg.HTTPPort,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := entity.BuildRegistry(cfg.FiatCurrencies, cfg.CryptoCurrencies)
	if err != nil {
		log.Fatal("Invalid currency configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	store, err := db.NewFileSnapshotStore(cfg.RatesFile, log)
	if err != nil {
		log.Fatal("Failed to open snapshot store", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Setup BadgerDB for the rate history log
	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		log.Fatal("Failed to create history directory", map[string]interface{}{
			"error": err.Error(),
		})
	}
	badgerOpts := badger.DefaultOptions(cfg.HistoryDir)
	badgerOpts.Logger = nil // Disable Badger's default logger
	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		log.Fatal("Failed to open history database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			log.Error("Error closing history database", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	history := db.NewBadgerHistoryRepository(badgerDB, cfg.HistoryRetention)

	m := metrics.NewMetrics()
	quoteCache := cache.NewQuoteCache(cfg.QuoteCacheTTL)

	base, err := entity.ParseCurrencyCode(cfg.BaseCurrency)
	if err != nil {
		log.Fatal("Invalid base currency", map[string]interface{}{
			"error": err.Error(),
		})
	}

	idMap := make(map[entity.CurrencyCode]string, len(cfg.CryptoIDMap))
	for code, id := range cfg.CryptoIDMap {
		parsed, err := entity.ParseCurrencyCode(code)
		if err != nil {
			log.Fatal("Invalid crypto id map entry", map[string]interface{}{
				"code":  code,
				"error": err.Error(),
			})
		}
		idMap[parsed] = id
	}

	fiat := make([]entity.CurrencyCode, 0, len(cfg.FiatCurrencies))
	for _, code := range cfg.FiatCurrencies {
		parsed, err := entity.ParseCurrencyCode(code)
		if err != nil {
			log.Fatal("Invalid fiat currency", map[string]interface{}{
				"code":  code,
				"error": err.Error(),
			})
		}
		fiat = append(fiat, parsed)
	}

	fetcher := api.NewMultiSourceFetcher([]api.SourceClient{
		api.NewCoinGeckoClient(api.CoinGeckoConfig{
			BaseURL: cfg.CoinGeckoURL,
			Base:    base,
			IDMap:   idMap,
			Cache:   quoteCache,
			Logger:  log,
		}),
		api.NewExchangeRateAPIClient(api.ExchangeRateAPIConfig{
			BaseURL: cfg.ExchangeRateAPIURL,
			APIKey:  cfg.ExchangeRateAPIKey,
			Base:    base,
			Fiat:    fiat,
			Cache:   quoteCache,
			Logger:  log,
		}),
	}, log, m)

	svc := service.NewRateCacheService(ctx, store, fetcher, history, registry, service.Options{
		FetchTimeout:       cfg.FetchTimeout,
		RatesTTL:           cfg.RatesTTL,
		StalenessThreshold: cfg.StalenessThreshold,
	}, log, m)

	if cfg.SchedulerEnabled {
		sched := scheduler.NewScheduler(svc, cfg.UpdateInterval, log)
		go sched.Run(ctx)
	}

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware(m))
	handler.NewRateHandler(svc, log).RegisterRoutes(router)
	handler.NewParserHandler(svc, log).RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	log.Info("Server listening", map[string]interface{}{"port": cfg.HTTPPort})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Server failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log.Info("Server stopped", nil)
}
