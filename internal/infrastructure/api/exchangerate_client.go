// Package api internal/infrastructure/api/exchangerate_client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/cache"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
)

const (
	exchangeRateAPIBaseURL = "https://v6.exchangerate-api.com/v6"
	exchangeRateAPISource  = "ExchangeRate-API"
)

// exchangeRateAPIResponse is the provider's /latest payload. Rates are
// base→X conversion factors.
type exchangeRateAPIResponse struct {
	Result    string                 `json:"result"`
	ErrorType string                 `json:"error-type"`
	BaseCode  string                 `json:"base_code"`
	Rates     map[string]json.Number `json:"conversion_rates"`
}

// ExchangeRateAPIClient fetches fiat quotes from ExchangeRate-API. The
// provider reports base→fiat factors; the client inverts them so every
// produced pair is directed fiat→base, matching the crypto source.
type ExchangeRateAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	base       entity.CurrencyCode
	fiat       []entity.CurrencyCode
	cache      *cache.QuoteCache
	logger     logger.Logger
}

// ExchangeRateAPIConfig configures the client.
type ExchangeRateAPIConfig struct {
	BaseURL    string
	APIKey     string
	Base       entity.CurrencyCode
	Fiat       []entity.CurrencyCode
	HTTPClient *http.Client
	Cache      *cache.QuoteCache
	Logger     logger.Logger
}

// NewExchangeRateAPIClient creates a new ExchangeRate-API client.
func NewExchangeRateAPIClient(cfg ExchangeRateAPIConfig) *ExchangeRateAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = exchangeRateAPIBaseURL
	}
	if cfg.Base == "" {
		cfg.Base = "USD"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewQuoteCache(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetDefaultLogger()
	}
	return &ExchangeRateAPIClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		base:       cfg.Base,
		fiat:       cfg.Fiat,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// Name returns the source tag carried by pairs from this client.
func (c *ExchangeRateAPIClient) Name() string { return exchangeRateAPISource }

// FetchRates fetches the latest fiat quotes against the base currency.
func (c *ExchangeRateAPIClient) FetchRates(ctx context.Context) ([]entity.RatePair, error) {
	if pairs, ok := c.cache.Get(c.Name()); ok {
		c.logger.Debug("Serving ExchangeRate-API batch from cache", map[string]interface{}{
			"pairs": len(pairs),
		})
		return pairs, nil
	}

	reqURL := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, c.base)

	body, err := doRequestWithRetry(ctx, c.httpClient, reqURL)
	if err != nil {
		return nil, fmt.Errorf("exchangerate-api request failed: %w", err)
	}

	var resp exchangeRateAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode exchangerate-api response: %w", err)
	}
	if resp.Result != "success" {
		return nil, fmt.Errorf("exchangerate-api returned error: %s", resp.ErrorType)
	}

	wanted := make(map[entity.CurrencyCode]struct{}, len(c.fiat))
	for _, code := range c.fiat {
		wanted[code] = struct{}{}
	}

	one := decimal.NewFromInt(1)
	observed := time.Now().UTC()
	pairs := make([]entity.RatePair, 0, len(wanted))
	for raw, factor := range resp.Rates {
		code, err := entity.ParseCurrencyCode(raw)
		if err != nil || code == c.base {
			continue
		}
		if _, ok := wanted[code]; !ok {
			continue
		}
		baseToFiat, err := decimal.NewFromString(factor.String())
		if err != nil || !baseToFiat.IsPositive() {
			c.logger.Warn("Skipping unusable ExchangeRate-API quote", map[string]interface{}{
				"currency": raw,
				"rate":     factor.String(),
			})
			continue
		}
		pairs = append(pairs, entity.RatePair{
			Base:       code,
			Quote:      c.base,
			Rate:       one.Div(baseToFiat),
			ObservedAt: observed,
			Source:     c.Name(),
		})
	}

	c.logger.Info("Fetched rates from ExchangeRate-API", map[string]interface{}{
		"pairs": len(pairs),
	})
	c.cache.Put(c.Name(), pairs)
	return pairs, nil
}
