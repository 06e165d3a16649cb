// Package api internal/infrastructure/api/coingecko_client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/cache"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
)

const (
	coinGeckoBaseURL = "https://api.coingecko.com/api/v3/simple/price"
	coinGeckoSource  = "CoinGecko"
)

// CoinGeckoClient fetches crypto quotes against the base currency from
// the CoinGecko simple-price API.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	base       entity.CurrencyCode
	// idMap maps currency codes to CoinGecko asset ids, e.g. BTC→bitcoin.
	idMap  map[entity.CurrencyCode]string
	cache  *cache.QuoteCache
	logger logger.Logger
}

// CoinGeckoConfig configures the client. Zero values fall back to the
// public API URL, USD base and a fresh response cache.
type CoinGeckoConfig struct {
	BaseURL    string
	Base       entity.CurrencyCode
	IDMap      map[entity.CurrencyCode]string
	HTTPClient *http.Client
	Cache      *cache.QuoteCache
	Logger     logger.Logger
}

// NewCoinGeckoClient creates a new CoinGecko client.
func NewCoinGeckoClient(cfg CoinGeckoConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = coinGeckoBaseURL
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
	return &CoinGeckoClient{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		base:       cfg.Base,
		idMap:      cfg.IDMap,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// Name returns the source tag carried by pairs from this client.
func (c *CoinGeckoClient) Name() string { return coinGeckoSource }

// FetchRates fetches one quote per mapped crypto currency, each directed
// crypto→base.
func (c *CoinGeckoClient) FetchRates(ctx context.Context) ([]entity.RatePair, error) {
	if pairs, ok := c.cache.Get(c.Name()); ok {
		c.logger.Debug("Serving CoinGecko batch from cache", map[string]interface{}{
			"pairs": len(pairs),
		})
		return pairs, nil
	}

	ids := make([]string, 0, len(c.idMap))
	byID := make(map[string]entity.CurrencyCode, len(c.idMap))
	for code, id := range c.idMap {
		ids = append(ids, id)
		byID[id] = code
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	vs := strings.ToLower(c.base.String())
	reqURL := fmt.Sprintf("%s?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")), url.QueryEscape(vs))

	body, err := doRequestWithRetry(ctx, c.httpClient, reqURL)
	if err != nil {
		return nil, fmt.Errorf("coingecko request failed: %w", err)
	}

	var quotes map[string]map[string]json.Number
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, fmt.Errorf("failed to decode coingecko response: %w", err)
	}

	observed := time.Now().UTC()
	pairs := make([]entity.RatePair, 0, len(quotes))
	for id, vsQuotes := range quotes {
		code, ok := byID[id]
		if !ok {
			continue
		}
		raw, ok := vsQuotes[vs]
		if !ok {
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil || !rate.IsPositive() {
			c.logger.Warn("Skipping unusable CoinGecko quote", map[string]interface{}{
				"asset": id,
				"rate":  raw.String(),
			})
			continue
		}
		pairs = append(pairs, entity.RatePair{
			Base:       code,
			Quote:      c.base,
			Rate:       rate,
			ObservedAt: observed,
			Source:     c.Name(),
		})
	}

	c.logger.Info("Fetched rates from CoinGecko", map[string]interface{}{
		"pairs": len(pairs),
	})
	c.cache.Put(c.Name(), pairs)
	return pairs, nil
}
