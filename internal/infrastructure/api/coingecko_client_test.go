// internal/infrastructure/api/coingecko_client_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/cache"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
)

func TestCoinGeckoFetchRates(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("ids"), "bitcoin")
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"bitcoin": {"usd": 59336.77},
			"ethereum": {"usd": 2004.12},
			"unmapped-asset": {"usd": 1.0}
		}`))
	}))
	defer mockServer.Close()

	client := NewCoinGeckoClient(CoinGeckoConfig{
		BaseURL: mockServer.URL,
		IDMap: map[entity.CurrencyCode]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
		},
		Logger: logger.NewNopLogger(),
	})

	pairs, err := client.FetchRates(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	byBase := map[entity.CurrencyCode]entity.RatePair{}
	for _, p := range pairs {
		byBase[p.Base] = p
		assert.Equal(t, entity.CurrencyCode("USD"), p.Quote)
		assert.Equal(t, "CoinGecko", p.Source)
		assert.NoError(t, p.Validate())
	}
	assert.True(t, byBase["BTC"].Rate.Equal(decimal.RequireFromString("59336.77")))
	assert.True(t, byBase["ETH"].Rate.Equal(decimal.RequireFromString("2004.12")))
}

func TestCoinGeckoFetchRatesUsesCache(t *testing.T) {
	var calls atomic.Int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"bitcoin": {"usd": 60000}}`))
	}))
	defer mockServer.Close()

	client := NewCoinGeckoClient(CoinGeckoConfig{
		BaseURL: mockServer.URL,
		IDMap:   map[entity.CurrencyCode]string{"BTC": "bitcoin"},
		Cache:   cache.NewQuoteCache(time.Minute),
		Logger:  logger.NewNopLogger(),
	})

	ctx := context.Background()
	_, err := client.FetchRates(ctx)
	require.NoError(t, err)
	_, err = client.FetchRates(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestCoinGeckoFetchRatesSkipsUnusableQuotes(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"bitcoin": {"usd": -1}, "ethereum": {"usd": 2000}}`))
	}))
	defer mockServer.Close()

	client := NewCoinGeckoClient(CoinGeckoConfig{
		BaseURL: mockServer.URL,
		IDMap: map[entity.CurrencyCode]string{
			"BTC": "bitcoin",
			"ETH": "ethereum",
		},
		Logger: logger.NewNopLogger(),
	})

	pairs, err := client.FetchRates(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, entity.CurrencyCode("ETH"), pairs[0].Base)
}

func TestCoinGeckoFetchRatesEmptyIDMap(t *testing.T) {
	client := NewCoinGeckoClient(CoinGeckoConfig{Logger: logger.NewNopLogger()})

	pairs, err := client.FetchRates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestCoinGeckoFetchRatesServerError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer mockServer.Close()

	client := NewCoinGeckoClient(CoinGeckoConfig{
		BaseURL: mockServer.URL,
		IDMap:   map[entity.CurrencyCode]string{"BTC": "bitcoin"},
		Logger:  logger.NewNopLogger(),
	})

	_, err := client.FetchRates(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}
