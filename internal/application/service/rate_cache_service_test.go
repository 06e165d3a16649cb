// internal/application/service/rate_cache_service_test.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
	"github.com/valutatrade/parser-service/internal/mocks"
)

func testPair(base, quote, rate string, observed time.Time, source string) entity.RatePair {
	return entity.RatePair{
		Base:       entity.CurrencyCode(base),
		Quote:      entity.CurrencyCode(quote),
		Rate:       decimal.RequireFromString(rate),
		ObservedAt: observed,
		Source:     source,
	}
}

func snapshotWith(version uint64, pairs ...entity.RatePair) *entity.Snapshot {
	snap := entity.EmptySnapshot()
	snap.Version = version
	if len(pairs) > 0 {
		snap.LastUpdate = time.Now().UTC()
	}
	for _, p := range pairs {
		snap.Pairs[p.Key()] = p
	}
	return snap
}

func newTestService(t *testing.T, store *mocks.MockSnapshotStore, fetcher *mocks.MockRateFetcher, opts Options) *RateCacheService {
	t.Helper()
	return NewRateCacheService(
		context.Background(),
		store, fetcher, nil, nil,
		opts,
		logger.NewNopLogger(),
		nil,
	)
}

func TestNewRateCacheService(t *testing.T) {
	ctx := context.Background()

	t.Run("Publishes loaded snapshot", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(3, testPair("BTC", "USD", "60000", observed, "CoinGecko")), nil).Once()

		svc := newTestService(t, store, fetcher, Options{})

		st := svc.Status(ctx)
		assert.Equal(t, 1, st.PairCount)
		assert.Equal(t, uint64(3), st.Version)
		assert.False(t, st.Degraded)
		store.AssertExpectations(t)
	})

	t.Run("Load failure starts degraded on the empty snapshot", func(t *testing.T) {
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(nil, errors.New("corrupt file")).Once()

		svc := newTestService(t, store, fetcher, Options{})

		st := svc.Status(ctx)
		assert.Equal(t, 0, st.PairCount)
		assert.True(t, st.Degraded)
		store.AssertExpectations(t)
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful update publishes and persists", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
			testPair("EUR", "USD", "1.08", observed, "ExchangeRate-API"),
		}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Fetched)
		assert.Equal(t, 2, report.Merged)
		assert.Equal(t, uint64(1), report.Version)
		assert.False(t, report.Degraded)

		quote, err := svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.NewFromInt(60000)))

		store.AssertExpectations(t)
		fetcher.AssertExpectations(t)
	})

	t.Run("Fetch failure keeps last-known-good snapshot", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(5, testPair("BTC", "USD", "60000", observed, "CoinGecko")), nil).Once()
		fetcher.On("Fetch", mock.Anything).Return(nil, entity.ErrFetchFailure).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.True(t, report.Degraded)
		assert.Equal(t, uint64(5), report.Version)

		// The cached rate still serves.
		quote, err := svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.NewFromInt(60000)))
		assert.True(t, svc.Status(ctx).Degraded)

		// No Save call happened.
		store.AssertExpectations(t)
	})

	t.Run("Partial fetch merges surviving sources and degrades", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("EUR", "USD", "1.08", observed, "ExchangeRate-API"),
		}, fmt.Errorf("%w: CoinGecko: rate limited", entity.ErrFetchFailure)).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.True(t, report.Degraded)
		assert.Contains(t, report.Warning, "CoinGecko")
		assert.Equal(t, uint64(1), report.Version)
		assert.Equal(t, map[string]int{"ExchangeRate-API": 1}, report.Sources)

		quote, err := svc.GetRate(ctx, "EUR", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.RequireFromString("1.08")))
		assert.True(t, svc.Status(ctx).Degraded)
	})

	t.Run("Empty batch counts as fetch failure", func(t *testing.T) {
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(2), nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.True(t, report.Degraded)
		assert.Equal(t, uint64(2), report.Version)
	})

	t.Run("Save failure still publishes in memory", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(errors.New("disk full")).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
		}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.True(t, report.Degraded)
		assert.Equal(t, uint64(1), report.Version)

		quote, err := svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.NewFromInt(60000)))
		assert.True(t, svc.Status(ctx).Degraded)
	})

	t.Run("Save failure after partial fetch keeps both warnings", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(errors.New("disk full")).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
		}, fmt.Errorf("%w: ExchangeRate-API: timeout", entity.ErrFetchFailure)).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.True(t, report.Degraded)
		assert.Contains(t, report.Warning, "ExchangeRate-API")
		assert.Contains(t, report.Warning, "disk full")
	})

	t.Run("Successful update clears degraded mode", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(nil, errors.New("corrupt file")).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
		}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{})
		require.True(t, svc.Status(ctx).Degraded)

		_, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.False(t, svc.Status(ctx).Degraded)
	})

	t.Run("Newer observation wins within a batch", func(t *testing.T) {
		older := time.Now().UTC().Add(-time.Minute)
		newer := older.Add(time.Minute)
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "59000", older, "CoinGecko"),
			testPair("BTC", "USD", "60000", newer, "CoinGecko"),
		}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Merged)

		quote, err := svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.NewFromInt(60000)))
	})

	t.Run("Invalid fetched pairs are dropped", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
			{Base: "ETH", Quote: "ETH", Rate: decimal.NewFromInt(1), ObservedAt: observed},
			{Base: "SOL", Quote: "USD", Rate: decimal.NewFromInt(-5), ObservedAt: observed},
		}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Fetched)
		assert.Equal(t, 1, report.Merged)
	})

	t.Run("Stale retained pairs are evicted", func(t *testing.T) {
		now := time.Now().UTC()
		stale := now.Add(-48 * time.Hour)
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(1,
			testPair("LTC", "USD", "80", stale, "CoinGecko"),
			testPair("ETH", "USD", "2000", now.Add(-time.Hour), "CoinGecko"),
		), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return([]entity.RatePair{
			testPair("BTC", "USD", "60000", now, "CoinGecko"),
		}, nil).Once()

		svc := newTestService(t, store, fetcher, Options{StalenessThreshold: 24 * time.Hour})

		report, err := svc.Update(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Evicted)
		assert.Equal(t, 2, report.Merged)

		_, err = svc.GetRate(ctx, "LTC", "USD")
		assert.True(t, errors.Is(err, entity.ErrRateNotFound))
	})

	t.Run("Concurrent update is rejected", func(t *testing.T) {
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()

		fetchStarted := make(chan struct{})
		release := make(chan struct{})
		fetcher.On("Fetch", mock.Anything).Run(func(args mock.Arguments) {
			close(fetchStarted)
			<-release
		}).Return(nil, entity.ErrFetchFailure).Once()

		svc := newTestService(t, store, fetcher, Options{})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Update(ctx)
		}()

		<-fetchStarted
		_, err := svc.Update(ctx)
		assert.True(t, errors.Is(err, entity.ErrUpdateInProgress))

		close(release)
		wg.Wait()
	})

	t.Run("Queries during update see the previous snapshot", func(t *testing.T) {
		observed := time.Now().UTC()
		prev := testPair("BTC", "USD", "60000", observed, "CoinGecko")
		batch := []entity.RatePair{testPair("BTC", "USD", "61000", observed.Add(time.Minute), "CoinGecko")}

		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(3, prev), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()

		fetchStarted := make(chan struct{})
		release := make(chan struct{})
		fetcher.On("Fetch", mock.Anything).Run(func(args mock.Arguments) {
			close(fetchStarted)
			<-release
		}).Return(batch, nil).Once()

		svc := newTestService(t, store, fetcher, Options{RatesTTL: time.Hour})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Update(ctx)
		}()

		<-fetchStarted
		pairs, err := svc.ListRates(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, pairs, 1)
		assert.True(t, pairs[0].Rate.Equal(decimal.RequireFromString("60000")))

		quote, err := svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.RequireFromString("60000")))
		assert.Equal(t, uint64(3), svc.Status(ctx).Version)

		close(release)
		wg.Wait()

		assert.Equal(t, uint64(4), svc.Status(ctx).Version)
		quote, err = svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.True(t, quote.Rate.Equal(decimal.RequireFromString("61000")))
	})

	t.Run("Fetched batch is archived", func(t *testing.T) {
		observed := time.Now().UTC()
		batch := []entity.RatePair{testPair("BTC", "USD", "60000", observed, "CoinGecko")}

		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		history := new(mocks.MockRateHistoryRepository)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()
		store.On("Save", ctx, mock.AnythingOfType("*entity.Snapshot")).Return(nil).Once()
		fetcher.On("Fetch", mock.Anything).Return(batch, nil).Once()
		history.On("Append", ctx, batch).Return(nil).Once()

		svc := NewRateCacheService(ctx, store, fetcher, history, nil, Options{}, logger.NewNopLogger(), nil)

		_, err := svc.Update(ctx)
		require.NoError(t, err)
		history.AssertExpectations(t)
	})
}

func TestGetRate(t *testing.T) {
	ctx := context.Background()
	observed := time.Now().UTC()

	setup := func(t *testing.T, opts Options, pairs ...entity.RatePair) *RateCacheService {
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		snap := snapshotWith(1, pairs...)
		store.On("Load", ctx).Return(snap, nil).Once()
		return newTestService(t, store, fetcher, opts)
	}

	t.Run("Direct rate carries source metadata", func(t *testing.T) {
		svc := setup(t, Options{RatesTTL: time.Hour},
			testPair("BTC", "USD", "60000", observed, "CoinGecko"))

		quote, err := svc.GetRate(ctx, "btc", "usd")
		require.NoError(t, err)
		assert.Equal(t, entity.CurrencyCode("BTC"), quote.Base)
		assert.True(t, quote.Direct)
		assert.Equal(t, "CoinGecko", quote.Source)
		assert.True(t, quote.Fresh)
		assert.True(t, quote.InverseRate.Mul(quote.Rate).Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.RequireFromString("0.0000000001")))
	})

	t.Run("Inverse of a stored pair keeps its metadata", func(t *testing.T) {
		svc := setup(t, Options{RatesTTL: time.Hour},
			testPair("BTC", "USD", "60000", observed, "CoinGecko"))

		quote, err := svc.GetRate(ctx, "USD", "BTC")
		require.NoError(t, err)
		assert.True(t, quote.Direct)
		assert.Equal(t, "CoinGecko", quote.Source)
	})

	t.Run("Cross rate is marked derived", func(t *testing.T) {
		svc := setup(t, Options{RatesTTL: time.Hour},
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
			testPair("EUR", "USD", "1.25", observed, "ExchangeRate-API"))

		quote, err := svc.GetRate(ctx, "BTC", "EUR")
		require.NoError(t, err)
		assert.False(t, quote.Direct)
		assert.Equal(t, "derived", quote.Source)
		assert.Equal(t, []entity.CurrencyCode{"BTC", "USD", "EUR"}, quote.Path)
		assert.True(t, quote.Rate.Equal(decimal.NewFromInt(48000)), "got %s", quote.Rate)
	})

	t.Run("Unknown currency fails before lookup", func(t *testing.T) {
		svc := setup(t, Options{}, testPair("BTC", "USD", "60000", observed, "CoinGecko"))

		_, err := svc.GetRate(ctx, "ZZZ", "USD")
		assert.True(t, errors.Is(err, entity.ErrInvalidCurrency))

		_, err = svc.GetRate(ctx, "USD", "!")
		assert.True(t, errors.Is(err, entity.ErrInvalidCurrency))
	})

	t.Run("Unreachable pair is not found", func(t *testing.T) {
		svc := setup(t, Options{}, testPair("BTC", "USD", "60000", observed, "CoinGecko"))

		_, err := svc.GetRate(ctx, "EUR", "GBP")
		assert.True(t, errors.Is(err, entity.ErrRateNotFound))
	})

	t.Run("Expired TTL marks the quote stale", func(t *testing.T) {
		svc := setup(t, Options{RatesTTL: time.Minute},
			testPair("BTC", "USD", "60000", observed.Add(-time.Hour), "CoinGecko"))

		quote, err := svc.GetRate(ctx, "BTC", "USD")
		require.NoError(t, err)
		assert.False(t, quote.Fresh)
	})
}

func TestListRates(t *testing.T) {
	ctx := context.Background()
	observed := time.Now().UTC()

	store := new(mocks.MockSnapshotStore)
	fetcher := new(mocks.MockRateFetcher)
	store.On("Load", ctx).Return(snapshotWith(1,
		testPair("ADA", "USD", "5", observed, "CoinGecko"),
		testPair("LTC", "USD", "1", observed, "CoinGecko"),
		testPair("BTC", "USD", "9", observed, "CoinGecko"),
		testPair("EUR", "GBP", "3", observed, "ExchangeRate-API"),
	), nil).Once()

	svc := newTestService(t, store, fetcher, Options{})

	t.Run("Orders by rate descending", func(t *testing.T) {
		pairs, err := svc.ListRates(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, pairs, 4)
		assert.Equal(t, entity.CurrencyCode("BTC"), pairs[0].Base)
		assert.Equal(t, entity.CurrencyCode("ADA"), pairs[1].Base)
		assert.Equal(t, entity.CurrencyCode("EUR"), pairs[2].Base)
		assert.Equal(t, entity.CurrencyCode("LTC"), pairs[3].Base)
	})

	t.Run("Top N keeps the largest rates", func(t *testing.T) {
		pairs, err := svc.ListRates(ctx, ListFilter{TopN: 2})
		require.NoError(t, err)
		require.Len(t, pairs, 2)
		assert.Equal(t, entity.CurrencyCode("BTC"), pairs[0].Base)
		assert.Equal(t, entity.CurrencyCode("ADA"), pairs[1].Base)
	})

	t.Run("Currency filter matches base or quote", func(t *testing.T) {
		pairs, err := svc.ListRates(ctx, ListFilter{Currency: "gbp"})
		require.NoError(t, err)
		require.Len(t, pairs, 1)
		assert.Equal(t, entity.CurrencyCode("EUR"), pairs[0].Base)
	})

	t.Run("Unknown filter currency fails", func(t *testing.T) {
		_, err := svc.ListRates(ctx, ListFilter{Currency: "ZZZ"})
		assert.True(t, errors.Is(err, entity.ErrInvalidCurrency))
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty cache is never fresh", func(t *testing.T) {
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(0), nil).Once()

		svc := newTestService(t, store, fetcher, Options{RatesTTL: time.Hour})
		st := svc.Status(ctx)
		assert.False(t, st.Fresh)
		assert.Zero(t, st.Age)
	})

	t.Run("Reports counts, sources and freshness", func(t *testing.T) {
		observed := time.Now().UTC()
		store := new(mocks.MockSnapshotStore)
		fetcher := new(mocks.MockRateFetcher)
		store.On("Load", ctx).Return(snapshotWith(4,
			testPair("BTC", "USD", "60000", observed, "CoinGecko"),
			testPair("EUR", "USD", "1.08", observed, "ExchangeRate-API"),
		), nil).Once()

		svc := newTestService(t, store, fetcher, Options{RatesTTL: time.Hour})
		st := svc.Status(ctx)
		assert.Equal(t, 2, st.PairCount)
		assert.Equal(t, uint64(4), st.Version)
		assert.True(t, st.Fresh)
		assert.Equal(t, []string{"CoinGecko", "ExchangeRate-API"}, st.Sources)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	store := new(mocks.MockSnapshotStore)
	fetcher := new(mocks.MockRateFetcher)
	store.On("Load", ctx).Return(snapshotWith(0), nil)

	svc := newTestService(t, store, fetcher, Options{})

	t.Run("Nil repository returns an empty slice", func(t *testing.T) {
		entries, err := svc.History(ctx, "BTC", "USD", 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Unknown currency fails", func(t *testing.T) {
		_, err := svc.History(ctx, "ZZZ", "USD", 10)
		assert.True(t, errors.Is(err, entity.ErrInvalidCurrency))
	})
}
