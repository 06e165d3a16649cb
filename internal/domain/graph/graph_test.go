// internal/domain/graph/graph_test.go
package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

func snapshotOf(t *testing.T, pairs ...entity.RatePair) *entity.Snapshot {
	t.Helper()
	snap := entity.EmptySnapshot()
	snap.Version = 7
	for _, p := range pairs {
		require.NoError(t, p.Validate())
		snap.Pairs[p.Key()] = p
	}
	return snap
}

func pair(base, quote, rate string) entity.RatePair {
	return entity.RatePair{
		Base:       entity.CurrencyCode(base),
		Quote:      entity.CurrencyCode(quote),
		Rate:       decimal.RequireFromString(rate),
		ObservedAt: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
		Source:     "test",
	}
}

func TestResolveIdentity(t *testing.T) {
	g := Build(snapshotOf(t, pair("BTC", "USD", "59337")))

	res, err := g.Resolve("BTC", "BTC")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, []entity.CurrencyCode{"BTC"}, res.Path)
	assert.Equal(t, 0, res.Hops())

	// Identity holds even for currencies absent from the snapshot.
	res, err = g.Resolve("XYZ", "XYZ")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(1)))
}

func TestResolveDirectEdgeIsExact(t *testing.T) {
	stored := pair("BTC", "USD", "59336.77")
	g := Build(snapshotOf(t, stored, pair("EUR", "USD", "1.08")))

	res, err := g.Resolve("BTC", "USD")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(stored.Rate), "got %s", res.Rate)
	assert.True(t, res.Stored)
	assert.Equal(t, []entity.CurrencyCode{"BTC", "USD"}, res.Path)
	assert.Equal(t, 1, res.Hops())
}

func TestResolveSynthesizedInverse(t *testing.T) {
	g := Build(snapshotOf(t, pair("EUR", "USD", "1.25")))

	res, err := g.Resolve("USD", "EUR")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("0.8")), "got %s", res.Rate)
	assert.False(t, res.Stored)
	assert.Equal(t, 1, res.Hops())
}

func TestResolveStoredReverseWinsOverSynthesized(t *testing.T) {
	// Both directions stored with rates that are not exact inverses.
	g := Build(snapshotOf(t,
		pair("EUR", "USD", "1.25"),
		pair("USD", "EUR", "0.79"),
	))

	res, err := g.Resolve("USD", "EUR")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("0.79")), "got %s", res.Rate)
	assert.True(t, res.Stored)
}

func TestResolveCrossRate(t *testing.T) {
	g := Build(snapshotOf(t,
		pair("BTC", "USD", "60000"),
		pair("EUR", "USD", "1.25"),
	))

	// BTC -> USD -> EUR: 60000 * (1/1.25) = 48000.
	res, err := g.Resolve("BTC", "EUR")
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(48000)), "got %s", res.Rate)
	assert.Equal(t, []entity.CurrencyCode{"BTC", "USD", "EUR"}, res.Path)
	assert.Equal(t, 2, res.Hops())
	assert.False(t, res.Stored)
}

func TestResolveRoundTripProduct(t *testing.T) {
	g := Build(snapshotOf(t,
		pair("BTC", "USD", "59337.5"),
		pair("EUR", "USD", "1.0842"),
	))

	forward, err := g.Resolve("BTC", "EUR")
	require.NoError(t, err)
	back, err := g.Resolve("EUR", "BTC")
	require.NoError(t, err)

	product := forward.Rate.Mul(back.Rate)
	diff := product.Sub(decimal.NewFromInt(1)).Abs()
	assert.True(t, diff.LessThan(decimal.RequireFromString("0.0000000001")), "product %s", product)
}

func TestResolveUnreachable(t *testing.T) {
	g := Build(snapshotOf(t,
		pair("BTC", "USD", "60000"),
		pair("GBP", "RUB", "120"),
	))

	_, err := g.Resolve("BTC", "GBP")
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrRateNotFound))

	var notFound *entity.RateNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, entity.CurrencyCode("BTC"), notFound.Base)
	assert.Equal(t, entity.CurrencyCode("GBP"), notFound.Quote)
}

func TestResolveUnknownNode(t *testing.T) {
	g := Build(snapshotOf(t, pair("BTC", "USD", "60000")))

	_, err := g.Resolve("BTC", "XYZ")
	assert.True(t, errors.Is(err, entity.ErrRateNotFound))
}

func TestResolvePicksLexicographicallySmallestPath(t *testing.T) {
	// Two equal-length routes from BTC to GBP: via AUD and via USD.
	// The AUD route sorts first and must be chosen regardless of rates.
	g := Build(snapshotOf(t,
		pair("BTC", "AUD", "90000"),
		pair("GBP", "AUD", "2"),
		pair("BTC", "USD", "60000"),
		pair("GBP", "USD", "1.2"),
	))

	res, err := g.Resolve("BTC", "GBP")
	require.NoError(t, err)
	assert.Equal(t, []entity.CurrencyCode{"BTC", "AUD", "GBP"}, res.Path)
	// 90000 * (1/2) = 45000.
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(45000)), "got %s", res.Rate)
}

func TestResolvePrefersFewerHops(t *testing.T) {
	// A two-hop route exists alongside a longer chain; the short one wins.
	g := Build(snapshotOf(t,
		pair("BTC", "USD", "60000"),
		pair("EUR", "USD", "1.2"),
		pair("EUR", "GBP", "0.85"),
		pair("GBP", "CHF", "1.1"),
		pair("BTC", "CHF", "52000"),
	))

	res, err := g.Resolve("BTC", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Hops())
	assert.Equal(t, []entity.CurrencyCode{"BTC", "USD", "EUR"}, res.Path)
}

func TestGraphVersion(t *testing.T) {
	g := Build(snapshotOf(t))
	assert.Equal(t, uint64(7), g.Version())
}
