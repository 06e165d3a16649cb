// Package entity internal/domain/entity/rate_pair.go
package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PairKey uniquely identifies a directed pair as the concatenation of the
// base and quote codes, e.g. "BTCUSD".
type PairKey string

// NewPairKey builds the key for a base/quote pair.
func NewPairKey(base, quote CurrencyCode) PairKey {
	return PairKey(string(base) + string(quote))
}

func (k PairKey) String() string { return string(k) }

// RatePair is one directed exchange-rate quote: one unit of Base is worth
// Rate units of Quote, as observed at ObservedAt by Source.
type RatePair struct {
	Base       CurrencyCode
	Quote      CurrencyCode
	Rate       decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// Key returns the directed pair key.
func (p RatePair) Key() PairKey { return NewPairKey(p.Base, p.Quote) }

// Validate checks the pair invariants: recognizable codes, distinct base
// and quote, strictly positive rate.
func (p RatePair) Validate() error {
	if _, err := ParseCurrencyCode(string(p.Base)); err != nil {
		return fmt.Errorf("base: %w", err)
	}
	if _, err := ParseCurrencyCode(string(p.Quote)); err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	if p.Base == p.Quote {
		return fmt.Errorf("pair %s: base and quote must differ", p.Key())
	}
	if !p.Rate.IsPositive() {
		return fmt.Errorf("pair %s: rate must be positive, got %s", p.Key(), p.Rate)
	}
	return nil
}

// Inverse derives the opposite direction (quote to base, 1/rate). The
// result keeps the observation metadata of the original quote.
func (p RatePair) Inverse() RatePair {
	return RatePair{
		Base:       p.Quote,
		Quote:      p.Base,
		Rate:       decimal.NewFromInt(1).Div(p.Rate),
		ObservedAt: p.ObservedAt,
		Source:     p.Source,
	}
}

// Supersedes reports whether p wins over other for the same key: the most
// recently observed quote wins, and equal timestamps fall back to the
// lexicographically larger source id so the choice is deterministic.
func (p RatePair) Supersedes(other RatePair) bool {
	if !p.ObservedAt.Equal(other.ObservedAt) {
		return p.ObservedAt.After(other.ObservedAt)
	}
	return p.Source > other.Source
}

// HistoryEntry is one archived quote in the rate history log.
type HistoryEntry struct {
	ID         string          `json:"id"`
	Base       CurrencyCode    `json:"base"`
	Quote      CurrencyCode    `json:"quote"`
	Rate       decimal.Decimal `json:"rate"`
	ObservedAt time.Time       `json:"observed_at"`
	Source     string          `json:"source"`
	RecordedAt time.Time       `json:"recorded_at"`
}
