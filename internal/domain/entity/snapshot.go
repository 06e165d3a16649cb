// Package entity internal/domain/entity/snapshot.go
package entity

import (
	"sort"
	"time"
)

// Snapshot is an immutable, versioned set of rate pairs plus cache
// metadata. Updates produce a new snapshot; a published snapshot is never
// mutated in place.
type Snapshot struct {
	Pairs      map[PairKey]RatePair
	Version    uint64
	LastUpdate time.Time
}

// EmptySnapshot returns the version-0 snapshot used before any data has
// been loaded or fetched.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Pairs: map[PairKey]RatePair{}}
}

// Get looks up the direct pair for base/quote.
func (s *Snapshot) Get(base, quote CurrencyCode) (RatePair, bool) {
	p, ok := s.Pairs[NewPairKey(base, quote)]
	return p, ok
}

// Len returns the number of cached pairs.
func (s *Snapshot) Len() int { return len(s.Pairs) }

// ClonePairs copies the pair set so an update can merge into it without
// touching the published snapshot.
func (s *Snapshot) ClonePairs() map[PairKey]RatePair {
	pairs := make(map[PairKey]RatePair, len(s.Pairs))
	for k, p := range s.Pairs {
		pairs[k] = p
	}
	return pairs
}

// SortedPairs returns all pairs ordered by rate descending, with ties
// broken lexicographically by (base, quote).
func (s *Snapshot) SortedPairs() []RatePair {
	pairs := make([]RatePair, 0, len(s.Pairs))
	for _, p := range s.Pairs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if cmp := pairs[i].Rate.Cmp(pairs[j].Rate); cmp != 0 {
			return cmp > 0
		}
		if pairs[i].Base != pairs[j].Base {
			return pairs[i].Base < pairs[j].Base
		}
		return pairs[i].Quote < pairs[j].Quote
	})
	return pairs
}

// Sources returns the distinct source tags present in the snapshot, in
// lexicographic order.
func (s *Snapshot) Sources() []string {
	seen := map[string]struct{}{}
	for _, p := range s.Pairs {
		seen[p.Source] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources
}

// Status is the derived operational view of the cache.
type Status struct {
	PairCount  int
	Version    uint64
	LastUpdate time.Time
	Age        time.Duration
	Fresh      bool
	Degraded   bool
	Sources    []string
}
