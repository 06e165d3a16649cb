// Package service internal/application/service/rate_cache_service.go
package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/domain/graph"
	"github.com/valutatrade/parser-service/internal/domain/repository"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
	"github.com/valutatrade/parser-service/internal/infrastructure/metrics"
)

// Options configures the cache service behavior.
type Options struct {
	// FetchTimeout bounds one upstream fetch. Zero means no extra bound
	// beyond the caller's context.
	FetchTimeout time.Duration
	// RatesTTL is the freshness window reported by Status and GetRate.
	RatesTTL time.Duration
	// StalenessThreshold evicts pairs not refreshed for longer than this
	// during an update. Zero disables eviction.
	StalenessThreshold time.Duration
}

// published is the snapshot/graph pair served to queries. It is replaced
// wholesale on update, never mutated, so readers need no locking beyond
// the pointer load.
type published struct {
	snap  *entity.Snapshot
	graph *graph.Graph
}

// UpdateReport summarizes one update attempt.
type UpdateReport struct {
	Fetched int `json:"fetched"`
	Merged  int `json:"merged"`
	Evicted int `json:"evicted"`
	// Sources counts the fetched pairs per source tag.
	Sources  map[string]int `json:"sources,omitempty"`
	Version  uint64         `json:"version"`
	Duration time.Duration  `json:"duration"`
	Degraded bool           `json:"degraded"`
	Warning  string         `json:"warning,omitempty"`
}

// RateQuote is the result of a rate query.
type RateQuote struct {
	Base        entity.CurrencyCode   `json:"base"`
	Quote       entity.CurrencyCode   `json:"quote"`
	Rate        decimal.Decimal       `json:"rate"`
	InverseRate decimal.Decimal       `json:"inverse_rate"`
	Path        []entity.CurrencyCode `json:"path"`
	Direct      bool                  `json:"direct"`
	Source      string                `json:"source,omitempty"`
	ObservedAt  time.Time             `json:"observed_at,omitempty"`
	Fresh       bool                  `json:"fresh"`
}

// ListFilter narrows a rate listing.
type ListFilter struct {
	// Currency restricts results to pairs whose base or quote equals it.
	Currency string
	// TopN caps the result at the n highest rates. Zero means no cap.
	TopN int
}

// RateCacheService orchestrates fetch, merge, persist and publish, and
// serves all queries against the currently published snapshot.
type RateCacheService struct {
	store    repository.SnapshotStore
	fetcher  repository.RateFetcher
	history  repository.RateHistoryRepository
	registry *entity.Registry
	opts     Options
	logger   logger.Logger
	metrics  *metrics.Metrics

	published atomic.Pointer[published]
	updating  atomic.Bool
	degraded  atomic.Bool
}

// NewRateCacheService loads the persisted snapshot and builds the first
// published state. The history repository and metrics may be nil.
func NewRateCacheService(
	ctx context.Context,
	store repository.SnapshotStore,
	fetcher repository.RateFetcher,
	history repository.RateHistoryRepository,
	registry *entity.Registry,
	opts Options,
	log logger.Logger,
	m *metrics.Metrics,
) *RateCacheService {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if registry == nil {
		registry = entity.DefaultRegistry()
	}

	s := &RateCacheService{
		store:    store,
		fetcher:  fetcher,
		history:  history,
		registry: registry,
		opts:     opts,
		logger:   log,
		metrics:  m,
	}

	snap, err := store.Load(ctx)
	if err != nil {
		s.degraded.Store(true)
		log.Warn("Loaded empty snapshot after store failure", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.publish(snap, graph.Build(snap))

	log.Info("Rate cache initialized", map[string]interface{}{
		"pairs":   snap.Len(),
		"version": snap.Version,
	})
	return s
}

func (s *RateCacheService) publish(snap *entity.Snapshot, g *graph.Graph) {
	s.published.Store(&published{snap: snap, graph: g})
	if s.metrics != nil {
		s.metrics.PairsCached.Set(float64(snap.Len()))
		s.metrics.SnapshotVersion.Set(float64(snap.Version))
	}
}

func (s *RateCacheService) current() *published {
	return s.published.Load()
}

// Update fetches a fresh batch, merges it into a new snapshot, persists
// it and publishes the result. A fetch that produces no data at all
// leaves the current snapshot serving and only flips degraded mode; a
// partial fetch merges what arrived and reports degraded; a persistence
// failure still publishes the merged snapshot in memory. A concurrent
// call while one update is running fails with entity.ErrUpdateInProgress.
func (s *RateCacheService) Update(ctx context.Context) (UpdateReport, error) {
	if !s.updating.CompareAndSwap(false, true) {
		return UpdateReport{}, entity.ErrUpdateInProgress
	}
	defer s.updating.Store(false)

	start := time.Now()
	cur := s.current()
	report := UpdateReport{Version: cur.snap.Version}

	fetchCtx := ctx
	if s.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
	}

	batch, err := s.fetcher.Fetch(fetchCtx)
	if len(batch) == 0 {
		s.degraded.Store(true)
		report.Degraded = true
		report.Duration = time.Since(start)
		if err != nil {
			report.Warning = err.Error()
		} else {
			report.Warning = entity.ErrFetchFailure.Error()
		}
		s.logger.Warn("Update skipped, keeping last-known-good snapshot", map[string]interface{}{
			"warning": report.Warning,
			"version": cur.snap.Version,
		})
		if s.metrics != nil {
			s.metrics.UpdatesTotal.WithLabelValues("fetch_failure").Inc()
		}
		return report, nil
	}
	// A non-nil error alongside data means some sources failed; the
	// successful sources still merge, but the update counts as degraded.
	partial := err != nil
	if partial {
		report.Warning = err.Error()
	}
	report.Fetched = len(batch)
	report.Sources = make(map[string]int, 2)
	for _, p := range batch {
		report.Sources[p.Source]++
	}

	now := time.Now().UTC()
	merged, evicted := s.merge(cur.snap, batch, now)
	report.Evicted = evicted
	report.Merged = len(merged)

	newSnap := &entity.Snapshot{
		Pairs:      merged,
		Version:    cur.snap.Version + 1,
		LastUpdate: now,
	}
	newGraph := graph.Build(newSnap)

	outcome := "success"
	if partial {
		outcome = "partial_fetch"
	}
	if err := s.store.Save(ctx, newSnap); err != nil {
		// The in-memory snapshot still publishes and serves; the store
		// failure is a degraded-mode condition, not a query failure.
		if report.Warning != "" {
			report.Warning += "; " + err.Error()
		} else {
			report.Warning = err.Error()
		}
		outcome = "save_failure"
		s.logger.Error("Failed to persist snapshot, serving from memory", map[string]interface{}{
			"error":   err.Error(),
			"version": newSnap.Version,
		})
	}
	degraded := outcome != "success"
	s.degraded.Store(degraded)
	report.Degraded = degraded

	s.publish(newSnap, newGraph)
	report.Version = newSnap.Version
	report.Duration = time.Since(start)

	if s.history != nil {
		if err := s.history.Append(ctx, batch); err != nil {
			s.logger.Warn("Failed to archive fetched batch", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if s.metrics != nil {
		s.metrics.UpdatesTotal.WithLabelValues(outcome).Inc()
	}
	s.logger.Info("Rate cache updated", map[string]interface{}{
		"fetched":     report.Fetched,
		"merged":      report.Merged,
		"evicted":     report.Evicted,
		"version":     report.Version,
		"duration_ms": report.Duration.Milliseconds(),
		"degraded":    report.Degraded,
	})
	return report, nil
}

// merge applies a fetched batch over the previous pair set. Fetched pairs
// overwrite existing entries for the same key; duplicates within the
// batch are resolved by RatePair.Supersedes. Retained pairs older than
// the staleness threshold are dropped.
func (s *RateCacheService) merge(prev *entity.Snapshot, batch []entity.RatePair, now time.Time) (map[entity.PairKey]entity.RatePair, int) {
	merged := prev.ClonePairs()

	evicted := 0
	if s.opts.StalenessThreshold > 0 {
		cutoff := now.Add(-s.opts.StalenessThreshold)
		for key, p := range merged {
			if p.ObservedAt.Before(cutoff) {
				delete(merged, key)
				evicted++
			}
		}
	}

	fresh := map[entity.PairKey]entity.RatePair{}
	for _, p := range batch {
		if err := p.Validate(); err != nil {
			s.logger.Warn("Dropping invalid fetched pair", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if existing, ok := fresh[p.Key()]; ok && !p.Supersedes(existing) {
			continue
		}
		fresh[p.Key()] = p
	}
	for key, p := range fresh {
		merged[key] = p
	}
	return merged, evicted
}

// GetRate resolves the rate from one currency to another against the
// published graph. Unrecognized codes fail with an InvalidCurrencyError
// before any graph lookup; an unreachable pair fails with a
// RateNotFoundError.
func (s *RateCacheService) GetRate(ctx context.Context, from, to string) (RateQuote, error) {
	base, err := s.registry.Resolve(from)
	if err != nil {
		return RateQuote{}, err
	}
	quote, err := s.registry.Resolve(to)
	if err != nil {
		return RateQuote{}, err
	}

	start := time.Now()
	cur := s.current()
	res, err := cur.graph.Resolve(base.Code, quote.Code)
	if s.metrics != nil {
		s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return RateQuote{}, err
	}

	q := RateQuote{
		Base:        base.Code,
		Quote:       quote.Code,
		Rate:        res.Rate,
		InverseRate: decimal.NewFromInt(1).Div(res.Rate),
		Path:        res.Path,
		Direct:      res.Hops() <= 1,
	}
	if p, ok := cur.snap.Get(base.Code, quote.Code); ok {
		q.Source = p.Source
		q.ObservedAt = p.ObservedAt
		q.Fresh = s.isFresh(p.ObservedAt)
	} else if p, ok := cur.snap.Get(quote.Code, base.Code); ok && res.Hops() == 1 {
		// Synthesized inverse of a stored pair.
		q.Source = p.Source
		q.ObservedAt = p.ObservedAt
		q.Fresh = s.isFresh(p.ObservedAt)
	} else {
		q.Source = "derived"
		q.Fresh = s.isFresh(cur.snap.LastUpdate)
	}
	return q, nil
}

func (s *RateCacheService) isFresh(observed time.Time) bool {
	if observed.IsZero() {
		return false
	}
	if s.opts.RatesTTL <= 0 {
		return true
	}
	return time.Since(observed) <= s.opts.RatesTTL
}

// ListRates returns pairs from the published snapshot ordered by rate
// descending with (base, quote) ties broken lexicographically. The view
// is snapshot-consistent: it never mixes pairs across versions.
func (s *RateCacheService) ListRates(ctx context.Context, filter ListFilter) ([]entity.RatePair, error) {
	var currency entity.CurrencyCode
	if filter.Currency != "" {
		c, err := s.registry.Resolve(filter.Currency)
		if err != nil {
			return nil, err
		}
		currency = c.Code
	}

	pairs := s.current().snap.SortedPairs()
	if currency != "" {
		filtered := pairs[:0]
		for _, p := range pairs {
			if p.Base == currency || p.Quote == currency {
				filtered = append(filtered, p)
			}
		}
		pairs = filtered
	}
	if filter.TopN > 0 && filter.TopN < len(pairs) {
		pairs = pairs[:filter.TopN]
	}
	return pairs, nil
}

// Status reports the operational state of the published snapshot.
func (s *RateCacheService) Status(ctx context.Context) entity.Status {
	snap := s.current().snap
	st := entity.Status{
		PairCount:  snap.Len(),
		Version:    snap.Version,
		LastUpdate: snap.LastUpdate,
		Degraded:   s.degraded.Load(),
		Sources:    snap.Sources(),
	}
	if !snap.LastUpdate.IsZero() {
		st.Age = time.Since(snap.LastUpdate)
		st.Fresh = s.isFresh(snap.LastUpdate)
	}
	return st
}

// History returns archived quotes for a pair, newest first.
func (s *RateCacheService) History(ctx context.Context, from, to string, limit int) ([]entity.HistoryEntry, error) {
	base, err := s.registry.Resolve(from)
	if err != nil {
		return nil, err
	}
	quote, err := s.registry.Resolve(to)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return []entity.HistoryEntry{}, nil
	}
	return s.history.FindByPair(ctx, base.Code, quote.Code, limit)
}
