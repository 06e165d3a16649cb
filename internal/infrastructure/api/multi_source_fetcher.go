// Package api internal/infrastructure/api/multi_source_fetcher.go
package api

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/domain/repository"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
	"github.com/valutatrade/parser-service/internal/infrastructure/metrics"
)

// SourceClient is one upstream rate provider.
type SourceClient interface {
	Name() string
	FetchRates(ctx context.Context) ([]entity.RatePair, error)
}

// MultiSourceFetcher aggregates batches from several source clients into
// one. A failing source only loses its own pairs; the fetch as a whole
// fails only when every source fails or no source produces data.
type MultiSourceFetcher struct {
	clients []SourceClient
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewMultiSourceFetcher creates a fetcher over the given clients. Metrics
// may be nil.
func NewMultiSourceFetcher(clients []SourceClient, log logger.Logger, m *metrics.Metrics) *MultiSourceFetcher {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &MultiSourceFetcher{clients: clients, logger: log, metrics: m}
}

// Fetch queries all sources concurrently and returns the combined batch.
// When some sources fail but others produce data, the batch is returned
// together with a non-nil error describing the failed sources; an empty
// batch always fails.
func (f *MultiSourceFetcher) Fetch(ctx context.Context) ([]entity.RatePair, error) {
	type sourceResult struct {
		name  string
		pairs []entity.RatePair
		err   error
	}

	results := make(chan sourceResult, len(f.clients))
	var wg sync.WaitGroup
	for _, client := range f.clients {
		wg.Add(1)
		go func(client SourceClient) {
			defer wg.Done()
			pairs, err := client.FetchRates(ctx)
			results <- sourceResult{name: client.Name(), pairs: pairs, err: err}
		}(client)
	}
	wg.Wait()
	close(results)

	var combined []entity.RatePair
	var failures []string
	for res := range results {
		if res.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", res.name, res.err))
			f.logger.Error("Source fetch failed", map[string]interface{}{
				"source": res.name,
				"error":  res.err.Error(),
			})
			if f.metrics != nil {
				f.metrics.FetchFailuresTotal.WithLabelValues(res.name).Inc()
			}
			continue
		}
		f.logger.Debug("Source fetch succeeded", map[string]interface{}{
			"source": res.name,
			"pairs":  len(res.pairs),
		})
		combined = append(combined, res.pairs...)
	}

	if len(combined) == 0 {
		if len(failures) > 0 {
			return nil, fmt.Errorf("%w: %s", entity.ErrFetchFailure, strings.Join(failures, "; "))
		}
		return nil, entity.ErrFetchFailure
	}
	if len(failures) > 0 {
		return combined, fmt.Errorf("%w: %s", entity.ErrFetchFailure, strings.Join(failures, "; "))
	}
	return combined, nil
}

var _ repository.RateFetcher = (*MultiSourceFetcher)(nil)
