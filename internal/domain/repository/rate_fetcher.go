// Package repository internal/domain/repository/rate_fetcher.go
package repository

import (
	"context"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

// RateFetcher produces a batch of fresh quotes from upstream providers.
// Retry and backoff toward the real providers is the fetcher's concern;
// the cache treats it as an opaque, possibly-failing batch source.
type RateFetcher interface {
	Fetch(ctx context.Context) ([]entity.RatePair, error)
}
