// Package repository internal/domain/repository/rate_history_repository.go
package repository

import (
	"context"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

// RateHistoryRepository archives fetched quotes for later inspection.
type RateHistoryRepository interface {
	// Append records one fetched batch.
	Append(ctx context.Context, pairs []entity.RatePair) error

	// FindByPair returns up to limit archived quotes for a pair, newest
	// first.
	FindByPair(ctx context.Context, base, quote entity.CurrencyCode, limit int) ([]entity.HistoryEntry, error)
}
