// Package db internal/infrastructure/db/badger_history_repository.go
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/domain/repository"
)

const historyKeyPrefix = "hist:"

// BadgerHistoryRepository archives fetched quotes in BadgerDB. Keys embed
// the pair and the record timestamp so a reverse prefix scan returns the
// newest entries first; retention is enforced through badger entry TTLs.
type BadgerHistoryRepository struct {
	db        *badger.DB
	retention time.Duration
}

// NewBadgerHistoryRepository creates a new history repository. A zero
// retention keeps entries forever.
func NewBadgerHistoryRepository(db *badger.DB, retention time.Duration) *BadgerHistoryRepository {
	return &BadgerHistoryRepository{db: db, retention: retention}
}

// Append records one fetched batch in a single transaction.
func (r *BadgerHistoryRepository) Append(ctx context.Context, pairs []entity.RatePair) error {
	now := time.Now().UTC()
	return r.db.Update(func(txn *badger.Txn) error {
		for _, p := range pairs {
			record := entity.HistoryEntry{
				ID:         uuid.New().String(),
				Base:       p.Base,
				Quote:      p.Quote,
				Rate:       p.Rate,
				ObservedAt: p.ObservedAt,
				Source:     p.Source,
				RecordedAt: now,
			}
			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal history entry: %w", err)
			}

			key := historyKey(p.Key(), now, record.ID)
			e := badger.NewEntry(key, data)
			if r.retention > 0 {
				e = e.WithTTL(r.retention)
			}
			if err := txn.SetEntry(e); err != nil {
				return fmt.Errorf("failed to store history entry: %w", err)
			}
		}
		return nil
	})
}

// FindByPair returns up to limit archived quotes for a pair, newest first.
func (r *BadgerHistoryRepository) FindByPair(ctx context.Context, base, quote entity.CurrencyCode, limit int) ([]entity.HistoryEntry, error) {
	prefix := []byte(historyKeyPrefix + entity.NewPairKey(base, quote).String() + ":")
	entries := make([]entity.HistoryEntry, 0, limit)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var record entity.HistoryEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("failed to decode history entry: %w", err)
			}
			entries = append(entries, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return entries, nil
}

// historyKey orders entries chronologically within a pair prefix.
func historyKey(pair entity.PairKey, recordedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", historyKeyPrefix, pair, recordedAt.UnixNano(), id))
}

var _ repository.RateHistoryRepository = (*BadgerHistoryRepository)(nil)
