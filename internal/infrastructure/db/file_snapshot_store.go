// Package db internal/infrastructure/db/file_snapshot_store.go
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/domain/repository"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
)

// diskSnapshot is the persisted representation of a cache snapshot. Rates
// are written as JSON numbers and timestamps as RFC3339 UTC strings.
type diskSnapshot struct {
	Pairs      map[string]diskPair `json:"pairs"`
	Version    uint64              `json:"version"`
	LastUpdate string              `json:"last_update,omitempty"`
}

type diskPair struct {
	Base       string      `json:"base"`
	Quote      string      `json:"quote"`
	Rate       json.Number `json:"rate"`
	ObservedAt string      `json:"observed_at"`
	Source     string      `json:"source"`
}

// FileSnapshotStore persists snapshots to a single JSON file, written
// atomically through a temporary file in the same directory.
type FileSnapshotStore struct {
	path   string
	logger logger.Logger
}

// NewFileSnapshotStore creates the store and the data directory if needed.
func NewFileSnapshotStore(path string, log logger.Logger) (*FileSnapshotStore, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileSnapshotStore{path: path, logger: log}, nil
}

// Load reads the persisted snapshot. An absent file yields the empty
// version-0 snapshot with no error; an unreadable or malformed file also
// yields the empty snapshot but reports the problem so the caller can
// flag degraded state.
func (s *FileSnapshotStore) Load(ctx context.Context) (*entity.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return entity.EmptySnapshot(), nil
	}
	if err != nil {
		return entity.EmptySnapshot(), fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var disk diskSnapshot
	if err := json.Unmarshal(data, &disk); err != nil {
		return entity.EmptySnapshot(), fmt.Errorf("malformed snapshot file %s: %w", s.path, err)
	}

	snap := &entity.Snapshot{
		Pairs:   make(map[entity.PairKey]entity.RatePair, len(disk.Pairs)),
		Version: disk.Version,
	}
	if disk.LastUpdate != "" {
		t, err := time.Parse(time.RFC3339Nano, disk.LastUpdate)
		if err != nil {
			return entity.EmptySnapshot(), fmt.Errorf("malformed last_update in %s: %w", s.path, err)
		}
		snap.LastUpdate = t
	}

	for key, dp := range disk.Pairs {
		pair, err := decodePair(dp)
		if err != nil {
			return entity.EmptySnapshot(), fmt.Errorf("malformed pair %s in %s: %w", key, s.path, err)
		}
		snap.Pairs[pair.Key()] = pair
	}

	s.logger.Debug("Snapshot loaded", map[string]interface{}{
		"path":    s.path,
		"pairs":   snap.Len(),
		"version": snap.Version,
	})
	return snap, nil
}

// Save writes the snapshot to a temporary file and atomically renames it
// over the target, so a crash mid-write cannot corrupt the previous file.
func (s *FileSnapshotStore) Save(ctx context.Context, snap *entity.Snapshot) error {
	disk := diskSnapshot{
		Pairs:   make(map[string]diskPair, len(snap.Pairs)),
		Version: snap.Version,
	}
	if !snap.LastUpdate.IsZero() {
		disk.LastUpdate = snap.LastUpdate.UTC().Format(time.RFC3339Nano)
	}
	for key, p := range snap.Pairs {
		disk.Pairs[key.String()] = encodePair(p)
	}

	data, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	s.logger.Debug("Snapshot saved", map[string]interface{}{
		"path":    s.path,
		"pairs":   snap.Len(),
		"version": snap.Version,
	})
	return nil
}

func encodePair(p entity.RatePair) diskPair {
	return diskPair{
		Base:       p.Base.String(),
		Quote:      p.Quote.String(),
		Rate:       json.Number(p.Rate.String()),
		ObservedAt: p.ObservedAt.UTC().Format(time.RFC3339Nano),
		Source:     p.Source,
	}
}

func decodePair(dp diskPair) (entity.RatePair, error) {
	base, err := entity.ParseCurrencyCode(dp.Base)
	if err != nil {
		return entity.RatePair{}, err
	}
	quote, err := entity.ParseCurrencyCode(dp.Quote)
	if err != nil {
		return entity.RatePair{}, err
	}
	rate, err := decimal.NewFromString(dp.Rate.String())
	if err != nil {
		return entity.RatePair{}, fmt.Errorf("invalid rate %q: %w", dp.Rate, err)
	}
	observed, err := time.Parse(time.RFC3339Nano, dp.ObservedAt)
	if err != nil {
		return entity.RatePair{}, fmt.Errorf("invalid observed_at %q: %w", dp.ObservedAt, err)
	}
	pair := entity.RatePair{
		Base:       base,
		Quote:      quote,
		Rate:       rate,
		ObservedAt: observed,
		Source:     dp.Source,
	}
	if err := pair.Validate(); err != nil {
		return entity.RatePair{}, err
	}
	return pair, nil
}

var _ repository.SnapshotStore = (*FileSnapshotStore)(nil)
