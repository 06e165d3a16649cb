// Package repository internal/domain/repository/snapshot_store.go
package repository

import (
	"context"

	"github.com/valutatrade/parser-service/internal/domain/entity"
)

// SnapshotStore persists the rate cache snapshot.
type SnapshotStore interface {
	// Load reads the persisted snapshot. It always returns a usable
	// snapshot: when the file is absent the empty version-0 snapshot is
	// returned with a nil error, and when it is unreadable or malformed
	// the empty snapshot is returned together with a non-nil error so the
	// caller can report degraded state while continuing to operate.
	Load(ctx context.Context) (*entity.Snapshot, error)

	// Save writes the snapshot so that a crash mid-write cannot corrupt
	// the previous on-disk state. It fails only if the filesystem itself
	// is unwritable.
	Save(ctx context.Context, snap *entity.Snapshot) error
}
