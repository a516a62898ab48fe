package storage

import (
	"context"

	"spotHook/internal/model"
)

// SnapshotSink defines a sink for pool snapshots.
type SnapshotSink interface {
	PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error
}

// StateStore persists the last processed timestamp.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

// Fanout writes every batch to each sink in order and stops at the first error.
type Fanout []SnapshotSink

func (f Fanout) PutSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	for _, sink := range f {
		if err := sink.PutSnapshots(ctx, snapshots); err != nil {
			return err
		}
	}
	return nil
}
