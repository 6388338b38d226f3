package persistence

import "walk_tracker/internal/tracking"

// Store is the session machine's persistence: in-flight snapshots in a KV
// store, finished walks in the history database.
type Store struct {
	*SnapshotStore
	*HistoryStore
}

var _ tracking.Persistence = (*Store)(nil)

func NewStore(snapshots *SnapshotStore, history *HistoryStore) *Store {
	return &Store{SnapshotStore: snapshots, HistoryStore: history}
}
