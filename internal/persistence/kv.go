package persistence

import (
	"context"
	"errors"

	"walk_tracker/internal/tracking"
)

var (
	ErrWalkNotFound = errors.New("walk not found")
	// ErrDuplicateWalk is the machine's sentinel so a replayed final write
	// can be recognised without importing this package.
	ErrDuplicateWalk = tracking.ErrDuplicateWalk
)

// KV is the small key-value store shared by the in-flight snapshot and the
// widget hand-off. PutMany must apply all values or none.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// GetMany omits missing keys from the result.
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	PutMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
