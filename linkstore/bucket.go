// Package linkstore implements the Link & Config Store (spec.md §4.5): a
// pluggable KV bucket abstraction over the lattice-wide store, a
// change-feed watcher that keeps cluster.LinkCache/cluster.ConfigCache in
// sync, and the put/delete/get operations the control plane drives.
package linkstore

import "context"

// Op identifies what happened to a key in a change-feed event.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

// Event is one change-feed notification.
type Event struct {
	Key   string
	Value []byte
	Op    Op
}

// Bucket is the pluggable lattice-wide KV abstraction spec.md §4.5 calls
// for: "a bucket interface (get, compare-and-swap, delete, watch) so the
// store can run against an embedded database in single-host mode or a
// clustered KV bucket in a real lattice deployment."
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// CAS writes value only if the key's current value equals expect (nil
	// expect means "key must not exist"). Returns PreconditionFailed on
	// mismatch.
	CAS(ctx context.Context, key string, expect, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// Watch streams every change-feed Event until ctx is cancelled.
	Watch(ctx context.Context) (<-chan Event, error)
	Close() error
}
