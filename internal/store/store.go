// Package store defines the durable-store contract the engine is built
// against (spec.md §6): a named keyed mapping over ClusterRecord with
// serializable, per-key transactional semantics. The production
// implementation lives in the hosting runtime (out of scope, spec.md §1);
// MemoryDictionary here is the in-process reference implementation used by
// every package's tests and by cmd/partyfleetd's standalone demo mode.
package store

import (
	"context"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
)

// DictionaryName is the mapping name spec.md §6 requires.
const DictionaryName = "clusterDictionary"

// LockMode selects the locking strength TryGet acquires on a key for the
// lifetime of the enclosing transaction.
type LockMode int

const (
	// LockDefault takes no exclusive lock; concurrent readers are fine.
	LockDefault LockMode = iota
	// LockUpdate excludes concurrent updates against the same key for the
	// lifetime of the transaction (spec.md §5's "update lock").
	LockUpdate
)

// Transaction is the root-level transactional handle spec.md §6 describes.
// All Dictionary mutation must happen through a Transaction obtained from
// the same Store the Dictionary was fetched from.
type Transaction interface {
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Dictionary is the transactional keyed mapping spec.md §6 describes,
// specialized to ClusterRecord since this engine never stores anything
// else in it.
type Dictionary interface {
	// Enumerate returns every record in the mapping's stable enumeration
	// order, reflecting the last committed state.
	Enumerate(ctx context.Context) ([]clusterapi.ClusterRecord, error)
	// Count is len(Enumerate), without materializing the slice.
	Count(ctx context.Context) (int, error)
	// TryGet reads the current value for key within tx, optionally
	// acquiring an update lock. The bool reports whether the key exists.
	TryGet(ctx context.Context, tx Transaction, key string, lock LockMode) (clusterapi.ClusterRecord, bool, error)
	// Add inserts a new key. It is an error (surfaced at Commit) to Add a
	// key that already exists.
	Add(ctx context.Context, tx Transaction, key string, value clusterapi.ClusterRecord) error
	// Set overwrites the value for an existing key.
	Set(ctx context.Context, tx Transaction, key string, value clusterapi.ClusterRecord) error
	// TryRemove deletes key if present, reporting whether it was present.
	TryRemove(ctx context.Context, tx Transaction, key string) (bool, error)
}

// Store is the root-level state manager handle: it hands out named
// Dictionaries and begins Transactions that span them.
type Store interface {
	// GetOrCreate returns the named Dictionary, creating it empty on first
	// use.
	GetOrCreate(ctx context.Context, name string) (Dictionary, error)
	// BeginTransaction starts a new serializable Transaction.
	BeginTransaction(ctx context.Context) (Transaction, error)
}
