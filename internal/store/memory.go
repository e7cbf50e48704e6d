package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/partycluster/fleetcontroller/internal/clusterapi"
)

// MemoryStore is an in-process Store, standing in for the external state
// manager (spec.md §1) in tests and in cmd/partyfleetd's standalone mode.
// It is not a substitute for a durable, crash-surviving implementation; it
// exists to let every other package be written and tested against the real
// Store/Dictionary contract.
type MemoryStore struct {
	mu   sync.Mutex
	dict *MemoryDictionary
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, name string) (Dictionary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dict == nil {
		s.dict = newMemoryDictionary(name)
	}
	if s.dict.name != name {
		return nil, fmt.Errorf("store: only one dictionary (%q) supported by this reference implementation, got %q", s.dict.name, name)
	}
	return s.dict, nil
}

func (s *MemoryStore) BeginTransaction(_ context.Context) (Transaction, error) {
	return &memoryTransaction{id: uuid.NewString()}, nil
}

var _ Store = (*MemoryStore)(nil)

// memoryTransaction buffers writes and tracks held per-key update locks
// until Commit or Abort resolves them. A transaction may only be used
// against the Dictionary(s) it actually touched; each Dictionary method
// type-asserts tx back to *memoryTransaction to reach its staging area.
type memoryTransaction struct {
	id string

	mu       sync.Mutex
	resolved bool

	// dicts is the set of dictionaries this transaction has staged writes
	// against, so Commit/Abort can release their locks.
	dicts []*MemoryDictionary
	// heldKeys maps dictionary -> set of keys this tx holds an update lock
	// on.
	heldKeys map[*MemoryDictionary]map[string]bool

	// pending holds staged mutations per dictionary: a nil *record entry
	// means "removed", a non-nil entry means "set to this value". added marks
	// the keys staged by Add (they are also in pending), so Commit can reject
	// an Add of a key that already exists.
	pending map[*MemoryDictionary]map[string]*clusterapi.ClusterRecord
	added   map[*MemoryDictionary]map[string]bool
}

func (t *memoryTransaction) stage(d *MemoryDictionary) {
	if t.pending == nil {
		t.pending = map[*MemoryDictionary]map[string]*clusterapi.ClusterRecord{}
		t.added = map[*MemoryDictionary]map[string]bool{}
		t.heldKeys = map[*MemoryDictionary]map[string]bool{}
	}
	if _, ok := t.pending[d]; !ok {
		t.pending[d] = map[string]*clusterapi.ClusterRecord{}
		t.added[d] = map[string]bool{}
		t.heldKeys[d] = map[string]bool{}
		t.dicts = append(t.dicts, d)
	}
}

func (t *memoryTransaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return fmt.Errorf("store: transaction %s already resolved", t.id)
	}
	t.resolved = true
	for _, d := range t.dicts {
		if err := d.applyCommit(t); err != nil {
			d.releaseLocks(t)
			return err
		}
	}
	for _, d := range t.dicts {
		d.releaseLocks(t)
	}
	return nil
}

func (t *memoryTransaction) Abort(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return nil
	}
	t.resolved = true
	for _, d := range t.dicts {
		d.releaseLocks(t)
	}
	return nil
}

var _ Transaction = (*memoryTransaction)(nil)

// MemoryDictionary is the in-process Dictionary reference implementation.
type MemoryDictionary struct {
	name string

	mu      sync.RWMutex
	records map[string]clusterapi.ClusterRecord
	order   []string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
	// owner tracks which transaction currently holds a key's update lock,
	// so the same transaction can re-acquire it without deadlocking itself.
	owner map[string]*memoryTransaction
}

func newMemoryDictionary(name string) *MemoryDictionary {
	return &MemoryDictionary{
		name:    name,
		records: map[string]clusterapi.ClusterRecord{},
		locks:   map[string]*sync.Mutex{},
		owner:   map[string]*memoryTransaction{},
	}
}

func (d *MemoryDictionary) lockFor(key string) *sync.Mutex {
	d.lockMu.Lock()
	defer d.lockMu.Unlock()
	l, ok := d.locks[key]
	if !ok {
		l = &sync.Mutex{}
		d.locks[key] = l
	}
	return l
}

func (d *MemoryDictionary) acquire(tx *memoryTransaction, key string) {
	d.lockMu.Lock()
	if d.owner[key] == tx {
		d.lockMu.Unlock()
		return
	}
	d.lockMu.Unlock()
	l := d.lockFor(key)

	l.Lock()

	d.lockMu.Lock()
	d.owner[key] = tx
	d.lockMu.Unlock()

	tx.stage(d)
	tx.heldKeys[d][key] = true
}

func (d *MemoryDictionary) releaseLocks(tx *memoryTransaction) {
	keys, ok := tx.heldKeys[d]
	if !ok {
		return
	}
	for key := range keys {
		d.lockMu.Lock()
		if d.owner[key] == tx {
			delete(d.owner, key)
			l := d.locks[key]
			d.lockMu.Unlock()
			l.Unlock()
			continue
		}
		d.lockMu.Unlock()
	}
}

func (d *MemoryDictionary) Enumerate(_ context.Context) ([]clusterapi.ClusterRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]clusterapi.ClusterRecord, 0, len(d.order))
	for _, key := range d.order {
		if rec, ok := d.records[key]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (d *MemoryDictionary) Count(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records), nil
}

func (d *MemoryDictionary) TryGet(_ context.Context, tx Transaction, key string, lock LockMode) (clusterapi.ClusterRecord, bool, error) {
	mtx, ok := tx.(*memoryTransaction)
	if !ok {
		return clusterapi.ClusterRecord{}, false, fmt.Errorf("store: transaction from a different store implementation")
	}
	if lock == LockUpdate {
		d.acquire(mtx, key)
	}

	mtx.mu.Lock()
	mtx.stage(d)
	if rec, ok := mtx.pending[d][key]; ok {
		mtx.mu.Unlock()
		if rec == nil {
			return clusterapi.ClusterRecord{}, false, nil
		}
		return rec.Clone(), true, nil
	}
	mtx.mu.Unlock()

	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[key]
	if !ok {
		return clusterapi.ClusterRecord{}, false, nil
	}
	return rec.Clone(), true, nil
}

func (d *MemoryDictionary) Add(_ context.Context, tx Transaction, key string, value clusterapi.ClusterRecord) error {
	mtx, ok := tx.(*memoryTransaction)
	if !ok {
		return fmt.Errorf("store: transaction from a different store implementation")
	}
	mtx.mu.Lock()
	defer mtx.mu.Unlock()
	mtx.stage(d)
	v := value.Clone()
	mtx.pending[d][key] = &v
	mtx.added[d][key] = true
	return nil
}

func (d *MemoryDictionary) Set(_ context.Context, tx Transaction, key string, value clusterapi.ClusterRecord) error {
	mtx, ok := tx.(*memoryTransaction)
	if !ok {
		return fmt.Errorf("store: transaction from a different store implementation")
	}
	mtx.mu.Lock()
	defer mtx.mu.Unlock()
	mtx.stage(d)
	v := value.Clone()
	mtx.pending[d][key] = &v
	return nil
}

func (d *MemoryDictionary) TryRemove(_ context.Context, tx Transaction, key string) (bool, error) {
	mtx, ok := tx.(*memoryTransaction)
	if !ok {
		return false, fmt.Errorf("store: transaction from a different store implementation")
	}
	mtx.mu.Lock()
	defer mtx.mu.Unlock()
	mtx.stage(d)

	if staged, existsInTx := mtx.pending[d][key]; existsInTx {
		mtx.pending[d][key] = nil
		return staged != nil, nil
	}
	d.mu.RLock()
	_, existed := d.records[key]
	d.mu.RUnlock()
	mtx.pending[d][key] = nil
	return existed, nil
}

func (d *MemoryDictionary) applyCommit(tx *memoryTransaction) error {
	pending, ok := tx.pending[d]
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range tx.added[d] {
		if _, existed := d.records[key]; existed {
			return fmt.Errorf("store: Add of existing key %q", key)
		}
	}
	for key, rec := range pending {
		if rec == nil {
			if _, existed := d.records[key]; existed {
				delete(d.records, key)
				d.removeFromOrder(key)
			}
			continue
		}
		if _, existed := d.records[key]; !existed {
			d.order = append(d.order, key)
		}
		d.records[key] = rec.Clone()
	}
	return nil
}

func (d *MemoryDictionary) removeFromOrder(key string) {
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

var _ Dictionary = (*MemoryDictionary)(nil)
