// Package objectstore implements the typed, multi-indexed, reversible-session
// entity store spec.md §3.4 and §4.1 describe: every consensus entity kind
// lives in its own Store[K], all stores in a node share one Database whose
// undo-session stack can commit or discard any in-flight set of writes.
//
// Grounded on the teacher's core/ledger.go Snapshot(func() error) error
// closure-based rollback, generalized here into an explicit session object
// so that nested nested nested child sessions can compose (push/squash/
// commit/discard) the way spec.md §3.4 requires instead of a single global
// snapshot stack.
package objectstore

import (
	"fmt"
	"sort"
	"sync"

	"nodechain/chainerr"
)

// HasID is implemented by every entity kind's pointer receiver. Entities
// embed Base to get it for free.
type HasID interface {
	GetID() uint64
	setID(uint64)
}

// Base is embedded by every entity struct to provide its monotonic
// identifier (spec.md §3.2: "Each entity has a monotonic 64-bit identifier
// and belongs to exactly one index").
type Base struct {
	ID uint64 `json:"id"`
}

func (b *Base) GetID() uint64   { return b.ID }
func (b *Base) setID(id uint64) { b.ID = id }

// Database owns the undo-session stack shared by every Store registered
// against it, and the chain revision counter (spec.md §4.1 "revision()").
type Database struct {
	mu       sync.Mutex
	revision uint64
	sessions []*Session
}

func NewDatabase() *Database { return &Database{} }

// Revision returns the current revision; it equals the head block number
// after a successful block application (spec.md §4.1).
func (db *Database) Revision() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.revision
}

// SetRevision sets the commit boundary after reindex (spec.md §4.1).
func (db *Database) SetRevision(n uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.revision = n
}

// recordOp appends an undo closure to the topmost session, if any session
// is active and recording is enabled for it. Called by every Store mutation.
func (db *Database) recordOp(undo func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.sessions) == 0 {
		return
	}
	top := db.sessions[len(db.sessions)-1]
	if !top.enabled {
		return
	}
	top.ops = append(top.ops, undo)
}

// StartUndoSession pushes a new session frame. Operations performed while
// it is topmost are recorded (if enabled) so they can later be discarded.
func (db *Database) StartUndoSession(enabled bool) *Session {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := &Session{db: db, enabled: enabled}
	db.sessions = append(db.sessions, s)
	return s
}

// UndoAll discards every session back to the last commit (spec.md §4.1).
func (db *Database) UndoAll() {
	for {
		db.mu.Lock()
		n := len(db.sessions)
		db.mu.Unlock()
		if n == 0 {
			return
		}
		db.mu.Lock()
		top := db.sessions[len(db.sessions)-1]
		db.mu.Unlock()
		top.Discard()
	}
}

// Session is a stack frame of pending object-store writes (spec.md §3.4,
// §4.1). Exactly one of Push, Squash, Commit, or Discard must be called
// before the session is dropped; callers that forget must call Discard
// themselves (Go has no destructors) -- every pipeline code path here does
// so via defer.
type Session struct {
	db      *Database
	enabled bool
	ops     []func()
	closed  bool
}

func (s *Session) indexInStack() int {
	for i := len(s.db.sessions) - 1; i >= 0; i-- {
		if s.db.sessions[i] == s {
			return i
		}
	}
	return -1
}

// Push finalizes the session as an independent, still-undoable frame: it
// remains on the stack rather than merging into its parent.
func (s *Session) Push() {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.closed = true
}

// Squash merges this session's writes into its parent frame so that
// undoing the parent undoes both together.
func (s *Session) Squash() {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	idx := s.indexInStack()
	if idx <= 0 {
		// no parent to squash into: behave like Push.
		s.closed = true
		return
	}
	parent := s.db.sessions[idx-1]
	parent.ops = append(parent.ops, s.ops...)
	s.db.sessions = append(s.db.sessions[:idx], s.db.sessions[idx+1:]...)
	s.closed = true
}

// Commit marks this session and every session below it on the stack as
// permanent: their undo information is discarded and the revision advances.
func (s *Session) Commit() {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	idx := s.indexInStack()
	if idx < 0 {
		s.closed = true
		return
	}
	s.db.sessions = s.db.sessions[idx+1:]
	s.db.revision++
	s.closed = true
}

// Discard reverts every write made while this session was active, in
// reverse order, then pops it off the stack.
func (s *Session) Discard() {
	s.db.mu.Lock()
	idx := s.indexInStack()
	if idx < 0 {
		s.db.mu.Unlock()
		return
	}
	ops := s.ops
	s.db.sessions = append(s.db.sessions[:idx], s.db.sessions[idx+1:]...)
	s.closed = true
	s.db.mu.Unlock()

	for i := len(ops) - 1; i >= 0; i-- {
		ops[i]()
	}
}

// Closed reports whether Push/Squash/Commit/Discard has already run.
func (s *Session) Closed() bool { return s.closed }

// index is the internal representation of one secondary index on a Store.
type index[K any] struct {
	name    string
	unique  bool
	keyFunc func(*K) (string, bool) // ok=false means "no key" (entity excluded from this index)
	byKey   map[string]map[uint64]struct{}
}

func newIndex[K any](name string, unique bool, keyFunc func(*K) (string, bool)) *index[K] {
	return &index[K]{name: name, unique: unique, keyFunc: keyFunc, byKey: make(map[string]map[uint64]struct{})}
}

func (ix *index[K]) insert(id uint64, e *K) error {
	key, ok := ix.keyFunc(e)
	if !ok {
		return nil
	}
	if ix.unique {
		if existing, found := ix.byKey[key]; found && len(existing) > 0 {
			return fmt.Errorf("index %q: key %q already in use", ix.name, key)
		}
	}
	set, ok := ix.byKey[key]
	if !ok {
		set = make(map[uint64]struct{})
		ix.byKey[key] = set
	}
	set[id] = struct{}{}
	return nil
}

func (ix *index[K]) remove(id uint64, e *K) {
	key, ok := ix.keyFunc(e)
	if !ok {
		return
	}
	set, ok := ix.byKey[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(ix.byKey, key)
	}
}

// Store is a typed collection of entities of kind K (pointer type *K must
// satisfy HasID; entities embed Base to get that automatically) with any
// number of caller-declared secondary indexes.
type Store[K any] struct {
	mu      sync.RWMutex
	db      *Database
	name    string
	items   map[uint64]*K
	nextID  uint64
	indexes map[string]*index[K]
	idOf    func(*K) uint64
}

// NewStore creates an empty Store registered against db. idOf must return
// the entity's id (typically `func(k *K) uint64 { return k.ID }`).
func NewStore[K any](db *Database, name string, idOf func(*K) uint64) *Store[K] {
	return &Store[K]{
		db:      db,
		name:    name,
		items:   make(map[uint64]*K),
		nextID:  1,
		indexes: make(map[string]*index[K]),
		idOf:    idOf,
	}
}

// WithUniqueIndex registers a unique secondary index and returns the store
// for chaining.
func (s *Store[K]) WithUniqueIndex(name string, keyFunc func(*K) (string, bool)) *Store[K] {
	s.indexes[name] = newIndex[K](name, true, keyFunc)
	return s
}

// WithIndex registers a non-unique secondary index and returns the store
// for chaining.
func (s *Store[K]) WithIndex(name string, keyFunc func(*K) (string, bool)) *Store[K] {
	s.indexes[name] = newIndex[K](name, false, keyFunc)
	return s
}

func (s *Store[K]) setID(k *K, id uint64, setter func(*K, uint64)) {
	setter(k, id)
}

// Create allocates a new K with the next identifier, runs ctor to populate
// it, and inserts it into every declared index. idSetter assigns the newly
// allocated id onto the entity (typically `func(k *K, id uint64) { k.ID = id }`).
func (s *Store[K]) Create(idSetter func(*K, uint64), ctor func(*K)) (*K, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var k K
	idSetter(&k, s.nextID)
	ctor(&k)
	if s.idOf(&k) != s.nextID {
		// ctor must not override the assigned id.
		idSetter(&k, s.nextID)
	}
	id := s.nextID

	done := make([]*index[K], 0, len(s.indexes))
	for _, ix := range s.indexes {
		if err := ix.insert(id, &k); err != nil {
			for _, d := range done {
				d.remove(id, &k)
			}
			return nil, chainerr.New(chainerr.UniqueKeyViolation, err.Error())
		}
		done = append(done, ix)
	}

	s.items[id] = &k
	s.nextID++

	ptr := &k
	s.db.recordOp(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.items, id)
		for _, ix := range s.indexes {
			ix.remove(id, ptr)
		}
		if s.nextID == id+1 {
			s.nextID = id
		}
	})
	return ptr, nil
}

// Get returns the entity with the given id, failing with NotFound if absent.
func (s *Store[K]) Get(id uint64) (*K, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.items[id]
	if !ok {
		return nil, chainerr.New(chainerr.NotFound, fmt.Sprintf("%s: id %d", s.name, id))
	}
	return k, nil
}

// Find returns the entity with the given id, or (nil, false) if absent.
func (s *Store[K]) Find(id uint64) (*K, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.items[id]
	return k, ok
}

// GetByIndex looks up a single entity by a unique secondary index.
func (s *Store[K]) GetByIndex(indexName, key string) (*K, error) {
	k, ok := s.FindByIndex(indexName, key)
	if !ok {
		return nil, chainerr.New(chainerr.NotFound, fmt.Sprintf("%s.%s: %q", s.name, indexName, key))
	}
	return k, nil
}

// FindByIndex looks up a single entity by a unique secondary index.
func (s *Store[K]) FindByIndex(indexName, key string) (*K, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[indexName]
	if !ok {
		return nil, false
	}
	set, ok := ix.byKey[key]
	if !ok || len(set) == 0 {
		return nil, false
	}
	for id := range set {
		return s.items[id], true
	}
	return nil, false
}

// ListByIndex returns every entity sharing a non-unique secondary index
// key, ordered by ascending id for determinism.
func (s *Store[K]) ListByIndex(indexName, key string) []*K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[indexName]
	if !ok {
		return nil
	}
	set := ix.byKey[key]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*K, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out
}

// Modify applies mutator to the entity, recomputing index positions.
// Fails with UniqueKeyViolation (leaving the entity unchanged) if the
// mutation would collide with another entity's unique key.
func (s *Store[K]) Modify(k *K, mutator func(*K)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.idOf(k)
	old := *k // shallow copy of the pre-mutation value for undo and rollback

	for _, ix := range s.indexes {
		ix.remove(id, &old)
	}
	mutator(k)

	done := make([]*index[K], 0, len(s.indexes))
	for _, ix := range s.indexes {
		if err := ix.insert(id, k); err != nil {
			for _, d := range done {
				d.remove(id, k)
			}
			*k = old
			for _, ix2 := range s.indexes {
				_ = ix2.insert(id, k)
			}
			return chainerr.New(chainerr.UniqueKeyViolation, err.Error())
		}
		done = append(done, ix)
	}

	s.db.recordOp(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, ix := range s.indexes {
			ix.remove(id, k)
		}
		*k = old
		for _, ix := range s.indexes {
			_ = ix.insert(id, k)
		}
	})
	return nil
}

// Remove erases the entity from the store and every index.
func (s *Store[K]) Remove(k *K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.idOf(k)
	old := *k
	delete(s.items, id)
	for _, ix := range s.indexes {
		ix.remove(id, k)
	}
	s.db.recordOp(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		*k = old
		s.items[id] = k
		for _, ix := range s.indexes {
			_ = ix.insert(id, k)
		}
	})
}

// Count returns the number of live entities.
func (s *Store[K]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All returns every entity ordered by ascending id (deterministic
// full-table scan, used by periodic cleanup jobs).
func (s *Store[K]) All() []*K {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*K, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.items[id])
	}
	return out
}
