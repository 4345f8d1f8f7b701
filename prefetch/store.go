package prefetch

import (
	"sort"
	"sync"
)

// Option configures a Store.
type Option func(*Store)

// WithSizer replaces the default msgpack based size estimator.
func WithSizer(sizer Sizer) Option {
	return func(s *Store) {
		if sizer != nil {
			s.sizer = sizer
		}
	}
}

// WithKeyNormalizer replaces the default key normalizer.
func WithKeyNormalizer(normalizer KeyNormalizer) Option {
	return func(s *Store) {
		if normalizer != nil {
			s.keys = normalizer
		}
	}
}

// Store keeps items fetched during one unit of work, grouped by namespace
// (usually a table name) and indexed by primary key.
//
// Callers drive a pull/fill cycle: Fetch answers what it can and returns the
// remainder, the caller loads the remainder from the source of truth and hands
// the rows back through Collect. The store never talks to the source itself.
//
// Every method is safe to call from multiple goroutines, but a Fetch followed
// by a Collect is not atomic. Callers sharing a Store must serialize their
// cycles per namespace.
type Store struct {
	mu     sync.RWMutex
	slots  map[string]map[string]Slot
	size   int64
	errors []error

	config *Config
	sizer  Sizer
	keys   KeyNormalizer
}

// NewStore creates an empty Store bound to cfg. A nil cfg gets a fresh
// DefaultConfig.
func NewStore(cfg *Config, opts ...Option) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Store{
		slots:  make(map[string]map[string]Slot),
		config: cfg,
		sizer:  MsgpackSizer{},
		keys:   NewDefaultKeyNormalizer(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Fetch resolves keys against namespace.
//
// remainder holds, in input order and with duplicates preserved, every key the
// store knows nothing about. items holds one entry per occurrence of a key with
// a Present slot. Keys with an Absent slot appear in neither.
func (s *Store) Fetch(namespace string, keys []any) (remainder []any, items []any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.slots[namespace]
	if !ok || len(ns) == 0 {
		return append([]any(nil), keys...), nil
	}

	for _, key := range keys {
		slot, found := ns[s.keys.NormalizeKey(key)]
		if !found {
			remainder = append(remainder, key)
			continue
		}
		if item, present := slot.Item(); present {
			items = append(items, item)
		}
	}

	return remainder, items
}

// Collect merges freshly loaded items into namespace, keyed by keyFn. Later
// items overwrite earlier ones with the same key. Every id in requested that
// still has no slot afterwards is recorded as Absent, so later fetches for it
// are answered without going back to the source.
//
// The size counter grows by the estimated cost of the insertion.
func (s *Store) Collect(namespace string, keyFn KeyFunc, items []any, requested ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delta int64

	ns, ok := s.slots[namespace]
	if !ok {
		ns = make(map[string]Slot, len(items)+len(requested))
		s.slots[namespace] = ns
		delta += int64(len(namespace)) + slotOverhead
	}

	for _, item := range items {
		key := s.keys.NormalizeKey(keyFn(item))
		ns[key] = Present(item)
		delta += s.sizer.Size(item) + int64(len(key)) + slotOverhead
	}

	for _, id := range requested {
		key := s.keys.NormalizeKey(id)
		if _, exists := ns[key]; exists {
			continue
		}
		ns[key] = Absent()
		delta += int64(len(key)) + slotOverhead
	}

	if delta > 0 {
		s.size += delta
	}
}

// Lookup returns the slot for a single key.
func (s *Store) Lookup(namespace string, key any) (Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.slots[namespace]
	if !ok {
		return Slot{}, false
	}
	slot, ok := ns[s.keys.NormalizeKey(key)]
	return slot, ok
}

// Forget drops the slots for keys so the next Fetch reports them in the
// remainder again. With no keys the whole namespace is dropped. The size
// counter is left untouched; only Reset shrinks it.
func (s *Store) Forget(namespace string, keys ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keys) == 0 {
		delete(s.slots, namespace)
		return
	}

	ns, ok := s.slots[namespace]
	if !ok {
		return
	}
	for _, key := range keys {
		delete(ns, s.keys.NormalizeKey(key))
	}
}

// Reset clears every namespace, the size counter and the error list in one
// step and returns the store for chaining.
func (s *Store) Reset() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots = make(map[string]map[string]Slot)
	s.size = 0
	s.errors = nil
	return s
}

// RecordError appends err to the diagnostic error list. nil is ignored.
func (s *Store) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errors = append(s.errors, err)
	s.mu.Unlock()
}

// Errors returns a copy of the recorded errors in insertion order.
func (s *Store) Errors() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]error(nil), s.errors...)
}

// Size returns the approximate number of bytes collected since the last Reset.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Len returns the number of slots, present or absent, held for namespace.
func (s *Store) Len(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots[namespace])
}

// Namespaces returns the populated namespaces in sorted order.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.slots))
	for name := range s.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the configuration the store was created with.
func (s *Store) Config() *Config {
	return s.config
}

// SetHeuristics toggles the heuristics flag on the shared Config. Every store
// sharing the Config sees the change.
func (s *Store) SetHeuristics(on bool) *Store {
	s.config.SetHeuristics(on)
	return s
}

// SetTraining toggles the training flag on the shared Config.
func (s *Store) SetTraining(on bool) *Store {
	s.config.SetTraining(on)
	return s
}
