package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// watchBuffer is how many undelivered events a subscription may accumulate
// before the producing transaction blocks on it.
const watchBuffer = 64

type entry struct {
	value   []byte
	version int64
	lease   registry.LeaseID
}

type lease struct {
	keys     map[string]struct{}
	ttl      time.Duration
	deadline time.Time
	timer    *time.Timer
}

type watcher struct {
	key string
	ch  chan registry.WatchEvent
	ctx context.Context
}

// Store is an in-memory registry.Store with the same transaction, lease and
// watch semantics as the etcd-backed one. It backs unit tests and
// single-process experiments; nothing survives a restart.
//
// Leases expire on real timers, so sub-second TTLs work the way they do
// against a live cluster. Watchers must keep draining or cancel: once a
// subscription falls watchBuffer events behind, transactions block on it.
type Store struct {
	mu        sync.Mutex
	entries   map[string]*entry
	leases    map[registry.LeaseID]*lease
	nextLease registry.LeaseID
	watchers  map[int]*watcher
	nextWatch int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		entries:  make(map[string]*entry),
		leases:   make(map[registry.LeaseID]*lease),
		watchers: make(map[int]*watcher),
	}
}

// Get reads one key. A missing key returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*registry.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	kv := keyValue(key, e)
	return &kv, nil
}

// GetPrefix reads every key under prefix, in key order.
func (s *Store) GetPrefix(ctx context.Context, prefix string) ([]registry.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0)
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]registry.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyValue(k, s.entries[k]))
	}
	return out, nil
}

// Grant creates a lease that expires after ttl unless kept alive.
func (s *Store) Grant(ctx context.Context, ttl time.Duration) (registry.LeaseID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLease++
	id := s.nextLease
	l := &lease{
		keys:     make(map[string]struct{}),
		ttl:      ttl,
		deadline: time.Now().Add(ttl),
	}
	l.timer = time.AfterFunc(ttl, func() { s.expire(id) })
	s.leases[id] = l
	return id, nil
}

// KeepAlive pushes the lease deadline out by its original ttl.
func (s *Store) KeepAlive(ctx context.Context, id registry.LeaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[id]
	if !ok {
		return fmt.Errorf("lease %d: %w", id, registry.ErrNotFound)
	}
	l.deadline = time.Now().Add(l.ttl)
	l.timer.Reset(l.ttl)
	return nil
}

// expire removes every key bound to the lease, unless a keepalive moved the
// deadline after this timer was scheduled.
func (s *Store) expire(id registry.LeaseID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[id]
	if !ok {
		return
	}
	if remaining := time.Until(l.deadline); remaining > 0 {
		l.timer.Reset(remaining)
		return
	}
	delete(s.leases, id)

	keys := make([]string, 0, len(l.keys))
	for k := range l.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if e, ok := s.entries[k]; ok && e.lease == id {
			delete(s.entries, k)
			s.notifyLocked(registry.WatchEvent{Type: registry.EventDelete, Key: k})
		}
	}
}

// Commit applies txn atomically and reports whether the compares held.
func (s *Store) Commit(ctx context.Context, txn registry.Txn) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range txn.Compares {
		var version int64
		if e, ok := s.entries[c.Key]; ok {
			version = e.version
		}
		if version != c.Version {
			return false, nil
		}
	}

	for _, op := range txn.Ops {
		switch op.Kind {
		case registry.OpPut:
			if op.Lease != registry.NoLease {
				if _, ok := s.leases[op.Lease]; !ok {
					// Mirrors etcd rejecting a txn that references a
					// vanished lease.
					return false, fmt.Errorf("put %s: lease %d gone: %w", op.Key, op.Lease, registry.ErrConflict)
				}
			}
			s.putLocked(op)
		case registry.OpDelete:
			s.deleteLocked(op.Key)
		}
	}
	return true, nil
}

func (s *Store) putLocked(op registry.Op) {
	version := int64(1)
	if old, ok := s.entries[op.Key]; ok {
		version = old.version + 1
		if old.lease != op.Lease && old.lease != registry.NoLease {
			if l, ok := s.leases[old.lease]; ok {
				delete(l.keys, op.Key)
			}
		}
	}
	if op.Lease != registry.NoLease {
		s.leases[op.Lease].keys[op.Key] = struct{}{}
	}

	value := append([]byte(nil), op.Value...)
	s.entries[op.Key] = &entry{value: value, version: version, lease: op.Lease}
	s.notifyLocked(registry.WatchEvent{Type: registry.EventPut, Key: op.Key, Value: value})
}

func (s *Store) deleteLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if e.lease != registry.NoLease {
		if l, ok := s.leases[e.lease]; ok {
			delete(l.keys, key)
		}
	}
	delete(s.entries, key)
	s.notifyLocked(registry.WatchEvent{Type: registry.EventDelete, Key: key})
}

// Watch streams changes to one key until ctx is canceled. The returned
// channel closes when the watch ends; ctx must be cancelable or the
// watcher is never reclaimed.
func (s *Store) Watch(ctx context.Context, key string) <-chan registry.WatchEvent {
	ch := make(chan registry.WatchEvent, watchBuffer)

	s.mu.Lock()
	s.nextWatch++
	id := s.nextWatch
	s.watchers[id] = &watcher{key: key, ch: ch, ctx: ctx}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
		s.mu.Unlock()
	}()

	return ch
}

func (s *Store) notifyLocked(ev registry.WatchEvent) {
	for _, w := range s.watchers {
		if w.key != ev.Key || w.ctx.Err() != nil {
			continue
		}
		select {
		case w.ch <- ev:
		case <-w.ctx.Done():
		}
	}
}

func keyValue(key string, e *entry) registry.KeyValue {
	return registry.KeyValue{
		Key:     key,
		Value:   append([]byte(nil), e.value...),
		Version: e.version,
		Lease:   e.lease,
	}
}
