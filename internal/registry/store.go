package registry

import (
	"context"
	"time"
)

// LeaseID identifies a TTL lease granted by the store. All keys written for
// one record share one lease, so the whole record expires as a unit.
type LeaseID int64

// NoLease marks the absence of a lease.
const NoLease LeaseID = 0

// KeyValue is one stored entry as returned by reads.
type KeyValue struct {
	Key   string
	Value []byte

	// Version counts writes to the key since it was created. A live key
	// always has Version >= 1, so comparing against 0 asserts absence.
	Version int64

	// Lease is the lease the key is attached to, NoLease when none.
	Lease LeaseID
}

// Compare guards a transaction on the write-version of one key.
// Version 0 asserts the key does not exist.
type Compare struct {
	Key     string
	Version int64
}

// OpKind discriminates transaction operations.
type OpKind int

const (
	// OpPut writes a key, optionally attached to a lease.
	OpPut OpKind = iota

	// OpDelete removes a key. Deleting an absent key is not an error.
	OpDelete
)

// Op is one mutation inside a transaction.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
	Lease LeaseID
}

// Put returns a write operation attached to the given lease.
func Put(key string, value []byte, lease LeaseID) Op {
	return Op{Kind: OpPut, Key: key, Value: value, Lease: lease}
}

// Delete returns a removal operation.
func Delete(key string) Op {
	return Op{Kind: OpDelete, Key: key}
}

// Txn is an atomic batch: when every compare holds, all ops apply; when any
// compare fails, none do.
type Txn struct {
	Compares []Compare
	Ops      []Op
}

// EventType discriminates watch events.
type EventType int

const (
	// EventPut reports a key was written.
	EventPut EventType = iota

	// EventDelete reports a key was removed, by deletion or lease expiry.
	EventDelete
)

// WatchEvent is one change observed on a watched key.
type WatchEvent struct {
	Type  EventType
	Key   string
	Value []byte
}

// Store is the transactional keyspace the registry runs on. The production
// implementation sits in internal/store/etcd; tests substitute in-memory
// fakes.
//
// Every method returns ErrStoreUnavailable (wrapped) on transport failure.
type Store interface {
	// Get reads one key. A missing key returns (nil, nil).
	Get(ctx context.Context, key string) (*KeyValue, error)

	// GetPrefix reads every key under prefix, in key order.
	GetPrefix(ctx context.Context, prefix string) ([]KeyValue, error)

	// Grant creates a lease expiring after ttl unless kept alive.
	Grant(ctx context.Context, ttl time.Duration) (LeaseID, error)

	// KeepAlive resets the clock on an existing lease. A vanished lease
	// returns ErrNotFound.
	KeepAlive(ctx context.Context, id LeaseID) error

	// Commit applies txn atomically and reports whether the compares
	// held. A false return means no op was applied.
	Commit(ctx context.Context, txn Txn) (bool, error)

	// Watch streams changes to one key until ctx is canceled. The store
	// closes the channel when the watch ends for any reason.
	Watch(ctx context.Context, key string) <-chan WatchEvent
}
