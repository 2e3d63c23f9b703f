package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/MrSnakeDoc/vigil/internal/registry"
)

const defaultOpTimeout = 5 * time.Second

// Store adapts the etcd v3 client to registry.Store. It owns no keyspace
// decisions: keys arrive fully formed and are used verbatim.
type Store struct {
	kv      clientv3.KV
	lease   clientv3.Lease
	watcher clientv3.Watcher
	timeout time.Duration
}

// NewStore wraps an established client. timeout bounds every unary call;
// watches are long-lived and follow their caller's context instead.
func NewStore(client *clientv3.Client, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		kv:      client.KV,
		lease:   client.Lease,
		watcher: client.Watcher,
		timeout: timeout,
	}
}

var _ registry.Store = (*Store)(nil)

// Get reads one key. A missing key returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*registry.KeyValue, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(opCtx, key)
	if err != nil {
		return nil, storeErr("get", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	kv := toKeyValue(resp.Kvs[0])
	return &kv, nil
}

// GetPrefix reads every key under prefix; etcd returns them in key order.
func (s *Store) GetPrefix(ctx context.Context, prefix string) ([]registry.KeyValue, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(opCtx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, storeErr("get prefix", err)
	}

	out := make([]registry.KeyValue, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, toKeyValue(kv))
	}
	return out, nil
}

// Grant creates a lease. etcd counts lease TTLs in whole seconds with a
// server-side minimum, so sub-second requests are rounded up to one second.
func (s *Store) Grant(ctx context.Context, ttl time.Duration) (registry.LeaseID, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	resp, err := s.lease.Grant(opCtx, seconds)
	if err != nil {
		return registry.NoLease, storeErr("lease grant", err)
	}
	return registry.LeaseID(resp.ID), nil
}

// KeepAlive resets the clock on one lease. A lease etcd no longer knows
// maps to ErrNotFound: to the caller the record behind it is simply gone.
func (s *Store) KeepAlive(ctx context.Context, id registry.LeaseID) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.lease.KeepAliveOnce(opCtx, clientv3.LeaseID(id)); err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return fmt.Errorf("lease %d: %w", id, registry.ErrNotFound)
		}
		return storeErr("lease keepalive", err)
	}
	return nil
}

// Commit applies the transaction and reports whether its compares held.
// A put referencing a lease that expired mid-flight is a lost race with
// the expiry, so it surfaces as ErrConflict rather than a transport error.
func (s *Store) Commit(ctx context.Context, txn registry.Txn) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmps := make([]clientv3.Cmp, 0, len(txn.Compares))
	for _, c := range txn.Compares {
		cmps = append(cmps, clientv3.Compare(clientv3.Version(c.Key), "=", c.Version))
	}

	ops := make([]clientv3.Op, 0, len(txn.Ops))
	for _, op := range txn.Ops {
		switch op.Kind {
		case registry.OpPut:
			if op.Lease != registry.NoLease {
				ops = append(ops, clientv3.OpPut(op.Key, string(op.Value), clientv3.WithLease(clientv3.LeaseID(op.Lease))))
			} else {
				ops = append(ops, clientv3.OpPut(op.Key, string(op.Value)))
			}
		case registry.OpDelete:
			ops = append(ops, clientv3.OpDelete(op.Key))
		}
	}

	resp, err := s.kv.Txn(opCtx).If(cmps...).Then(ops...).Commit()
	if err != nil {
		if errors.Is(err, rpctypes.ErrLeaseNotFound) {
			return false, fmt.Errorf("txn lease vanished: %w", registry.ErrConflict)
		}
		return false, storeErr("txn", err)
	}
	return resp.Succeeded, nil
}

// Watch streams changes to one key until ctx ends. Events are relayed on
// an unbuffered channel, so consumption paces delivery; the channel closes
// when the upstream watch terminates for any reason.
func (s *Store) Watch(ctx context.Context, key string) <-chan registry.WatchEvent {
	out := make(chan registry.WatchEvent)
	wch := s.watcher.Watch(ctx, key)

	go func() {
		defer close(out)
		for resp := range wch {
			if resp.Canceled || resp.Err() != nil {
				return
			}
			for _, ev := range resp.Events {
				event := registry.WatchEvent{
					Type:  registry.EventPut,
					Key:   string(ev.Kv.Key),
					Value: ev.Kv.Value,
				}
				if ev.Type == clientv3.EventTypeDelete {
					event.Type = registry.EventDelete
					event.Value = nil
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func toKeyValue(kv *mvccpb.KeyValue) registry.KeyValue {
	return registry.KeyValue{
		Key:     string(kv.Key),
		Value:   kv.Value,
		Version: kv.Version,
		Lease:   registry.LeaseID(kv.Lease),
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("etcd %s: %w", op, errors.Join(registry.ErrStoreUnavailable, err))
}
