package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/logger"
)

// Lookup identifies one record: directly by ID, or by the (Kind, Host)
// pair, which maps to at most one registered record. ID wins when both are
// set.
type Lookup struct {
	ID   string
	Kind string
	Host string
}

// lookupID resolves a Lookup to a record id without touching the primary
// key. An explicit ID is taken as-is.
func (r *Registry) lookupID(ctx context.Context, by Lookup) (string, error) {
	if by.ID != "" {
		return by.ID, nil
	}
	return r.ResolveID(ctx, by.Kind, by.Host)
}

// ResolveID returns the id registered under the (kind, host) alias. Both
// parts are required; the alias holds a single id, so the pair is unique
// across the namespace.
func (r *Registry) ResolveID(ctx context.Context, kind, host string) (string, error) {
	if kind == "" || host == "" {
		return "", fmt.Errorf("%w: resolving a record needs both kind and host", ErrInvalidArgument)
	}
	kv, err := r.store.Get(ctx, r.keys.TypeHost(kind, host))
	if err != nil {
		return "", err
	}
	if kv == nil {
		return "", fmt.Errorf("%s/%s: %w", kind, host, ErrNotFound)
	}
	return string(kv.Value), nil
}

// IsUp reports whether the record currently sits in the UP partition. A
// record that does not exist, never registered, or already expired reports
// false rather than an error: callers route on proof of liveness, and a
// vanished record is simply not alive. Only transport failures surface as
// errors.
func (r *Registry) IsUp(ctx context.Context, by Lookup) (bool, error) {
	id, err := r.lookupID(ctx, by)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	kv, err := r.store.Get(ctx, r.keys.Status(domain.StatusUp, id))
	if err != nil {
		return false, err
	}
	return kv != nil, nil
}

// GetOne fetches the full record.
func (r *Registry) GetOne(ctx context.Context, by Lookup) (*domain.ServiceRecord, error) {
	id, err := r.lookupID(ctx, by)
	if err != nil {
		return nil, err
	}

	kv, err := r.store.Get(ctx, r.keys.Primary(id))
	if err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	rec, err := r.codec.Decode(kv.Value)
	if err != nil {
		return nil, fmt.Errorf("stored record %s: %w", id, err)
	}
	return rec, nil
}

// Query filters GetMany. Values within one field are alternatives (OR);
// distinct fields combine conjunctively (AND). The zero Query matches
// every record.
type Query struct {
	IDs      []string
	Kinds    []string
	Hosts    []string
	Regions  []string
	Statuses []domain.Status
}

func (q Query) matches(rec *domain.ServiceRecord) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, rec.ID) {
		return false
	}
	if len(q.Kinds) > 0 && !slices.Contains(q.Kinds, rec.Kind) {
		return false
	}
	if len(q.Hosts) > 0 && !slices.Contains(q.Hosts, rec.Host) {
		return false
	}
	if len(q.Regions) > 0 && !slices.Contains(q.Regions, rec.Region) {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, rec.Status) {
		return false
	}
	return true
}

// GetMany scans every primary record and filters in memory. The secondary
// indexes only accelerate single-record lookups; arbitrary filter
// combinations have no composite index, so listing is deliberately the
// slow path. Records whose payload no longer decodes are skipped with a
// warning instead of failing the whole scan.
func (r *Registry) GetMany(ctx context.Context, q Query) ([]*domain.ServiceRecord, error) {
	kvs, err := r.store.GetPrefix(ctx, r.keys.PrimaryPrefix())
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ServiceRecord, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := r.codec.Decode(kv.Value)
		if err != nil {
			r.log.Warn("skipping undecodable record",
				logger.String("key", kv.Key),
				logger.Error(err),
			)
			continue
		}
		if q.matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
