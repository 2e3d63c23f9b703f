package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/logger"
)

// Registry keeps the primary record and its three secondary indexes
// consistent. Every mutation is a single store transaction guarded by the
// primary key's write-version, so concurrent writers serialize on the
// record instead of corrupting index state.
type Registry struct {
	store Store
	keys  Keyspace
	codec Codec
	ttl   time.Duration
	log   logger.Logger
}

// New builds a Registry on top of the given store. ttl is the lease
// duration applied to every record; codec nil selects JSONCodec.
func New(store Store, keys Keyspace, codec Codec, ttl time.Duration, log logger.Logger) *Registry {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Registry{
		store: store,
		keys:  keys,
		codec: codec,
		ttl:   ttl,
		log:   log,
	}
}

// Keyspace returns the key layout the registry operates on.
func (r *Registry) Keyspace() Keyspace {
	return r.keys
}

// Update registers rec or reconciles the stored copy with it, and returns
// the lease the record lives under.
//
// A new record is written in one transaction: primary payload plus one
// pointer per index family, all bound to a fresh lease, guarded by the
// primary key not existing. An existing record is re-read, diffed, and only
// the pointers whose fields actually changed are touched; the write is
// guarded by the primary version observed during the read, so a concurrent
// writer surfaces as ErrConflict instead of leaving indexes half-moved.
//
// Updating an unchanged record is a no-op that succeeds without writing
// anything. A changed update keeps the record on its existing lease and
// resets that lease's clock, which is what makes periodic updates double as
// liveness heartbeats.
func (r *Registry) Update(ctx context.Context, rec *domain.ServiceRecord) (LeaseID, error) {
	if rec == nil || rec.ID == "" {
		return NoLease, fmt.Errorf("%w: record needs an id", ErrInvalidArgument)
	}
	if !rec.Status.Valid() {
		return NoLease, fmt.Errorf("%w: unknown status %d", ErrInvalidArgument, int32(rec.Status))
	}

	kv, err := r.store.Get(ctx, r.keys.Primary(rec.ID))
	if err != nil {
		return NoLease, err
	}
	if kv == nil {
		return r.create(ctx, rec)
	}

	cur, err := r.codec.Decode(kv.Value)
	if err != nil {
		return NoLease, fmt.Errorf("stored record %s: %w", rec.ID, err)
	}
	if cur.Equal(rec) {
		// Nothing to write. The caller keeps the lease fresh via Renew.
		return kv.Lease, nil
	}
	return r.rewrite(ctx, kv, cur, rec)
}

func (r *Registry) create(ctx context.Context, rec *domain.ServiceRecord) (LeaseID, error) {
	lease, err := r.store.Grant(ctx, r.ttl)
	if err != nil {
		return NoLease, err
	}
	payload, err := r.codec.Encode(rec)
	if err != nil {
		return NoLease, err
	}

	txn := Txn{
		Compares: []Compare{{Key: r.keys.Primary(rec.ID), Version: 0}},
		Ops:      r.storeOps(diffIndexOps(r.keys, nil, rec), payload, lease),
	}
	committed, err := r.store.Commit(ctx, txn)
	if err != nil {
		return NoLease, err
	}
	if !committed {
		return NoLease, fmt.Errorf("create %s: %w", rec.ID, ErrConflict)
	}

	r.log.Debug("service registered",
		logger.String("id", rec.ID),
		logger.String("kind", rec.Kind),
		logger.String("host", rec.Host),
		logger.Int64("lease", int64(lease)),
	)
	return lease, nil
}

func (r *Registry) rewrite(ctx context.Context, kv *KeyValue, cur, rec *domain.ServiceRecord) (LeaseID, error) {
	lease := kv.Lease
	if lease == NoLease {
		var err error
		if lease, err = r.store.Grant(ctx, r.ttl); err != nil {
			return NoLease, err
		}
	} else if err := r.store.KeepAlive(ctx, lease); err != nil {
		if errors.Is(err, ErrNotFound) {
			// The lease expired between read and write, so the record
			// is vanishing under us. Retrying lands on the create path.
			return NoLease, fmt.Errorf("update %s: %w", rec.ID, ErrConflict)
		}
		return NoLease, err
	}

	payload, err := r.codec.Encode(rec)
	if err != nil {
		return NoLease, err
	}

	txn := Txn{
		Compares: []Compare{{Key: r.keys.Primary(rec.ID), Version: kv.Version}},
		Ops:      r.storeOps(diffIndexOps(r.keys, cur, rec), payload, lease),
	}
	committed, err := r.store.Commit(ctx, txn)
	if err != nil {
		return NoLease, err
	}
	if !committed {
		return NoLease, fmt.Errorf("update %s: %w", rec.ID, ErrConflict)
	}

	r.log.Debug("service updated",
		logger.String("id", rec.ID),
		logger.Int("ops", len(txn.Ops)),
		logger.Int64("lease", int64(lease)),
	)
	return lease, nil
}

// storeOps lowers the differ's decisions into transaction operations. Every
// put rides the record's lease so the whole key family expires together.
func (r *Registry) storeOps(ops []indexOp, payload []byte, lease LeaseID) []Op {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		switch op.kind {
		case removePointer:
			out = append(out, Delete(op.key))
		case addPointer:
			out = append(out, Put(op.key, []byte(op.value), lease))
		case replacePrimary:
			out = append(out, Put(op.key, payload, lease))
		}
	}
	return out
}

// Delete removes the record and every index entry in one transaction. The
// status marker is cleared under every status value, not just the one the
// payload claims: the payload can trail a concurrent status flip, and a
// leftover marker would keep answering liveness checks for a dead record.
func (r *Registry) Delete(ctx context.Context, by Lookup) error {
	id, err := r.lookupID(ctx, by)
	if err != nil {
		return err
	}

	kv, err := r.store.Get(ctx, r.keys.Primary(id))
	if err != nil {
		return err
	}
	if kv == nil {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	cur, err := r.codec.Decode(kv.Value)
	if err != nil {
		return fmt.Errorf("stored record %s: %w", id, err)
	}

	ops := []Op{
		Delete(r.keys.Primary(id)),
		Delete(r.keys.TypeHost(cur.Kind, cur.Host)),
		Delete(r.keys.Region(cur.Region, id)),
	}
	for _, s := range domain.AllStatuses() {
		ops = append(ops, Delete(r.keys.Status(s, id)))
	}

	if _, err := r.store.Commit(ctx, Txn{Ops: ops}); err != nil {
		return err
	}

	r.log.Debug("service deleted", logger.String("id", id))
	return nil
}

// Maintenance annotates a Down call. Zero times are left unset; a note
// without a start time gets stamped with the current time.
type Maintenance struct {
	Note  string
	Start time.Time
	End   time.Time
}

// Down marks the record as DOWN and records the maintenance window. The
// write goes through Update, so it carries the same conflict and heartbeat
// semantics as any other mutation.
func (r *Registry) Down(ctx context.Context, by Lookup, m Maintenance) error {
	rec, err := r.GetOne(ctx, by)
	if err != nil {
		return err
	}

	rec.Status = domain.StatusDown
	if m.Note != "" {
		rec.MaintenanceNote = m.Note
		if m.Start.IsZero() {
			m.Start = time.Now().UTC()
		}
	}
	if !m.Start.IsZero() {
		rec.MaintenanceStart = m.Start.UTC().Unix()
	}
	if !m.End.IsZero() {
		rec.MaintenanceEnd = m.End.UTC().Unix()
	}

	_, err = r.Update(ctx, rec)
	return err
}

// Renew resets the TTL clock on a record's lease without touching its
// contents. This is the cheap heartbeat: one lease keepalive instead of a
// read-diff-write cycle. A vanished lease returns ErrNotFound, signaling
// the caller to re-register.
func (r *Registry) Renew(ctx context.Context, lease LeaseID) error {
	if lease == NoLease {
		return fmt.Errorf("%w: lease id required", ErrInvalidArgument)
	}
	return r.store.KeepAlive(ctx, lease)
}
