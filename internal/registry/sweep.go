package registry

import (
	"context"

	"github.com/MrSnakeDoc/vigil/internal/logger"
)

// SweepStale removes index pointers whose primary record no longer exists
// and returns how many it cleared.
//
// Normally a record and its pointers share one lease and vanish together,
// but pointers can be orphaned by interrupted multi-step operations or by
// writers outside this process. The sweep scans each index family, keeps
// every pointer whose record is still present, and removes the rest one
// record at a time. Each removal transaction re-asserts that the primary is
// still absent and that the pointer has not been rewritten since the scan,
// so a concurrent re-registration wins and the sweep simply skips it.
func (r *Registry) SweepStale(ctx context.Context) (int, error) {
	primaries, err := r.store.GetPrefix(ctx, r.keys.PrimaryPrefix())
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(primaries))
	for _, kv := range primaries {
		live[LastSegment(kv.Key)] = struct{}{}
	}

	type pointer struct {
		key     string
		version int64
	}
	orphans := make(map[string][]pointer)
	collect := func(id string, kv KeyValue) {
		if id == "" {
			return
		}
		if _, ok := live[id]; ok {
			return
		}
		orphans[id] = append(orphans[id], pointer{key: kv.Key, version: kv.Version})
	}

	statusKVs, err := r.store.GetPrefix(ctx, r.keys.StatusRoot())
	if err != nil {
		return 0, err
	}
	for _, kv := range statusKVs {
		collect(LastSegment(kv.Key), kv)
	}

	regionKVs, err := r.store.GetPrefix(ctx, r.keys.RegionRoot())
	if err != nil {
		return 0, err
	}
	for _, kv := range regionKVs {
		collect(LastSegment(kv.Key), kv)
	}

	aliasKVs, err := r.store.GetPrefix(ctx, r.keys.TypeHostRoot())
	if err != nil {
		return 0, err
	}
	for _, kv := range aliasKVs {
		// The alias points at its record through the value, not the key.
		collect(string(kv.Value), kv)
	}

	removed := 0
	for id, pointers := range orphans {
		txn := Txn{
			Compares: []Compare{{Key: r.keys.Primary(id), Version: 0}},
		}
		for _, p := range pointers {
			txn.Compares = append(txn.Compares, Compare{Key: p.key, Version: p.version})
			txn.Ops = append(txn.Ops, Delete(p.key))
		}

		committed, err := r.store.Commit(ctx, txn)
		if err != nil {
			return removed, err
		}
		if !committed {
			// The record came back or a pointer moved mid-sweep. Leave
			// it for the next pass.
			r.log.Debug("sweep skipped contested record", logger.String("id", id))
			continue
		}
		removed += len(pointers)
	}

	if removed > 0 {
		r.log.Info("removed stale index pointers", logger.Int("removed", removed))
	}
	return removed, nil
}
