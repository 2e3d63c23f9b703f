package registry

import "github.com/MrSnakeDoc/vigil/internal/domain"

// indexOpKind tags one mutation decided by the index differ.
type indexOpKind int

const (
	addPointer indexOpKind = iota
	removePointer
	replacePrimary
)

// indexOp is one pending index mutation. For addPointer, value carries the
// pointer payload (the record id for type-host aliases, empty for status and
// region markers). The replacePrimary op carries no payload here; the caller
// fills in the encoded record when it builds the transaction.
type indexOp struct {
	kind  indexOpKind
	key   string
	value string
}

// diffIndexOps computes the minimal set of index mutations that move the
// stored state from old to next. Pointers whose indexed field did not change
// are left untouched. old == nil means next is being created, so every index
// family gets a pointer. The primary rewrite is always last; callers skip
// this entirely when nothing changed.
func diffIndexOps(ks Keyspace, old, next *domain.ServiceRecord) []indexOp {
	id := next.ID
	var ops []indexOp

	if old == nil || old.Status != next.Status {
		if old != nil {
			ops = append(ops, indexOp{kind: removePointer, key: ks.Status(old.Status, id)})
		}
		ops = append(ops, indexOp{kind: addPointer, key: ks.Status(next.Status, id)})
	}

	if old == nil || old.Kind != next.Kind || old.Host != next.Host {
		if old != nil {
			ops = append(ops, indexOp{kind: removePointer, key: ks.TypeHost(old.Kind, old.Host)})
		}
		ops = append(ops, indexOp{kind: addPointer, key: ks.TypeHost(next.Kind, next.Host), value: id})
	}

	if old == nil || old.Region != next.Region {
		if old != nil {
			ops = append(ops, indexOp{kind: removePointer, key: ks.Region(old.Region, id)})
		}
		ops = append(ops, indexOp{kind: addPointer, key: ks.Region(next.Region, id)})
	}

	ops = append(ops, indexOp{kind: replacePrimary, key: ks.Primary(id)})
	return ops
}
