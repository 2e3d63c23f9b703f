package domain

// ServiceRecord represents the canonical registration of one service worker.
//
// It is the payload stored under the primary key and the only structure the
// record codec ever sees. The secondary index pointers (type-host, status,
// region) are derived from its fields, never stored inside it.
//
// A ServiceRecord is uniquely identified by its ID.
type ServiceRecord struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the opaque unique identifier of the record (a UUID string).
	// It never changes once the record has been created.
	ID string `json:"id"`

	// ─────────────────────────────
	// Placement (indexed)
	// ─────────────────────────────

	// Kind classifies the service.
	// Example: compute-worker
	Kind string `json:"kind"`

	// Host is the network location the service answers on.
	// (Kind, Host) maps to at most one live record, last writer wins.
	Host string `json:"host"`

	// Region is a grouping tag used for filtering. Not unique.
	Region string `json:"region"`

	// ─────────────────────────────
	// Liveness (indexed)
	// ─────────────────────────────

	// Status is the current liveness state (StatusUp or StatusDown).
	// Stored numerically on the wire.
	Status Status `json:"status"`

	// ─────────────────────────────
	// Maintenance window (payload only, never indexed)
	// ─────────────────────────────

	// MaintenanceNote explains why the service was taken down, when it
	// was taken down on purpose.
	MaintenanceNote string `json:"maintenance_note,omitempty"`

	// MaintenanceStart and MaintenanceEnd bound the expected downtime
	// window, in UTC epoch seconds. Zero means unset.
	MaintenanceStart int64 `json:"maintenance_start,omitempty"`
	MaintenanceEnd   int64 `json:"maintenance_end,omitempty"`
}

// Equal reports whether two records carry exactly the same field values.
// Used to decide whether an update is a no-op.
func (s *ServiceRecord) Equal(o *ServiceRecord) bool {
	if s == nil || o == nil {
		return s == o
	}
	return *s == *o
}

// Clone returns an independent copy of the record.
func (s *ServiceRecord) Clone() *ServiceRecord {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
