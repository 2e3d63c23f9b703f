package domain

import (
	"encoding/json"
	"testing"
)

func sample() *ServiceRecord {
	return &ServiceRecord{
		ID:     "df3a8f02-3334-4f1c-8f0a-000000000001",
		Kind:   "compute-worker",
		Host:   "node-1.local",
		Region: "eu-west",
		Status: StatusUp,
	}
}

func TestServiceRecordEqual(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServiceRecord)
		want   bool
	}{
		{"identical", func(*ServiceRecord) {}, true},
		{"different status", func(r *ServiceRecord) { r.Status = StatusDown }, false},
		{"different region", func(r *ServiceRecord) { r.Region = "us-east" }, false},
		{"different host", func(r *ServiceRecord) { r.Host = "node-2.local" }, false},
		{"different note", func(r *ServiceRecord) { r.MaintenanceNote = "disk swap" }, false},
		{"different window", func(r *ServiceRecord) { r.MaintenanceStart = 1700000000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := sample(), sample()
			tt.mutate(b)
			if got := a.Equal(b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceRecordEqualNil(t *testing.T) {
	var nilRec *ServiceRecord
	if !nilRec.Equal(nil) {
		t.Error("nil.Equal(nil) must be true")
	}
	if nilRec.Equal(sample()) {
		t.Error("nil.Equal(non-nil) must be false")
	}
	if sample().Equal(nil) {
		t.Error("non-nil.Equal(nil) must be false")
	}
}

func TestServiceRecordClone(t *testing.T) {
	orig := sample()
	cp := orig.Clone()

	if cp == orig {
		t.Fatal("Clone must return a distinct pointer")
	}
	if !cp.Equal(orig) {
		t.Fatal("Clone must copy all fields")
	}

	cp.Status = StatusDown
	if orig.Status != StatusUp {
		t.Error("mutating the clone must not touch the original")
	}

	var nilRec *ServiceRecord
	if nilRec.Clone() != nil {
		t.Error("Clone of nil must be nil")
	}
}

func TestServiceRecordJSONShape(t *testing.T) {
	raw, err := json.Marshal(sample())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal into map: %v", err)
	}

	for _, key := range []string{"id", "kind", "host", "region", "status"} {
		if _, ok := m[key]; !ok {
			t.Errorf("encoded record missing %q field", key)
		}
	}

	// Maintenance fields are omitted while unset.
	for _, key := range []string{"maintenance_note", "maintenance_start", "maintenance_end"} {
		if _, ok := m[key]; ok {
			t.Errorf("encoded record must omit empty %q", key)
		}
	}

	// Status travels as a number.
	if _, ok := m["status"].(float64); !ok {
		t.Errorf("status encoded as %T, want JSON number", m["status"])
	}
}
