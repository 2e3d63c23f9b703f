package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// fakeLiveness counts registry calls and lets tests kill leases at will.
type fakeLiveness struct {
	mu         sync.Mutex
	nextLease  registry.LeaseID
	liveLeases map[registry.LeaseID]bool
	updates    int
	renews     int
	updateErr  error
}

func newFakeLiveness() *fakeLiveness {
	return &fakeLiveness{liveLeases: make(map[registry.LeaseID]bool)}
}

func (f *fakeLiveness) Update(ctx context.Context, rec *domain.ServiceRecord) (registry.LeaseID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return registry.NoLease, f.updateErr
	}
	f.nextLease++
	f.liveLeases[f.nextLease] = true
	return f.nextLease, nil
}

func (f *fakeLiveness) Renew(ctx context.Context, lease registry.LeaseID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renews++
	if !f.liveLeases[lease] {
		return fmt.Errorf("lease %d: %w", lease, registry.ErrNotFound)
	}
	return nil
}

func (f *fakeLiveness) killLease(lease registry.LeaseID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.liveLeases, lease)
}

func (f *fakeLiveness) counts() (updates, renews int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates, f.renews
}

func testRecord() *domain.ServiceRecord {
	return &domain.ServiceRecord{
		ID:     "df3a8f02-4b11-4e7c-9d3a-000000000001",
		Kind:   "compute-worker",
		Host:   "node-1.local",
		Region: "eu-west",
		Status: domain.StatusUp,
	}
}

func TestHeartbeater_Beat(t *testing.T) {
	log := logger.New("error", false)
	reg := newFakeLiveness()
	hb := NewHeartbeater(reg, testRecord(), log, time.Minute, nil)

	// First beat registers
	if err := hb.Beat(context.Background()); err != nil {
		t.Fatalf("first Beat failed: %v", err)
	}
	if hb.Lease() == registry.NoLease {
		t.Fatal("no lease after first beat")
	}
	updates, renews := reg.counts()
	if updates != 1 || renews != 0 {
		t.Errorf("after first beat: updates=%d renews=%d, want 1/0", updates, renews)
	}

	// Subsequent beats only renew
	for i := 0; i < 3; i++ {
		if err := hb.Beat(context.Background()); err != nil {
			t.Fatalf("Beat %d failed: %v", i, err)
		}
	}
	updates, renews = reg.counts()
	if updates != 1 || renews != 3 {
		t.Errorf("after renewals: updates=%d renews=%d, want 1/3", updates, renews)
	}
}

func TestHeartbeater_ReregistersAfterLeaseLoss(t *testing.T) {
	log := logger.New("error", false)
	reg := newFakeLiveness()
	hb := NewHeartbeater(reg, testRecord(), log, time.Minute, nil)

	if err := hb.Beat(context.Background()); err != nil {
		t.Fatalf("first Beat failed: %v", err)
	}
	first := hb.Lease()

	// The record expired behind our back
	reg.killLease(first)

	if err := hb.Beat(context.Background()); err != nil {
		t.Fatalf("Beat after lease loss failed: %v", err)
	}
	second := hb.Lease()
	if second == first || second == registry.NoLease {
		t.Errorf("lease after re-registration = %d, want a fresh one (old %d)", second, first)
	}

	updates, _ := reg.counts()
	if updates != 2 {
		t.Errorf("updates = %d, want 2 (initial + re-registration)", updates)
	}
}

func TestHeartbeater_TransportErrorsSurface(t *testing.T) {
	log := logger.New("error", false)
	reg := newFakeLiveness()
	reg.updateErr = errors.New("connection refused")
	hb := NewHeartbeater(reg, testRecord(), log, time.Minute, nil)

	if err := hb.Beat(context.Background()); err == nil {
		t.Fatal("Beat with failing store returned nil error")
	}
	if hb.Lease() != registry.NoLease {
		t.Error("lease set despite failed registration")
	}

	// The store recovers; the next beat succeeds.
	reg.mu.Lock()
	reg.updateErr = nil
	reg.mu.Unlock()
	if err := hb.Beat(context.Background()); err != nil {
		t.Fatalf("Beat after recovery failed: %v", err)
	}
	if hb.Lease() == registry.NoLease {
		t.Error("no lease after recovered registration")
	}
}

func TestHeartbeater_StartRunsTicksAndManualTrigger(t *testing.T) {
	log := logger.New("error", false)
	reg := newFakeLiveness()
	trigger := make(chan struct{}, 1)
	hb := NewHeartbeater(reg, testRecord(), log, 50*time.Millisecond, trigger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := hb.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer hb.Stop()

	// Give the ticker a few periods
	time.Sleep(180 * time.Millisecond)
	_, renews := reg.counts()
	if renews < 2 {
		t.Errorf("renews = %d after three periods, want at least 2", renews)
	}

	// Manual trigger forces an extra beat
	_, renewsBefore := reg.counts()
	trigger <- struct{}{}
	time.Sleep(50 * time.Millisecond)
	_, renewsAfter := reg.counts()
	if renewsAfter <= renewsBefore {
		t.Error("manual trigger did not cause a beat")
	}
}
