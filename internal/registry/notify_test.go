package registry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// nextEvent pulls one event or fails the test after a grace period.
func nextEvent(t *testing.T, sub *registry.Subscription) registry.WatchEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed while an event was expected")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return registry.WatchEvent{}
	}
}

// waitClosed drains the subscription until the channel closes.
func waitClosed(t *testing.T, sub *registry.Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel did not close")
		}
	}
}

func TestNotifyDeliversStatusFlapsInOrder(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := reg.Notify(context.Background(), registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	defer sub.Cancel()

	// Flap the record: down, up, down.
	for _, status := range []domain.Status{domain.StatusDown, domain.StatusUp, domain.StatusDown} {
		next := rec.Clone()
		next.Status = status
		if _, err := reg.Update(context.Background(), next); err != nil {
			t.Fatalf("flap to %v failed: %v", status, err)
		}
		rec = next
	}

	codec := registry.JSONCodec{}
	want := []domain.Status{domain.StatusDown, domain.StatusUp, domain.StatusDown}
	for i, status := range want {
		ev := nextEvent(t, sub)
		if ev.Type != registry.EventPut {
			t.Fatalf("event %d type = %v, want put", i, ev.Type)
		}
		got, err := codec.Decode(ev.Value)
		if err != nil {
			t.Fatalf("event %d payload did not decode: %v", i, err)
		}
		if got.Status != status {
			t.Errorf("event %d status = %v, want %v", i, got.Status, status)
		}
	}
}

func TestNotifyUnchangedUpdateEmitsNothing(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := reg.Notify(context.Background(), registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	defer sub.Cancel()

	// No-op update writes nothing, so nothing can arrive.
	if _, err := reg.Update(context.Background(), rec.Clone()); err != nil {
		t.Fatalf("no-op update failed: %v", err)
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v after a no-op update", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyExplicitIDWatchesUnregisteredRecord(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()

	// Watching an id that does not exist yet is allowed; the first event
	// is the record's creation.
	sub, err := reg.Notify(context.Background(), registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify on unregistered id failed: %v", err)
	}
	defer sub.Cancel()

	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ev := nextEvent(t, sub)
	if ev.Type != registry.EventPut {
		t.Fatalf("first event type = %v, want put", ev.Type)
	}
	got, err := registry.JSONCodec{}.Decode(ev.Value)
	if err != nil {
		t.Fatalf("payload did not decode: %v", err)
	}
	if got.ID != rec.ID {
		t.Errorf("event record id = %q, want %q", got.ID, rec.ID)
	}
}

func TestNotifyByKindHost(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := reg.Notify(context.Background(), registry.Lookup{Kind: rec.Kind, Host: rec.Host})
	if err != nil {
		t.Fatalf("Notify by kind/host failed: %v", err)
	}
	defer sub.Cancel()
	if sub.ID != rec.ID {
		t.Errorf("subscription resolved to %q, want %q", sub.ID, rec.ID)
	}

	// Unlike an explicit id, an alias lookup must resolve.
	if _, err := reg.Notify(context.Background(), registry.Lookup{Kind: rec.Kind, Host: "ghost"}); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("unknown pair error = %v, want ErrNotFound", err)
	}
	if _, err := reg.Notify(context.Background(), registry.Lookup{Kind: rec.Kind}); !errors.Is(err, registry.ErrInvalidArgument) {
		t.Errorf("kind-only lookup error = %v, want ErrInvalidArgument", err)
	}
}

func TestNotifyDeleteEvent(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := reg.Notify(context.Background(), registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	defer sub.Cancel()

	if err := reg.Delete(context.Background(), registry.Lookup{ID: rec.ID}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ev := nextEvent(t, sub)
	if ev.Type != registry.EventDelete {
		t.Fatalf("event type = %v, want delete", ev.Type)
	}
	if len(ev.Value) != 0 {
		t.Errorf("delete event carries payload %q, want none", ev.Value)
	}
}

func TestNotifyExpiryLooksLikeDeletion(t *testing.T) {
	reg, _ := newTestRegistry(t, 150*time.Millisecond)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := reg.Notify(context.Background(), registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	defer sub.Cancel()

	// Let the lease lapse; the watcher cannot tell expiry from deletion.
	ev := nextEvent(t, sub)
	if ev.Type != registry.EventDelete {
		t.Errorf("expiry event type = %v, want delete", ev.Type)
	}
}

func TestNotifyCancelClosesStream(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := reg.Notify(context.Background(), registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	sub.Cancel()
	sub.Cancel() // calling again must be harmless
	waitClosed(t, sub)

	// Updates after cancellation must not block on the dead watcher.
	next := rec.Clone()
	next.Region = "us-east"
	done := make(chan error, 1)
	go func() {
		_, err := reg.Update(context.Background(), next)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("update after cancel failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update blocked on a canceled subscription")
	}
}

func TestNotifyParentContextEndsStream(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	rec := sampleRecord()
	if _, err := reg.Update(context.Background(), rec); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := reg.Notify(ctx, registry.Lookup{ID: rec.ID})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	cancel()
	waitClosed(t, sub)
}
