package registry

import "context"

// Subscription delivers change events for one record's primary key. Events
// arrive in the order the store observed them and the channel blocks
// between events; a consumer ranges over Events until it has seen enough,
// then calls Cancel. The channel closes after Cancel, when the context
// given to Notify ends, or when the store-side watch fails. One
// subscription serves one consumer.
type Subscription struct {
	// ID is the record id the subscription resolved to.
	ID string

	events <-chan WatchEvent
	cancel context.CancelFunc
}

// Events returns the event stream. Put events carry the new payload bytes;
// delete events carry none and cover both explicit deletion and lease
// expiry.
func (s *Subscription) Events() <-chan WatchEvent {
	return s.events
}

// Cancel stops the subscription and releases the store-side watch. It is
// safe to call more than once and from a different goroutine than the one
// consuming events.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Notify opens a watch on one record. An explicit ID is watched as-is even
// if nothing is registered under it yet, so a consumer can wait for a
// record to first appear. A (kind, host) lookup must resolve through the
// alias index and returns ErrNotFound when nothing is registered for the
// pair.
func (r *Registry) Notify(ctx context.Context, by Lookup) (*Subscription, error) {
	id, err := r.lookupID(ctx, by)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(ctx)
	events := r.store.Watch(wctx, r.keys.Primary(id))
	return &Subscription{ID: id, events: events, cancel: cancel}, nil
}
