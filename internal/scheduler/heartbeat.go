package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vigil/internal/domain"
	"github.com/MrSnakeDoc/vigil/internal/logger"
	"github.com/MrSnakeDoc/vigil/internal/registry"
)

// liveness is the slice of the registry the heartbeater drives.
type liveness interface {
	Update(ctx context.Context, rec *domain.ServiceRecord) (registry.LeaseID, error)
	Renew(ctx context.Context, lease registry.LeaseID) error
}

// Heartbeater keeps this process's own service record alive: one Update to
// register, then periodic lease renewals, falling back to a fresh Update
// whenever the lease vanishes (an expiry we were too late for, or a wipe
// of the namespace).
type Heartbeater struct {
	registry      liveness
	record        *domain.ServiceRecord
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}

	mu    sync.Mutex
	lease registry.LeaseID
}

// NewHeartbeater creates a new heartbeater for one record.
func NewHeartbeater(
	reg liveness,
	record *domain.ServiceRecord,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *Heartbeater {
	return &Heartbeater{
		registry:      reg,
		record:        record,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start registers the record and begins the periodic heartbeat.
func (h *Heartbeater) Start(ctx context.Context) error {
	// Register immediately on start
	if err := h.Beat(ctx); err != nil {
		return fmt.Errorf("initial registration failed: %w", err)
	}

	// Start periodic renewal
	ticker := time.NewTicker(h.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := h.Beat(ctx); err != nil {
					h.logger.Error("heartbeat failed",
						logger.String("id", h.record.ID),
						logger.Error(err))
				}
			case <-h.manualTrigger:
				h.logger.Info("manual heartbeat triggered")
				if err := h.Beat(ctx); err != nil {
					h.logger.Error("heartbeat failed",
						logger.String("id", h.record.ID),
						logger.Error(err))
				}
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the heartbeater. The record is left to expire on its own, so
// a crashed and a stopped process look the same to consumers.
func (h *Heartbeater) Stop() {
	close(h.stopCh)
}

// Beat renews the current lease, registering from scratch when there is no
// lease yet or the store no longer knows it. Transport errors are returned
// as-is; the next tick retries.
func (h *Heartbeater) Beat(ctx context.Context) error {
	h.mu.Lock()
	lease := h.lease
	h.mu.Unlock()

	if lease != registry.NoLease {
		err := h.registry.Renew(ctx, lease)
		if err == nil {
			return nil
		}
		if !errors.Is(err, registry.ErrNotFound) {
			return err
		}
		h.logger.Warn("lease vanished, re-registering",
			logger.String("id", h.record.ID),
			logger.Int64("lease", int64(lease)))
	}

	fresh, err := h.registry.Update(ctx, h.record)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.lease = fresh
	h.mu.Unlock()

	h.logger.Info("service record registered",
		logger.String("id", h.record.ID),
		logger.Int64("lease", int64(fresh)))
	return nil
}

// Lease returns the lease currently backing the record, NoLease before the
// first successful registration.
func (h *Heartbeater) Lease() registry.LeaseID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lease
}

// ID returns the record id the heartbeater maintains.
func (h *Heartbeater) ID() string {
	return h.record.ID
}
