package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/huddlelabs/sessionguard/internal/security/revocation"
	"github.com/huddlelabs/sessionguard/internal/security/store"
	"github.com/huddlelabs/sessionguard/pkg/tokenx"
)

// HousekeepingService periodically purges expired revocation entries and
// lapsed signing keys to prevent unbounded growth of the registry and the
// key ring.
type HousekeepingService struct {
	Store    store.Store
	Registry *revocation.Registry
	Keys     *tokenx.KeyRing
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, reg *revocation.Registry, keys *tokenx.KeyRing, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Registry: reg,
		Keys:     keys,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup purges expired state. Each step is independent - failures in one
// won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	s.Logger.Info("starting housekeeping cleanup")

	if err := s.Store.Revocations().DeleteExpiredRevocations(ctx); err != nil {
		s.Logger.Error("failed to delete expired revocations", "error", err)
	} else {
		s.Logger.Debug("deleted expired revocations")
	}

	if s.Registry != nil {
		purged := s.Registry.PurgeExpired()
		s.Logger.Debug("purged local revocation cache", "entries", purged)
	}

	if s.Keys != nil {
		pruned := s.Keys.PruneExpired()
		s.Logger.Debug("pruned expired signing keys", "keys", pruned)
	}

	s.Logger.Info("housekeeping cleanup completed")
}
