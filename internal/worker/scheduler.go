// Package worker runs the periodic full-sync sweep across connected
// organizations.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/church-space/church-space-sub003/internal/pkg/distlock"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
	"github.com/church-space/church-space-sub003/internal/service/fullsync"
)

// OrgLister enumerates the organizations with an active connection.
type OrgLister interface {
	ListOrganizationIDs(ctx context.Context) ([]string, error)
}

// Syncer runs a full sync for one organization.
type Syncer interface {
	SyncAll(ctx context.Context, orgID string) ([]fullsync.Result, error)
}

// LockFactory builds the per-organization sweep lock. Multiple worker hosts
// may run the same schedule; the lock keeps them from syncing the same
// organization at once.
type LockFactory func(orgID string) distlock.DistLock

// SyncScheduler sweeps every connected organization on a fixed interval.
type SyncScheduler struct {
	orgs     OrgLister
	syncer   Syncer
	newLock  LockFactory
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSyncScheduler(orgs OrgLister, syncer Syncer, newLock LockFactory, interval time.Duration) *SyncScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &SyncScheduler{
		orgs:     orgs,
		syncer:   syncer,
		newLock:  newLock,
		interval: interval,
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (s *SyncScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info("sync scheduler started", "interval", s.interval.String())

		s.sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("sync scheduler stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *SyncScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// sweep syncs each connected organization in turn. Failures are logged and
// the sweep moves on; a broken organization must not starve the rest.
func (s *SyncScheduler) sweep(ctx context.Context) {
	orgIDs, err := s.orgs.ListOrganizationIDs(ctx)
	if err != nil {
		logger.Error("listing organizations for sync sweep failed", "error", err.Error())
		return
	}

	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return
		}
		s.syncOrg(ctx, orgID)
	}
}

func (s *SyncScheduler) syncOrg(ctx context.Context, orgID string) {
	if s.newLock != nil {
		lock := s.newLock(orgID)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			logger.Warn("sync lock unavailable, skipping organization",
				"org_id", orgID, "error", err.Error())
			return
		}
		if !acquired {
			logger.Info("sync already running elsewhere, skipping", "org_id", orgID)
			return
		}
		// Release with a fresh context: a canceled sweep would otherwise
		// leave the lock held until its TTL expires.
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Release(releaseCtx); err != nil {
				logger.Warn("releasing sync lock failed", "org_id", orgID, "error", err.Error())
			}
		}()
	}

	started := time.Now()
	results, err := s.syncer.SyncAll(ctx, orgID)
	if err != nil {
		logger.Error("scheduled sync failed", "org_id", orgID, "error", err.Error())
		return
	}

	var records, skipped int
	for _, r := range results {
		records += r.Records
		skipped += r.Skipped
	}
	logger.Info("scheduled sync complete", "org_id", orgID,
		"records", records, "skipped", skipped,
		"duration", time.Since(started).Round(time.Millisecond).String())
}
