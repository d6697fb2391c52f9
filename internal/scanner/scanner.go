package scanner

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"hoardwatch-api/internal/config"
	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/repository"
)

// ErrScanActive is returned by Start when a scan is already running for
// the requested asset.
var ErrScanActive = errors.New("scan already active for this asset")

// robloxAPI is the full client surface the pipeline consumes.
type robloxAPI interface {
	ownersAPI
	profileAPI
}

// Service owns the owner-discovery pipeline: it wires the page fetcher
// and the owner processor over a shared queue, enforces single-flight
// per asset through the registry, and exposes start/stop/status.
type Service struct {
	api      robloxAPI
	rec      holderReconciler
	store    repository.CollectiblesStore
	registry *Registry
	cfg      config.ScannerConfig
}

// NewService creates the scan orchestrator.
func NewService(api robloxAPI, rec holderReconciler, store repository.CollectiblesStore, registry *Registry, cfg config.ScannerConfig) *Service {
	return &Service{
		api:      api,
		rec:      rec,
		store:    store,
		registry: registry,
		cfg:      cfg,
	}
}

// Start claims the single-flight lock for the asset and launches the
// pipeline in the background. Returns ErrScanActive when the asset is
// already being scanned.
func (s *Service) Start(assetID int64) error {
	if !s.registry.TryAcquire(assetID) {
		return ErrScanActive
	}

	log.Printf("[Scanner] Starting scan for asset %d", assetID)
	go s.run(assetID)
	return nil
}

// Stop requests cooperative cancellation of an active scan. Returns
// false when no scan is running for the asset.
func (s *Service) Stop(assetID int64) bool {
	ok := s.registry.RequestStop(assetID)
	if ok {
		log.Printf("[Scanner] Stop requested for asset %d", assetID)
	}
	return ok
}

// Status returns the poll-safe scan state for an asset.
func (s *Service) Status(assetID int64) model.ScanStatus {
	return s.registry.Status(assetID)
}

// run executes one scan end to end. Cleanup always releases the lock so
// a crash can never leave the asset permanently locked.
func (s *Service) run(assetID int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Scanner] Scan for asset %d panicked: %v", assetID, r)
		}
		s.registry.Release(assetID)
		s.registry.ScheduleCleanup(assetID, s.cfg.CleanupGrace)
	}()

	queue := newOwnerQueue()
	ctx := context.Background()

	var result model.ScanResult
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetchOwners(ctx, assetID, s.api, queue, s.registry, s.cfg)
		return nil
	})
	g.Go(func() error {
		result = processOwners(ctx, assetID, s.api, s.rec, s.store, queue, s.registry, s.cfg)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("[Scanner] Scan for asset %d aborted: %v", assetID, err)
		return
	}

	if result.Stopped {
		log.Printf("[Scanner] Scan for asset %d stopped: %d processed, %d failed",
			assetID, result.Processed, result.Failed)
		return
	}
	log.Printf("[Scanner] Scan for asset %d completed: %d processed, %d failed",
		assetID, result.Processed, result.Failed)
}

// SyncHolder refreshes one holder outside of a full asset scan: profile
// enrichment plus a single snapshot reconciliation.
func (s *Service) SyncHolder(ctx context.Context, robloxUserID int64) (*model.Snapshot, error) {
	holder := resolveHolder(ctx, s.api, robloxUserID)
	if err := s.store.UpsertHolder(ctx, holder); err != nil {
		return nil, err
	}
	return s.rec.Reconcile(ctx, robloxUserID)
}
