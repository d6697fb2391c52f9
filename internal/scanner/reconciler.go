package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/repository"
	"hoardwatch-api/internal/roblox"
)

// inventoryAPI is the slice of the Roblox client used for holdings sync.
type inventoryAPI interface {
	FetchCollectibles(ctx context.Context, userID int64) ([]roblox.Collectible, error)
}

// Reconciler syncs a holder's live holdings into their latest snapshot,
// applying the minimal row-level diff. The first snapshot per holder is
// created whole; later reconciliations mutate it in place.
type Reconciler struct {
	api   inventoryAPI
	store repository.CollectiblesStore
}

// NewReconciler creates a snapshot reconciler.
func NewReconciler(api inventoryAPI, store repository.CollectiblesStore) *Reconciler {
	return &Reconciler{api: api, store: store}
}

// Reconcile fetches the holder's complete current holdings and diffs
// them against the latest stored snapshot. When holdings are unchanged
// the stored snapshot is returned untouched.
func (r *Reconciler) Reconcile(ctx context.Context, robloxUserID int64) (*model.Snapshot, error) {
	collectibles, err := r.api.FetchCollectibles(ctx, robloxUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch collectibles for %d: %w", robloxUserID, err)
	}

	// Instance IDs are unique per holder at the source. Dedupe anyway.
	instances := dedupeCollectibles(collectibles)

	assetIDs := distinctAssetIDs(instances)
	if err := r.store.EnsureItems(ctx, assetIDs); err != nil {
		return nil, fmt.Errorf("failed to ensure catalog rows: %w", err)
	}

	latest, err := r.store.LatestSnapshot(ctx, robloxUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	if latest == nil {
		totals, err := r.computeTotals(ctx, instances)
		if err != nil {
			return nil, err
		}
		snap, err := r.store.CreateSnapshot(ctx, robloxUserID, totals, instances)
		if err != nil {
			return nil, fmt.Errorf("failed to create baseline snapshot: %w", err)
		}
		log.Printf("[Reconciler] Created baseline snapshot %s for holder %d (%d instances)",
			snap.ID, robloxUserID, len(instances))
		return snap, nil
	}

	current := make(map[int64]model.Instance, len(instances))
	for _, inst := range instances {
		current[inst.UserAssetID] = inst
	}
	old := make(map[int64]model.Instance, len(latest.Instances))
	for _, inst := range latest.Instances {
		old[inst.UserAssetID] = inst
	}

	var toAdd []model.Instance
	for id, inst := range current {
		if _, exists := old[id]; !exists {
			toAdd = append(toAdd, inst)
		}
	}
	var toRemove []int64
	for id := range old {
		if _, exists := current[id]; !exists {
			toRemove = append(toRemove, id)
		}
	}

	if len(toAdd) == 0 && len(toRemove) == 0 {
		return latest, nil
	}

	if err := r.store.RemoveInstances(ctx, latest.ID, toRemove); err != nil {
		return nil, fmt.Errorf("failed to remove stale instances: %w", err)
	}
	if err := r.store.AddInstances(ctx, latest.ID, toAdd); err != nil {
		return nil, fmt.Errorf("failed to add new instances: %w", err)
	}

	totals, err := r.computeTotals(ctx, instances)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpdateSnapshotTotals(ctx, latest.ID, totals); err != nil {
		return nil, fmt.Errorf("failed to update snapshot totals: %w", err)
	}

	log.Printf("[Reconciler] Snapshot %s for holder %d: +%d -%d instances",
		latest.ID, robloxUserID, len(toAdd), len(toRemove))

	latest.Instances = instances
	latest.TotalRAP = totals.TotalRAP
	latest.TotalItems = totals.TotalItems
	latest.UniqueItems = totals.UniqueItems
	latest.UpdatedAt = time.Now().UTC()
	return latest, nil
}

// computeTotals aggregates instance counts and RAP valuation.
func (r *Reconciler) computeTotals(ctx context.Context, instances []model.Instance) (model.SnapshotTotals, error) {
	assetIDs := distinctAssetIDs(instances)

	raps, err := r.store.LatestRAPs(ctx, assetIDs)
	if err != nil {
		return model.SnapshotTotals{}, fmt.Errorf("failed to load RAP values: %w", err)
	}

	totals := model.SnapshotTotals{
		TotalItems:  len(instances),
		UniqueItems: len(assetIDs),
	}
	for _, inst := range instances {
		totals.TotalRAP += raps[inst.AssetID]
	}
	return totals, nil
}

// dedupeCollectibles converts fetched collectibles into snapshot
// instances, keeping the first occurrence per instance ID. Null serial
// numbers are preserved as null.
func dedupeCollectibles(collectibles []roblox.Collectible) []model.Instance {
	seen := make(map[int64]bool, len(collectibles))
	now := time.Now().UTC()

	instances := make([]model.Instance, 0, len(collectibles))
	for _, c := range collectibles {
		if seen[c.UserAssetID] {
			continue
		}
		seen[c.UserAssetID] = true
		instances = append(instances, model.Instance{
			UserAssetID:  c.UserAssetID,
			AssetID:      c.AssetID,
			SerialNumber: c.SerialNumber,
			ScannedAt:    now,
		})
	}
	return instances
}

func distinctAssetIDs(instances []model.Instance) []int64 {
	seen := make(map[int64]bool, len(instances))
	var ids []int64
	for _, inst := range instances {
		if !seen[inst.AssetID] {
			seen[inst.AssetID] = true
			ids = append(ids, inst.AssetID)
		}
	}
	return ids
}
