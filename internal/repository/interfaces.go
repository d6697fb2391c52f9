package repository

import (
	"context"
	"time"

	"hoardwatch-api/internal/model"
)

// CollectiblesStore defines data access for items, holders, snapshots and
// price history. All writes are individually idempotent upserts or scoped
// row insert/delete so a partially completed scan leaves valid state.
type CollectiblesStore interface {
	// UpsertHolder inserts or updates a holder's display attributes.
	// The role column is preserved on update.
	UpsertHolder(ctx context.Context, holder *model.Holder) error

	// GetHolder retrieves a holder by Roblox user ID. Returns nil, nil
	// when the holder is unknown.
	GetHolder(ctx context.Context, robloxUserID int64) (*model.Holder, error)

	// GetItem retrieves a catalog item. Returns nil, nil when unknown.
	GetItem(ctx context.Context, assetID int64) (*model.Item, error)

	// ListItems returns a page of catalog items ordered by asset ID.
	ListItems(ctx context.Context, limit, offset int) ([]model.Item, int64, error)

	// EnsureItems creates placeholder catalog rows for any of the given
	// asset IDs that do not exist yet, in one bulk operation.
	EnsureItems(ctx context.Context, assetIDs []int64) error

	// SetManipulated flips an item's manipulation flag.
	SetManipulated(ctx context.Context, assetID int64, manipulated bool) error

	// UpdateItemCatalog backfills catalog details onto an item row.
	UpdateItemCatalog(ctx context.Context, assetID int64, name, description, imageURL string) error

	// RecordRAP appends RAP observations to the price history.
	RecordRAP(ctx context.Context, points []model.PricePoint) error

	// LatestRAPs returns the most recent RAP per asset ID; assets with no
	// recorded price are absent from the map.
	LatestRAPs(ctx context.Context, assetIDs []int64) (map[int64]int64, error)

	// PrunePriceHistory deletes RAP observations older than the threshold.
	PrunePriceHistory(ctx context.Context, threshold time.Duration) (int64, error)

	// LatestSnapshot returns the holder's most recent snapshot with its
	// instances, or nil, nil when the holder has none.
	LatestSnapshot(ctx context.Context, robloxUserID int64) (*model.Snapshot, error)

	// CreateSnapshot stores a new snapshot and its instances.
	CreateSnapshot(ctx context.Context, robloxUserID int64, totals model.SnapshotTotals, instances []model.Instance) (*model.Snapshot, error)

	// AddInstances inserts instance rows into an existing snapshot.
	AddInstances(ctx context.Context, snapshotID string, instances []model.Instance) error

	// RemoveInstances deletes instance rows from a snapshot by instance ID.
	RemoveInstances(ctx context.Context, snapshotID string, userAssetIDs []int64) error

	// UpdateSnapshotTotals recomputes the aggregate columns of a snapshot.
	UpdateSnapshotTotals(ctx context.Context, snapshotID string, totals model.SnapshotTotals) error

	// ItemOwners lists holders whose latest snapshot contains the asset.
	ItemOwners(ctx context.Context, assetID int64) ([]model.Owner, error)

	// GetStats returns statistics about the collectibles database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the store connection.
	Close() error
}

// APIAccountRepository defines API credential lookups (MySQL).
type APIAccountRepository interface {
	// ValidateAPIKey resolves an active API key to its account. Returns
	// nil, nil when the key is unknown or disabled; errors are reserved
	// for lookup failures.
	ValidateAPIKey(ctx context.Context, key string) (*model.APIAccount, error)
}
