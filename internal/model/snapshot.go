package model

import "time"

// Snapshot is the stored record of one holder's collectible holdings,
// reconciled incrementally over time. Only the latest snapshot per holder
// is authoritative for diffing and ownership queries; after the first one
// it is mutated in place by membership changes rather than replaced.
type Snapshot struct {
	ID           string     `json:"id"`
	RobloxUserID int64      `json:"roblox_user_id"`
	TotalRAP     int64      `json:"total_rap"`
	TotalItems   int        `json:"total_items"`
	UniqueItems  int        `json:"unique_items"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Instances    []Instance `json:"instances,omitempty"`
}

// Instance is one concrete owned copy of an item within a snapshot.
// UserAssetID identifies the copy itself and is unique per snapshot;
// AssetID references the catalog item. SerialNumber is nil when the copy
// carries no serial.
type Instance struct {
	UserAssetID  int64     `json:"user_asset_id"`
	AssetID      int64     `json:"asset_id"`
	SerialNumber *int      `json:"serial_number"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// SnapshotTotals are the aggregate columns recomputed whenever snapshot
// membership changes.
type SnapshotTotals struct {
	TotalRAP    int64
	TotalItems  int
	UniqueItems int
}

// Owner pairs a holder with the instances of one item they hold, for the
// per-item owners listing.
type Owner struct {
	RobloxUserID int64  `json:"roblox_user_id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Copies       int    `json:"copies"`
	SerialNumber *int   `json:"serial_number"`
}
