package model

import "time"

// Item is a catalog entry for one limited collectible asset.
// Items are created lazily: the first time an asset id shows up in any
// holder's inventory a placeholder row is written, and the catalog
// details are backfilled later.
type Item struct {
	AssetID     int64     `json:"asset_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Manipulated bool      `json:"manipulated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PricePoint is one recorded RAP (recent average price) observation for
// an item. RAP is consumed from external market data, never computed here.
type PricePoint struct {
	AssetID   int64     `json:"asset_id"`
	RAP       int64     `json:"rap"`
	Timestamp time.Time `json:"timestamp"`
}
