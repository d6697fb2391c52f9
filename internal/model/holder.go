package model

import (
	"fmt"
	"time"
)

// Holder roles. Scans may only be started or stopped by admins and owners.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

// Holder is an external Roblox account observed to own collectible items.
// Display attributes may be placeholders when profile resolution fails;
// holders are upserted on every observation and never deleted.
type Holder struct {
	RobloxUserID int64     `json:"roblox_user_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Description  string    `json:"description,omitempty"`
	Role         string    `json:"role"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PlaceholderUsername is the fallback name used when the profile service
// cannot resolve a holder.
func PlaceholderUsername(robloxUserID int64) string {
	return fmt.Sprintf("user_%d", robloxUserID)
}

// CanManageScans reports whether the holder may start or stop owner scans.
func (h *Holder) CanManageScans() bool {
	return h.Role == RoleAdmin || h.Role == RoleOwner
}
