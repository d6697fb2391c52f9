package model

import "time"

// TokenData contains the requester identity stored with a session token.
type TokenData struct {
	AccountID    int64     `json:"account_id"`
	RobloxUserID int64     `json:"roblox_user_id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// APIAccount is a provisioned API credential mapped to a requester
// identity. Stored in MySQL alongside the rest of the account tooling.
type APIAccount struct {
	ID           int64
	RobloxUserID int64
	Username     string
	Role         string
	Active       bool
}
