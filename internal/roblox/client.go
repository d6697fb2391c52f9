// Package roblox wraps the external Roblox web APIs consumed by the
// scanner: the per-asset ownership listing, per-user collectible
// inventories, profile/avatar lookups, and catalog details. Responses are
// parsed once at this boundary into typed results.
package roblox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hoardwatch-api/internal/config"
)

// PageStatus classifies the outcome of one ownership-listing page fetch.
type PageStatus int

const (
	// PageOK means the page was fetched and parsed.
	PageOK PageStatus = iota
	// PageRateLimited means the upstream returned 429; retry the same cursor.
	PageRateLimited
	// PageNotFound means the asset does not exist upstream. Terminal.
	PageNotFound
	// PageError means a non-retryable status or transport failure. Terminal.
	PageError
)

// OwnerEntry is one validated entry from the ownership listing. Entries
// whose owner reference was null are filtered out before this type is built.
type OwnerEntry struct {
	RobloxUserID int64
	UserAssetID  int64
	SerialNumber *int
}

// OwnersPage is the tagged result of one ownership-listing request.
type OwnersPage struct {
	Status     PageStatus
	Entries    []OwnerEntry
	NullOwners int           // "no owner" placeholders skipped on this page
	NextCursor string        // empty when this is the last page
	RetryAfter time.Duration // server hint, only set for PageRateLimited
	Err        error         // only set for PageError
}

// Client talks to the Roblox web APIs.
type Client struct {
	http           *http.Client
	ownersBase     string
	inventoryBase  string
	usersBase      string
	thumbnailsBase string
	catalogBase    string
	cookie         string
	pageLimit      int
	rateLimitFloor time.Duration
}

// New creates a Roblox API client from configuration.
func New(cfg config.RobloxConfig, scanCfg config.ScannerConfig) *Client {
	return &Client{
		http:           &http.Client{Timeout: cfg.RequestTimeout},
		ownersBase:     strings.TrimRight(cfg.OwnersBaseURL, "/"),
		inventoryBase:  strings.TrimRight(cfg.InventoryBaseURL, "/"),
		usersBase:      strings.TrimRight(cfg.UsersBaseURL, "/"),
		thumbnailsBase: strings.TrimRight(cfg.ThumbnailsBaseURL, "/"),
		catalogBase:    strings.TrimRight(cfg.CatalogBaseURL, "/"),
		cookie:         cleanCookie(cfg.SecurityCookie),
		pageLimit:      scanCfg.PageLimit,
		rateLimitFloor: scanCfg.RateLimitFloor,
	}
}

// cleanCookie strips quoting that tends to sneak into env values.
func cleanCookie(raw string) string {
	return strings.Trim(raw, `"'`)
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	if c.cookie != "" {
		req.Header.Set("Cookie", ".ROBLOSECURITY="+c.cookie)
	}
	return req, nil
}

// ownersResponse mirrors the wire shape of the ownership listing.
type ownersResponse struct {
	NextPageCursor *string `json:"nextPageCursor"`
	Data           []struct {
		ID           int64 `json:"id"`
		SerialNumber *int  `json:"serialNumber"`
		Owner        *struct {
			ID int64 `json:"id"`
		} `json:"owner"`
	} `json:"data"`
}

// FetchOwnersPage fetches one page of the ownership listing for an asset.
// All outcomes are reported through the returned OwnersPage; the error
// return is reserved for context cancellation.
func (c *Client) FetchOwnersPage(ctx context.Context, assetID int64, cursor string) (*OwnersPage, error) {
	url := fmt.Sprintf("%s/%d/owners?limit=%d&sortOrder=Asc", c.ownersBase, assetID, c.pageLimit)
	if cursor != "" {
		url += "&cursor=" + cursor
	}

	req, err := c.newRequest(ctx, url)
	if err != nil {
		return &OwnersPage{Status: PageError, Err: err}, nil
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &OwnersPage{Status: PageError, Err: err}, nil
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return &OwnersPage{Status: PageRateLimited, RetryAfter: retryAfterHint(res)}, nil
	case res.StatusCode == http.StatusNotFound:
		return &OwnersPage{Status: PageNotFound}, nil
	case res.StatusCode != http.StatusOK:
		return &OwnersPage{
			Status: PageError,
			Err:    fmt.Errorf("owners API returned status %d", res.StatusCode),
		}, nil
	}

	var body ownersResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return &OwnersPage{Status: PageError, Err: fmt.Errorf("decode owners page: %w", err)}, nil
	}

	page := &OwnersPage{Status: PageOK}
	for _, entry := range body.Data {
		if entry.Owner == nil || entry.Owner.ID == 0 {
			page.NullOwners++
			continue
		}
		page.Entries = append(page.Entries, OwnerEntry{
			RobloxUserID: entry.Owner.ID,
			UserAssetID:  entry.ID,
			SerialNumber: entry.SerialNumber,
		})
	}
	if body.NextPageCursor != nil {
		page.NextCursor = *body.NextPageCursor
	}
	return page, nil
}

// retryAfterHint reads the Retry-After header, zero when absent or malformed.
func retryAfterHint(res *http.Response) time.Duration {
	raw := res.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RateLimitWait returns how long to wait before retrying a rate-limited
// request: the server hint, but never below the configured floor.
func (c *Client) RateLimitWait(hint time.Duration) time.Duration {
	if hint > c.rateLimitFloor {
		return hint
	}
	return c.rateLimitFloor
}

// Collectible is one owned collectible instance from a user's inventory.
type Collectible struct {
	AssetID      int64  `json:"assetId"`
	UserAssetID  int64  `json:"userAssetId"`
	SerialNumber *int   `json:"serialNumber"`
	Name         string `json:"name"`
}

type collectiblesResponse struct {
	NextPageCursor *string       `json:"nextPageCursor"`
	Data           []Collectible `json:"data"`
}

// FetchCollectibles crawls a user's full collectible inventory. It follows
// the same 429 discipline as the owners listing: wait at least the floor
// and retry the identical cursor. Any other failure aborts the crawl and
// returns whatever was collected so far along with the error.
func (c *Client) FetchCollectibles(ctx context.Context, robloxUserID int64) ([]Collectible, error) {
	var all []Collectible
	cursor := ""

	for {
		url := fmt.Sprintf("%s/%d/assets/collectibles?limit=%d&sortOrder=Asc", c.inventoryBase, robloxUserID, c.pageLimit)
		if cursor != "" {
			url += "&cursor=" + cursor
		}

		req, err := c.newRequest(ctx, url)
		if err != nil {
			return all, err
		}

		res, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			return all, fmt.Errorf("fetch collectibles for %d: %w", robloxUserID, err)
		}

		if res.StatusCode == http.StatusTooManyRequests {
			wait := c.RateLimitWait(retryAfterHint(res))
			res.Body.Close()
			log.Printf("[RobloxClient] 429 on collectibles for %d - waiting %v", robloxUserID, wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return all, ctx.Err()
			}
		}

		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			return all, fmt.Errorf("collectibles API returned status %d for user %d", res.StatusCode, robloxUserID)
		}

		var body collectiblesResponse
		err = json.NewDecoder(res.Body).Decode(&body)
		res.Body.Close()
		if err != nil {
			return all, fmt.Errorf("decode collectibles page: %w", err)
		}

		all = append(all, body.Data...)

		if body.NextPageCursor == nil || *body.NextPageCursor == "" {
			return all, nil
		}
		cursor = *body.NextPageCursor
	}
}
