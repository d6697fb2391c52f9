package scanner

import (
	"context"
	"log"
	"time"

	"hoardwatch-api/internal/config"
	"hoardwatch-api/internal/roblox"
)

// ownersAPI is the slice of the Roblox client the fetcher consumes.
type ownersAPI interface {
	FetchOwnersPage(ctx context.Context, assetID int64, cursor string) (*roblox.OwnersPage, error)
}

// fetchOwners pages through the ownership listing for one asset and
// pushes every entry with a resolvable holder onto the queue. It marks
// the queue done exactly once, on every terminal path, so the consumer
// can always finish.
func fetchOwners(ctx context.Context, assetID int64, api ownersAPI, queue *ownerQueue, registry *Registry, cfg config.ScannerConfig) {
	defer queue.MarkDone()

	// The upstream API penalizes bursts immediately after idle.
	if !sleepCtx(ctx, cfg.ColdStartDelay) {
		return
	}

	cursor := ""
	for {
		if registry.StopRequested(assetID) {
			log.Printf("[Scanner] Stop requested for asset %d, fetcher terminating", assetID)
			return
		}
		if ctx.Err() != nil {
			return
		}

		page, err := api.FetchOwnersPage(ctx, assetID, cursor)
		if err != nil {
			return
		}

		switch page.Status {
		case roblox.PageRateLimited:
			wait := page.RetryAfter
			if wait < cfg.RateLimitFloor {
				wait = cfg.RateLimitFloor
			}
			log.Printf("[Scanner] Rate limited on asset %d, waiting %v before retrying cursor", assetID, wait)
			if !sleepCtx(ctx, wait) {
				return
			}
			// Retry the same cursor, no page is skipped.
			continue

		case roblox.PageNotFound:
			// Item does not exist upstream. Terminal, not an error.
			return

		case roblox.PageError:
			log.Printf("[Scanner] Owners page fetch failed for asset %d: %v", assetID, page.Err)
			return
		}

		registry.AddPage(assetID)
		if len(page.Entries) > 0 {
			queue.Push(page.Entries...)
			registry.AddTotal(assetID, len(page.Entries))
		}
		if page.NullOwners > 0 {
			log.Printf("[Scanner] Asset %d: skipped %d ownerless entries", assetID, page.NullOwners)
		}

		if page.NextCursor == "" {
			return
		}
		cursor = page.NextCursor

		if !sleepCtx(ctx, cfg.PageDelay) {
			return
		}
	}
}

// sleepCtx sleeps for d unless the context is cancelled first. Returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
