package scanner

import (
	"context"
	"log"
	"sync"
	"time"

	"hoardwatch-api/internal/config"
	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/repository"
	"hoardwatch-api/internal/roblox"
)

// profileAPI is the slice of the Roblox client used for holder enrichment.
type profileAPI interface {
	FetchUserInfo(ctx context.Context, userID int64) (*roblox.UserInfo, error)
	FetchHeadshotURL(ctx context.Context, userID int64) (string, error)
}

// holderReconciler syncs one holder's full holdings against storage.
type holderReconciler interface {
	Reconcile(ctx context.Context, robloxUserID int64) (*model.Snapshot, error)
}

// processOwners drains the queue, enriching and reconciling each holder.
// It returns once the queue is empty and the producer is done, or once a
// stop is requested. A failing holder is counted and skipped, never fatal
// to the loop.
func processOwners(ctx context.Context, assetID int64, api profileAPI, rec holderReconciler, store repository.CollectiblesStore, queue *ownerQueue, registry *Registry, cfg config.ScannerConfig) model.ScanResult {
	var result model.ScanResult

	for {
		if registry.StopRequested(assetID) {
			result.Stopped = true
			return result
		}
		if ctx.Err() != nil {
			result.Stopped = true
			return result
		}

		// Read the done flag before popping: MarkDone happens after the
		// producer's last Push, so an empty pop observed after done was
		// already set cannot be hiding a late entry. Checking done after
		// the pop would open a window where the final entries land between
		// the two reads and get dropped.
		done := queue.Done()
		entry, ok := queue.Pop()
		if !ok {
			if done {
				return result
			}
			if !sleepCtx(ctx, cfg.EmptyPollDelay) {
				result.Stopped = true
				return result
			}
			continue
		}

		holder := resolveHolder(ctx, api, entry.RobloxUserID)
		if err := processHolder(ctx, store, rec, holder); err != nil {
			log.Printf("[Scanner] Failed to process holder %d: %v", entry.RobloxUserID, err)
			result.Failed++
			registry.MarkFailed(assetID)
		} else {
			result.Processed++
			registry.MarkProcessed(assetID, holder.Username)
		}

		// Throttles the per-holder inventory crawl triggered above.
		if !sleepCtx(ctx, cfg.HolderDelay) {
			result.Stopped = true
			return result
		}
	}
}

// resolveHolder fetches profile info and avatar concurrently, falling
// back to placeholder attributes when either lookup fails.
func resolveHolder(ctx context.Context, api profileAPI, robloxUserID int64) *model.Holder {
	holder := &model.Holder{
		RobloxUserID: robloxUserID,
		Username:     model.PlaceholderUsername(robloxUserID),
		UpdatedAt:    time.Now().UTC(),
	}

	var (
		wg        sync.WaitGroup
		info      *roblox.UserInfo
		avatarURL string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		u, err := api.FetchUserInfo(ctx, robloxUserID)
		if err != nil {
			log.Printf("[Scanner] Profile lookup failed for user %d: %v", robloxUserID, err)
			return
		}
		info = u
	}()
	go func() {
		defer wg.Done()
		url, err := api.FetchHeadshotURL(ctx, robloxUserID)
		if err != nil {
			log.Printf("[Scanner] Avatar lookup failed for user %d: %v", robloxUserID, err)
			return
		}
		avatarURL = url
	}()
	wg.Wait()

	if info != nil {
		if info.Name != "" {
			holder.Username = info.Name
		}
		holder.DisplayName = info.DisplayName
		holder.Description = info.Description
	}
	holder.AvatarURL = avatarURL

	return holder
}

// processHolder is the per-holder unit of work: upsert the holder record
// then reconcile their holdings.
func processHolder(ctx context.Context, store repository.CollectiblesStore, rec holderReconciler, holder *model.Holder) error {
	if err := store.UpsertHolder(ctx, holder); err != nil {
		return err
	}
	if _, err := rec.Reconcile(ctx, holder.RobloxUserID); err != nil {
		return err
	}
	return nil
}
