package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"hoardwatch-api/internal/cache"
	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/repository"
	"hoardwatch-api/internal/roblox"
	"hoardwatch-api/pkg/apierror"
	"hoardwatch-api/pkg/response"
)

// itemDetailTTL bounds how long a cached item detail payload is served.
const itemDetailTTL = 5 * time.Minute

// catalogAPI is the slice of the Roblox client used for catalog refresh.
type catalogAPI interface {
	FetchItemDetails(ctx context.Context, assetID int64) (*roblox.ItemDetails, error)
}

// ItemHandler handles catalog item HTTP requests.
type ItemHandler struct {
	store   repository.CollectiblesStore
	catalog catalogAPI
	cache   cache.Cache
}

// NewItemHandler creates a new item handler.
func NewItemHandler(store repository.CollectiblesStore, catalog catalogAPI, itemCache cache.Cache) *ItemHandler {
	return &ItemHandler{
		store:   store,
		catalog: catalog,
		cache:   itemCache,
	}
}

// ItemResponse represents an item with its latest valuation.
type ItemResponse struct {
	model.Item
	RAP int64 `json:"rap"`
}

// ListItems handles GET /api/v1/items
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)

	items, total, err := h.store.ListItems(r.Context(), limit, (page-1)*limit)
	if err != nil {
		log.Printf("[ItemHandler] Failed to list items: %v", err)
		response.Error(w, apierror.InternalError("failed to list items"))
		return
	}

	assetIDs := make([]int64, len(items))
	for i, item := range items {
		assetIDs[i] = item.AssetID
	}
	raps, err := h.store.LatestRAPs(r.Context(), assetIDs)
	if err != nil {
		log.Printf("[ItemHandler] Failed to load RAP values: %v", err)
		raps = map[int64]int64{}
	}

	resp := make([]ItemResponse, len(items))
	for i, item := range items {
		resp[i] = ItemResponse{Item: item, RAP: raps[item.AssetID]}
	}

	response.JSONWithMeta(w, http.StatusOK, resp, page, limit, total)
}

// GetItem handles GET /api/v1/items/{asset_id}
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid asset_id"))
		return
	}

	payload, err := h.cachedItem(r.Context(), assetID)
	if err != nil {
		response.Error(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// cachedItem serves the full item response envelope through the cache.
func (h *ItemHandler) cachedItem(ctx context.Context, assetID int64) ([]byte, error) {
	key := fmt.Sprintf("item:%d", assetID)

	return h.cache.GetOrSet(ctx, key, itemDetailTTL, func() ([]byte, error) {
		item, err := h.store.GetItem(ctx, assetID)
		if err != nil {
			return nil, apierror.InternalError("failed to load item")
		}
		if item == nil {
			return nil, apierror.NotFound("item not found")
		}

		raps, err := h.store.LatestRAPs(ctx, []int64{assetID})
		if err != nil {
			return nil, apierror.InternalError("failed to load RAP")
		}

		envelope := response.Response{
			Success: true,
			Data:    ItemResponse{Item: *item, RAP: raps[assetID]},
		}
		return json.Marshal(envelope)
	})
}

// GetItemOwners handles GET /api/v1/items/{asset_id}/owners
func (h *ItemHandler) GetItemOwners(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid asset_id"))
		return
	}

	owners, err := h.store.ItemOwners(r.Context(), assetID)
	if err != nil {
		log.Printf("[ItemHandler] Failed to load owners for %d: %v", assetID, err)
		response.Error(w, apierror.InternalError("failed to load owners"))
		return
	}

	response.OK(w, map[string]interface{}{
		"asset_id": assetID,
		"owners":   owners,
		"count":    len(owners),
	})
}

// ManipulatedRequest represents the request body for flag changes.
type ManipulatedRequest struct {
	Manipulated bool `json:"manipulated"`
}

// SetManipulated handles PATCH /api/v1/items/{asset_id}/manipulated
func (h *ItemHandler) SetManipulated(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid asset_id"))
		return
	}

	var req ManipulatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if err := h.store.SetManipulated(r.Context(), assetID, req.Manipulated); err != nil {
		response.Error(w, apierror.NotFound("item not found"))
		return
	}

	h.cache.Delete(r.Context(), fmt.Sprintf("item:%d", assetID))

	response.OK(w, map[string]interface{}{
		"asset_id":    assetID,
		"manipulated": req.Manipulated,
	})
}

// RefreshItem handles POST /api/v1/items/{asset_id}/refresh
// It re-fetches catalog details from Roblox and backfills the item row.
func (h *ItemHandler) RefreshItem(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid asset_id"))
		return
	}

	details, err := h.catalog.FetchItemDetails(r.Context(), assetID)
	if err != nil {
		log.Printf("[ItemHandler] Catalog refresh failed for %d: %v", assetID, err)
		response.Error(w, apierror.ServiceUnavailable("catalog lookup failed"))
		return
	}

	if err := h.store.UpdateItemCatalog(r.Context(), assetID, details.Name, details.Description, details.ImageURL); err != nil {
		response.Error(w, apierror.NotFound("item not found"))
		return
	}

	h.cache.Delete(r.Context(), fmt.Sprintf("item:%d", assetID))

	response.OK(w, map[string]interface{}{
		"asset_id": assetID,
		"name":     details.Name,
		"status":   "refreshed",
	})
}

// parsePagination extracts page/limit query parameters with defaults.
func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 50

	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return page, limit
}
