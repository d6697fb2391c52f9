package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hoardwatch-api/internal/model"
	"hoardwatch-api/internal/repository"
	"hoardwatch-api/pkg/apierror"
	"hoardwatch-api/pkg/response"
)

// PriceHandler handles RAP ingestion HTTP requests.
type PriceHandler struct {
	store repository.CollectiblesStore
}

// NewPriceHandler creates a new price handler.
func NewPriceHandler(store repository.CollectiblesStore) *PriceHandler {
	return &PriceHandler{store: store}
}

// PricePointRequest represents one RAP observation in an ingest batch.
type PricePointRequest struct {
	AssetID int64 `json:"asset_id"`
	RAP     int64 `json:"rap"`
}

// IngestPrices handles POST /api/v1/prices/ingest
// The body is a batch of RAP observations from an external market feed.
func (h *PriceHandler) IngestPrices(w http.ResponseWriter, r *http.Request) {
	var batch []PricePointRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if len(batch) == 0 {
		response.Error(w, apierror.BadRequest("empty batch"))
		return
	}

	now := time.Now().UTC()
	points := make([]model.PricePoint, 0, len(batch))
	assetIDs := make([]int64, 0, len(batch))
	for _, p := range batch {
		if p.AssetID == 0 {
			response.Error(w, apierror.ValidationError("asset_id is required",
				apierror.FieldError{Field: "asset_id", Message: "must be non-zero"}))
			return
		}
		points = append(points, model.PricePoint{
			AssetID:   p.AssetID,
			RAP:       p.RAP,
			Timestamp: now,
		})
		assetIDs = append(assetIDs, p.AssetID)
	}

	// Placeholder rows keep the history joinable for unseen assets.
	if err := h.store.EnsureItems(r.Context(), assetIDs); err != nil {
		log.Printf("[PriceHandler] Failed to ensure items: %v", err)
		response.Error(w, apierror.InternalError("failed to record prices"))
		return
	}

	if err := h.store.RecordRAP(r.Context(), points); err != nil {
		log.Printf("[PriceHandler] Failed to record RAP batch: %v", err)
		response.Error(w, apierror.InternalError("failed to record prices"))
		return
	}

	response.OK(w, map[string]interface{}{
		"status":   "recorded",
		"recorded": len(points),
	})
}
