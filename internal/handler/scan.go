package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"hoardwatch-api/internal/repository"
	"hoardwatch-api/internal/scanner"
	"hoardwatch-api/pkg/apierror"
	"hoardwatch-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ScanHandler handles owner-scan lifecycle HTTP requests.
type ScanHandler struct {
	scans *scanner.Service
	store repository.CollectiblesStore
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(scans *scanner.Service, store repository.CollectiblesStore) *ScanHandler {
	return &ScanHandler{
		scans: scans,
		store: store,
	}
}

// ScanRequest represents the request body for scan management.
type ScanRequest struct {
	Action string `json:"action"`
	UserID int64  `json:"user_id"`
}

// ManageScan handles POST /api/v1/items/{asset_id}/scan
func (h *ScanHandler) ManageScan(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid asset_id"))
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.UserID == 0 {
		response.Error(w, apierror.BadRequest("user_id is required"))
		return
	}

	holder, err := h.store.GetHolder(r.Context(), req.UserID)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to check permissions"))
		return
	}
	if holder == nil || !holder.CanManageScans() {
		response.Error(w, apierror.Forbidden("scan management requires admin role"))
		return
	}

	switch req.Action {
	case "start":
		item, err := h.store.GetItem(r.Context(), assetID)
		if err != nil {
			response.Error(w, apierror.InternalError("failed to look up item"))
			return
		}
		if item == nil {
			response.Error(w, apierror.NotFound("Item not found"))
			return
		}
		if err := h.scans.Start(assetID); err != nil {
			if err == scanner.ErrScanActive {
				response.Error(w, apierror.Conflict("a scan is already running for this item"))
				return
			}
			response.Error(w, apierror.InternalError("failed to start scan"))
			return
		}
		response.OK(w, map[string]interface{}{
			"status":   "started",
			"asset_id": assetID,
		})

	case "stop":
		stopped := h.scans.Stop(assetID)
		response.OK(w, map[string]interface{}{
			"status":   "stop_requested",
			"asset_id": assetID,
			"stopped":  stopped,
		})

	default:
		response.Error(w, apierror.BadRequest("action must be 'start' or 'stop'"))
	}
}

// GetScanStatus handles GET /api/v1/items/{asset_id}/scan
func (h *ScanHandler) GetScanStatus(w http.ResponseWriter, r *http.Request) {
	assetID, err := parseAssetID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid asset_id"))
		return
	}

	response.OK(w, h.scans.Status(assetID))
}

// parseAssetID extracts the asset_id URL parameter.
func parseAssetID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "asset_id"), 10, 64)
}
