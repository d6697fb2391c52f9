package handler

import (
	"log"
	"net/http"
	"strconv"

	"hoardwatch-api/internal/repository"
	"hoardwatch-api/internal/scanner"
	"hoardwatch-api/pkg/apierror"
	"hoardwatch-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// PlayerHandler handles holder-related HTTP requests.
type PlayerHandler struct {
	store repository.CollectiblesStore
	scans *scanner.Service
}

// NewPlayerHandler creates a new player handler.
func NewPlayerHandler(store repository.CollectiblesStore, scans *scanner.Service) *PlayerHandler {
	return &PlayerHandler{
		store: store,
		scans: scans,
	}
}

// GetPlayer handles GET /api/v1/players/{roblox_user_id}
func (h *PlayerHandler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	robloxUserID, err := parsePlayerID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid roblox_user_id"))
		return
	}

	holder, err := h.store.GetHolder(r.Context(), robloxUserID)
	if err != nil {
		log.Printf("[PlayerHandler] Failed to load holder %d: %v", robloxUserID, err)
		response.Error(w, apierror.InternalError("failed to load player"))
		return
	}
	if holder == nil {
		response.Error(w, apierror.NotFound("player not found"))
		return
	}

	snapshot, err := h.store.LatestSnapshot(r.Context(), robloxUserID)
	if err != nil {
		log.Printf("[PlayerHandler] Failed to load snapshot for %d: %v", robloxUserID, err)
		response.Error(w, apierror.InternalError("failed to load snapshot"))
		return
	}

	response.OK(w, map[string]interface{}{
		"player":   holder,
		"snapshot": snapshot,
	})
}

// RescanPlayer handles POST /api/v1/players/{roblox_user_id}/rescan
// It refreshes the holder's profile and reconciles their holdings
// synchronously, outside of any asset-wide scan.
func (h *PlayerHandler) RescanPlayer(w http.ResponseWriter, r *http.Request) {
	robloxUserID, err := parsePlayerID(r)
	if err != nil {
		response.Error(w, apierror.BadRequest("invalid roblox_user_id"))
		return
	}

	snapshot, err := h.scans.SyncHolder(r.Context(), robloxUserID)
	if err != nil {
		log.Printf("[PlayerHandler] Rescan failed for %d: %v", robloxUserID, err)
		response.Error(w, apierror.ServiceUnavailable("rescan failed"))
		return
	}

	response.OK(w, map[string]interface{}{
		"roblox_user_id": robloxUserID,
		"snapshot":       snapshot,
		"status":         "rescanned",
	})
}

// parsePlayerID extracts the roblox_user_id URL parameter.
func parsePlayerID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "roblox_user_id"), 10, 64)
}
