package api

import (
	"encoding/json"
	"net/http"

	"tradeloom/database"
	"tradeloom/learning"
)

// handleGetOverrides returns materialized runtime overrides
func (s *Server) handleGetOverrides(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	activeOnly := getBoolParam(r, "active", true)
	limit := getLimitParam(r)

	overrides, err := s.lessons.GetOverrides(category, activeOnly, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch overrides", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// handleResolveOverrides collapses the active overrides matching an
// execution context into the single adjustment the live engine applies.
// The context arrives as a canonical dim=value|dim=value string, e.g.
// /api/overrides/resolve?category=position_sizing&context=asset=BTC|timeframe=1h
func (s *Server) handleResolveOverrides(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category != database.ActionPositionSizing && category != database.ActionThresholdTuning {
		respondWithError(w, http.StatusBadRequest, "Unknown or missing category", nil)
		return
	}

	contextStr := r.URL.Query().Get("context")
	ctx := learning.ParseContext(contextStr)

	// Unbounded fetch here would defeat the partial index; active
	// overrides stay few by construction (TTL plus decay refresh).
	overrides, err := s.lessons.GetOverrides(category, true, maxListLimit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch overrides", err)
		return
	}

	resolution := learning.ResolveOverrides(overrides, ctx, category)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"category":   category,
		"context":    ctx,
		"considered": len(overrides),
		"resolution": resolution,
	})
}
