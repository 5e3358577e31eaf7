package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// handleGetBraidDepth returns the strand count per kind and braid level
func (s *Server) handleGetBraidDepth(w http.ResponseWriter, r *http.Request) {
	histogram, err := s.analytics.GetBraidDepthHistogram()
	if err != nil {
		log.Printf("❌ Failed to fetch braid depth histogram: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch depth histogram", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"depth": histogram,
		"count": len(histogram),
	})
}

// handleGetCoverage returns lesson and override coverage per kind
func (s *Server) handleGetCoverage(w http.ResponseWriter, r *http.Request) {
	lessonCoverage, err := s.analytics.GetLessonCoverage()
	if err != nil {
		log.Printf("❌ Failed to fetch lesson coverage: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch lesson coverage", err)
		return
	}

	overrideCoverage, err := s.analytics.GetOverrideCoverage()
	if err != nil {
		log.Printf("❌ Failed to fetch override coverage: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch override coverage", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"lessons":   lessonCoverage,
		"overrides": overrideCoverage,
	})
}

// handleGetTopScopes returns the scopes with the most active overrides
func (s *Server) handleGetTopScopes(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 20, nil, nil)

	scopes, err := s.analytics.GetTopScopes(limit)
	if err != nil {
		log.Printf("❌ Failed to fetch top scopes: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch top scopes", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scopes": scopes,
		"count":  len(scopes),
	})
}

// handleGetThroughput returns per-day run counters
func (s *Server) handleGetThroughput(w http.ResponseWriter, r *http.Request) {
	days := getIntParam(r, "days", 7, nil, nil)

	throughput, err := s.analytics.GetRunThroughput(days)
	if err != nil {
		log.Printf("❌ Failed to fetch run throughput: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch throughput", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"throughput": throughput,
		"days_back":  days,
		"count":      len(throughput),
	})
}
