package api

import (
	"encoding/json"
	"net/http"
)

// handleGetRuns returns learning pass history, newest first
func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := getLimitParam(r)

	runs, err := s.repo.GetRecentRuns(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch runs", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleTriggerRun requests an immediate learning pass. The pass runs
// asynchronously; poll /api/runs for the result.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.runTrigger == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Learning runner not started", nil)
		return
	}

	accepted := s.runTrigger.TriggerRun("manual")

	w.Header().Set("Content-Type", "application/json")
	if !accepted {
		// A pass is already queued or running
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accepted": false,
			"reason":   "a pass is already pending",
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": true,
	})
}

// handleGetResonance returns the latest process-wide learning scalars
func (s *Server) handleGetResonance(w http.ResponseWriter, r *http.Request) {
	state, err := s.repo.GetLatestResonanceState()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch resonance state", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if state == nil {
		// No pass has completed yet; scalars start at zero
		json.NewEncoder(w).Encode(map[string]interface{}{
			"phi": 0.0, "rho": 0.0, "theta": 0.0, "omega": 0.0,
			"computed": false,
		})
		return
	}

	json.NewEncoder(w).Encode(state)
}
