package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tradeloom/database"
)

// Columns external callers may patch. Kind and braid level are
// immutable, and braid bookkeeping columns belong to the learning pass.
var patchableStrandColumns = map[string]bool{
	"content":           true,
	"persistence_score": true,
	"novelty_score":     true,
	"surprise_score":    true,
}

// handleIngestStrand accepts one raw strand from an event producer
func (s *Server) handleIngestStrand(w http.ResponseWriter, r *http.Request) {
	var strand database.LearningStrand
	if err := json.NewDecoder(r.Body).Decode(&strand); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := s.ingest.Ingest(&strand); err != nil {
		var ve *database.ValidationError
		if errors.As(err, &ve) {
			respondWithError(w, http.StatusBadRequest, ve.Error(), nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to ingest strand", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(strand)
}

// handleBackfillStrands accepts a historical batch of raw strands.
// Rows whose ids already exist are skipped, so replaying an export is safe.
func (s *Server) handleBackfillStrands(w http.ResponseWriter, r *http.Request) {
	var batch []*database.LearningStrand
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if len(batch) == 0 {
		respondWithError(w, http.StatusBadRequest, "Empty batch", nil)
		return
	}

	written, err := s.ingest.Backfill(batch)
	if err != nil {
		var ve *database.ValidationError
		if errors.As(err, &ve) {
			respondWithError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Backfill failed", err)
		return
	}

	log.Printf("📥 Backfill accepted %d strands, wrote %d new", len(batch), written)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"received": len(batch),
		"written":  written,
		"skipped":  int64(len(batch)) - written,
	})
}

// handleGetStrands returns strands filtered by kind, braid level and
// structural dimensions (dim.<name>=<value> query parameters)
func (s *Server) handleGetStrands(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	braidLevel := getIntParam(r, "braid_level", -1, nil, nil)
	limit := getLimitParam(r)
	filters := parseDimensionFilters(r)

	strandRows, err := s.repo.QueryStrands(kind, braidLevel, filters, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch strands", err)
		return
	}

	response := map[string]interface{}{
		"strands": strandRows,
		"count":   len(strandRows),
	}

	// Total is only meaningful for a fully pinned kind and level
	if kind != "" && braidLevel >= 0 && len(filters) == 0 {
		if total, err := s.repo.CountStrands(kind, braidLevel); err == nil {
			response["total"] = total
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetStrandByID returns one strand with its provenance fields
func (s *Server) handleGetStrandByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	strand, err := s.repo.GetStrandByID(id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch strand", err)
		return
	}
	if strand == nil {
		respondWithError(w, http.StatusNotFound, "Strand not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(strand)
}

// handlePatchStrand applies a partial update to mutable strand columns
func (s *Server) handlePatchStrand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(patch) == 0 {
		respondWithError(w, http.StatusBadRequest, "Empty patch", nil)
		return
	}

	for column := range patch {
		if !patchableStrandColumns[column] {
			respondWithError(w, http.StatusBadRequest, "Column not patchable: "+column, nil)
			return
		}
	}

	if err := s.repo.PatchStrand(id, patch); err != nil {
		var nf *database.NotFoundError
		if errors.As(err, &nf) {
			respondWithError(w, http.StatusNotFound, "Strand not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to patch strand", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetBraids returns compression braids (level >= 1), newest first
func (s *Server) handleGetBraids(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	since := getSinceParam(r)
	limit := getLimitParam(r)

	braids, err := s.repo.GetBraids(kind, since, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch braids", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"braids": braids,
		"count":  len(braids),
	})
}
