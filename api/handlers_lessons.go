package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// handleGetLessons returns mined lessons with filters
func (s *Server) handleGetLessons(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	patternKey := r.URL.Query().Get("pattern_key")
	activeOnly := getBoolParam(r, "active", true)
	minEdge := getFloatParam(r, "min_edge", 0)
	limit := getLimitParam(r)

	lessonRows, err := s.lessons.GetLessons(kind, patternKey, activeOnly, minEdge, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch lessons", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"lessons": lessonRows,
		"count":   len(lessonRows),
	})
}

// handleGetLessonByID returns one lesson including its summary text
func (s *Server) handleGetLessonByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	lesson, err := s.lessons.GetLessonByID(id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch lesson", err)
		return
	}
	if lesson == nil {
		respondWithError(w, http.StatusNotFound, "Lesson not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lesson)
}
