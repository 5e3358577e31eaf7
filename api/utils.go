package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Query limits shared by the list endpoints.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// getFloatParam retrieves a float query parameter with default value
func getFloatParam(r *http.Request, key string, defaultVal float64) float64 {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}

	return val
}

// getBoolParam retrieves a boolean query parameter with default value
func getBoolParam(r *http.Request, key string, defaultVal bool) bool {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}

	return val
}

// getLimitParam retrieves the standard list limit parameter
func getLimitParam(r *http.Request) int {
	minVal, maxVal := 1, maxListLimit
	return getIntParam(r, "limit", defaultListLimit, &minVal, &maxVal)
}

// getSinceParam parses an RFC3339 "since" parameter; zero time when absent
func getSinceParam(r *http.Request) time.Time {
	valStr := r.URL.Query().Get("since")
	if valStr == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, valStr)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseDimensionFilters collects dim.<name>=<value> query parameters
// into structural equality filters for the content payload.
func parseDimensionFilters(r *http.Request) map[string]string {
	filters := map[string]string{}
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "dim.") || len(values) == 0 {
			continue
		}
		name := strings.TrimPrefix(key, "dim.")
		if name != "" && values[0] != "" {
			filters[name] = values[0]
		}
	}
	return filters
}

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Printf("API Error [%d]: %s - %v", code, message, err)
	} else {
		log.Printf("API Error [%d]: %s", code, message)
	}
	http.Error(w, message, code)
}
