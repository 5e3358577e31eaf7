package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"tradeloom/database"
	"tradeloom/database/analytics"
	"tradeloom/database/lessons"
	"tradeloom/database/strands"
	"tradeloom/notifications"
	"tradeloom/realtime"
	"tradeloom/telemetry"
)

// Server handles HTTP API requests
type Server struct {
	repo       *database.StrandRepository
	ingest     *strands.Repository
	lessons    *lessons.Repository
	analytics  *analytics.Repository
	webhookMq  *notifications.WebhookManager
	broker     *realtime.Broker
	runTrigger RunTrigger
}

// RunTrigger lets the API request an immediate learning pass without
// owning the runner's lifecycle.
type RunTrigger interface {
	TriggerRun(reason string) bool
}

// NewServer creates a new API server instance
func NewServer(repo *database.StrandRepository, ingest *strands.Repository, lessonsRepo *lessons.Repository, analyticsRepo *analytics.Repository, webhookMq *notifications.WebhookManager, broker *realtime.Broker) *Server {
	return &Server{
		repo:      repo,
		ingest:    ingest,
		lessons:   lessonsRepo,
		analytics: analyticsRepo,
		webhookMq: webhookMq,
		broker:    broker,
	}
}

// SetRunTrigger injects the learning runner's trigger hook
func (s *Server) SetRunTrigger(trigger RunTrigger) {
	s.runTrigger = trigger
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Register routes
	mux.Handle("GET /api/events", s.broker) // SSE Endpoint
	mux.Handle("GET /metrics", telemetry.Handler())

	// Strand Routes
	mux.HandleFunc("POST /api/strands", s.handleIngestStrand)
	mux.HandleFunc("POST /api/strands/backfill", s.handleBackfillStrands)
	mux.HandleFunc("GET /api/strands", s.handleGetStrands)
	mux.HandleFunc("GET /api/strands/{id}", s.handleGetStrandByID)
	mux.HandleFunc("PATCH /api/strands/{id}", s.handlePatchStrand)
	mux.HandleFunc("GET /api/braids", s.handleGetBraids)

	// Lesson Routes
	mux.HandleFunc("GET /api/lessons", s.handleGetLessons)
	mux.HandleFunc("GET /api/lessons/{id}", s.handleGetLessonByID)

	// Override Routes
	mux.HandleFunc("GET /api/overrides", s.handleGetOverrides)
	mux.HandleFunc("GET /api/overrides/resolve", s.handleResolveOverrides)

	// Run and Resonance Routes
	mux.HandleFunc("GET /api/runs", s.handleGetRuns)
	mux.HandleFunc("POST /api/runs/trigger", s.handleTriggerRun)
	mux.HandleFunc("GET /api/resonance", s.handleGetResonance)

	// Aggregate Statistics Routes
	mux.HandleFunc("GET /api/stats/depth", s.handleGetBraidDepth)
	mux.HandleFunc("GET /api/stats/coverage", s.handleGetCoverage)
	mux.HandleFunc("GET /api/stats/scopes", s.handleGetTopScopes)
	mux.HandleFunc("GET /api/stats/throughput", s.handleGetThroughput)

	// Webhook Management Routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	mux.HandleFunc("GET /health", s.handleHealth)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are distributed across multiple files:
// - handlers_strands.go: Strand ingest, backfill, queries and braids
// - handlers_lessons.go: Mined lessons
// - handlers_overrides.go: Runtime overrides and context resolution
// - handlers_runs.go: Run history, manual triggers, resonance state
// - handlers_stats.go: Aggregate coverage and throughput statistics
// - handlers_config.go: Webhook management, health check
