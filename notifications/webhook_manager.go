package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"tradeloom/cache"
	"tradeloom/database"
	"tradeloom/helpers"
	"tradeloom/telemetry"
)

// Event types deliverable to registered webhooks.
const (
	EventLessonMined          = "lesson_mined"
	EventOverrideMaterialized = "override_materialized"
	EventRunCompleted         = "run_completed"
)

// Registrations change rarely, so the active set is cached for an hour
// and invalidated explicitly on writes.
const (
	webhookCacheKey = "learning:webhooks:active"
	webhookCacheTTL = 1 * time.Hour
)

// WebhookManager fans learning events out to registered HTTP endpoints
type WebhookManager struct {
	repo   *database.StrandRepository
	redis  *cache.RedisClient
	client *http.Client
}

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	EventType  string                 `json:"event_type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Kind       string                 `json:"kind,omitempty"`
	PatternKey string                 `json:"pattern_key,omitempty"`
	Scope      string                 `json:"scope,omitempty"`
	Edge       float64                `json:"edge,omitempty"`
	Message    string                 `json:"message"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo *database.StrandRepository, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendLessonMined notifies matching webhooks about a freshly mined lesson
func (wm *WebhookManager) SendLessonMined(lesson *database.LearningLesson) {
	message := fmt.Sprintf("🧬 LESSON! %s in %s | Mean: %s vs Baseline: %s | Edge: %s | Samples: %d",
		lesson.PatternKey,
		helpers.FormatScope(lesson.Scope),
		helpers.FormatPercent(lesson.MeanOutcome),
		helpers.FormatPercent(lesson.Baseline),
		helpers.FormatEdge(lesson.Edge),
		lesson.SampleCount,
	)

	wm.send(WebhookPayload{
		EventType:  EventLessonMined,
		OccurredAt: time.Now(),
		Kind:       lesson.Kind,
		PatternKey: lesson.PatternKey,
		Scope:      lesson.Scope,
		Edge:       lesson.Edge,
		Message:    message,
		Metadata: map[string]interface{}{
			"lesson_id":    lesson.ID,
			"sample_count": lesson.SampleCount,
			"braid_level":  lesson.BraidLevel,
			"decay_state":  lesson.DecayState,
			"summary":      lesson.Summary,
		},
	})
}

// SendOverrideMaterialized notifies matching webhooks about a new or
// refreshed runtime override
func (wm *WebhookManager) SendOverrideMaterialized(override *database.LearningOverride, kind string) {
	adjustment := ""
	if override.Multiplier != nil {
		adjustment = "Sizing " + helpers.FormatMultiplier(*override.Multiplier)
	} else if override.ParameterDelta != nil {
		adjustment = "Threshold " + helpers.FormatPercent(*override.ParameterDelta)
	}

	message := fmt.Sprintf("⚙️ OVERRIDE! %s in %s | %s | Edge: %s | Confidence: %.2f",
		override.PatternKey,
		helpers.FormatScope(override.Scope),
		adjustment,
		helpers.FormatEdge(override.Edge),
		override.ConfidenceScore,
	)

	metadata := map[string]interface{}{
		"override_id":     override.ID,
		"action_category": override.ActionCategory,
		"lesson_id":       override.LessonID,
	}
	if override.ExpiresAt != nil {
		metadata["expires_at"] = override.ExpiresAt
	}

	wm.send(WebhookPayload{
		EventType:  EventOverrideMaterialized,
		OccurredAt: time.Now(),
		Kind:       kind,
		PatternKey: override.PatternKey,
		Scope:      override.Scope,
		Edge:       override.Edge,
		Message:    message,
		Metadata:   metadata,
	})
}

// SendRunCompleted notifies matching webhooks that a batch pass finished
func (wm *WebhookManager) SendRunCompleted(run *database.LearningRun) {
	message := fmt.Sprintf("✅ RUN #%d | Scored: %d | Braids: %d | Lessons: %d | Overrides: %d | Errors: %d",
		run.ID,
		run.StrandsScored,
		run.BraidsCreated,
		run.LessonsMined,
		run.OverridesMaterialized,
		run.ErrorCount,
	)

	wm.send(WebhookPayload{
		EventType:  EventRunCompleted,
		OccurredAt: time.Now(),
		Message:    message,
		Metadata: map[string]interface{}{
			"run_id":          run.ID,
			"triggered_by":    run.TriggeredBy,
			"max_braid_level": run.MaxBraidLevel,
			"duration_ms":     run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		},
	})
}

// send loads the registrations and delivers to every matching one (async)
func (wm *WebhookManager) send(payload WebhookPayload) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️ Failed to load webhooks: %v", err)
		return
	}

	if len(webhooks) == 0 {
		return
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range webhooks {
		if wm.shouldSend(hook, payload) {
			go wm.deliverWebhook(hook, payload.EventType, payloadBytes)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]database.LearningWebhook, error) {
	// Try cache first
	if wm.redis != nil {
		var cached []database.LearningWebhook
		if err := wm.redis.Get(context.Background(), webhookCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	// Fetch from DB
	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), webhookCacheKey, webhooks, webhookCacheTTL)
	}

	return webhooks, nil
}

func (wm *WebhookManager) shouldSend(hook database.LearningWebhook, payload WebhookPayload) bool {
	// Check event type filter
	if hook.EventTypes != "" && hook.EventTypes != "null" {
		// Lenient check: matches if the type is present in the string (JSON or CSV)
		if !strings.Contains(hook.EventTypes, payload.EventType) {
			return false
		}
	}

	// Check kind filter; run summaries carry no kind and pass through
	if payload.Kind != "" && hook.Kinds != "" && hook.Kinds != "null" {
		if !strings.Contains(hook.Kinds, payload.Kind) {
			return false
		}
	}

	// Check edge threshold, magnitude only: a strongly negative edge is
	// as notification-worthy as a strongly positive one
	if hook.MinEdge != nil && payload.EventType != EventRunCompleted {
		edge := payload.Edge
		if edge < 0 {
			edge = -edge
		}
		if edge < *hook.MinEdge {
			return false
		}
	}

	return true
}

func (wm *WebhookManager) deliverWebhook(hook database.LearningWebhook, eventType string, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	timeout := time.Duration(hook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = wm.client.Timeout
	}

	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	started := time.Now()
	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		req, reqErr := http.NewRequestWithContext(ctx, method, hook.URL, bytes.NewBuffer(payload))
		if reqErr != nil {
			cancel()
			err = reqErr
			break
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Tradeloom-Learning/1.0")

		// Auth headers
		if hook.AuthType == "BEARER" {
			req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
		} else if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		log.Printf("🔹 Sending %s webhook to %s (Attempt %d/%d)", eventType, hook.URL, attempt, maxRetries)

		resp, err = wm.client.Do(req)
		cancel()
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body := readBodyPrefix(resp)
			wm.logDelivery(hook.ID, eventType, string(payload), resp.StatusCode, body, attempt, true, time.Since(started))
			wm.recordStats(hook.ID, true, "")
			return
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}

		// Wait before retry
		if attempt < maxRetries {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	// Failed
	errMsg := ""
	statusCode := 0
	if err != nil {
		errMsg = err.Error()
	} else if resp != nil {
		statusCode = resp.StatusCode
		errMsg = fmt.Sprintf("unexpected status %d", statusCode)
	}

	wm.logDelivery(hook.ID, eventType, string(payload), statusCode, "", maxRetries, false, time.Since(started))
	wm.recordStats(hook.ID, false, errMsg)
}

// readBodyPrefix drains and closes a response body, keeping a short
// prefix for the audit log.
func readBodyPrefix(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil {
		return ""
	}
	return string(b)
}

func (wm *WebhookManager) logDelivery(webhookID int, eventType, payload string, code int, body string, attempt int, success bool, elapsed time.Duration) {
	logEntry := &database.LearningWebhookLog{
		WebhookID:      webhookID,
		EventType:      eventType,
		Payload:        payload,
		ResponseStatus: code,
		ResponseBody:   body,
		AttemptCount:   attempt,
		Success:        success,
		DurationMs:     elapsed.Milliseconds(),
	}

	if dbErr := wm.repo.SaveWebhookLog(logEntry); dbErr != nil {
		log.Printf("⚠️ Failed to save webhook log: %v", dbErr)
	}
}

func (wm *WebhookManager) recordStats(webhookID int, success bool, lastError string) {
	if telemetry.Default != nil {
		telemetry.Default.RecordWebhook(success)
	}
	if err := wm.repo.UpdateWebhookStats(webhookID, success, lastError); err != nil {
		log.Printf("⚠️ Failed to update webhook stats: %v", err)
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), webhookCacheKey)
		log.Println("🔄 Webhook cache invalidated")
	}
}
