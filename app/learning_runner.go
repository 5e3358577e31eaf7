package app

import (
	"context"
	"log"
	"time"

	"tradeloom/cache"
	"tradeloom/learning"
	"tradeloom/notifications"
	"tradeloom/realtime"
	"tradeloom/telemetry"
)

// A pass over a month of strands finishes in seconds; an hour means
// something is badly wrong with the store.
const passTimeout = 1 * time.Hour

// Redis channel external consumers subscribe to for pass results.
const eventChannel = "learning:events"

// LearningRunner drives periodic learning passes and fans the results
// out to the event stream, registered webhooks and the redis channel.
// Passes are serialized: the loop owns the orchestrator, and a manual
// trigger queues at most one extra pass.
type LearningRunner struct {
	orchestrator *learning.Orchestrator
	redis        *cache.RedisClient
	broker       *realtime.Broker
	webhooks     *notifications.WebhookManager
	interval     time.Duration
	fastInterval time.Duration
	trigger      chan string
	done         chan bool
}

// NewLearningRunner creates a new learning pass runner
func NewLearningRunner(orchestrator *learning.Orchestrator, redis *cache.RedisClient, broker *realtime.Broker, webhooks *notifications.WebhookManager, interval, fastInterval time.Duration) *LearningRunner {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if fastInterval <= 0 || fastInterval > interval {
		fastInterval = interval
	}
	return &LearningRunner{
		orchestrator: orchestrator,
		redis:        redis,
		broker:       broker,
		webhooks:     webhooks,
		interval:     interval,
		fastInterval: fastInterval,
		trigger:      make(chan string, 1),
		done:         make(chan bool),
	}
}

// Start begins the periodic learning loop
func (lr *LearningRunner) Start() {
	log.Printf("🧠 Learning Runner started (interval %s, accelerated %s)", lr.interval, lr.fastInterval)

	ticker := time.NewTicker(lr.interval)
	defer ticker.Stop()

	// Run immediately on start
	accelerated := lr.runPass("startup", false, ticker)

	for {
		select {
		case <-ticker.C:
			accelerated = lr.runPass("interval", accelerated, ticker)
		case reason := <-lr.trigger:
			accelerated = lr.runPass(reason, accelerated, ticker)
		case <-lr.done:
			log.Println("🧠 Learning Runner stopped")
			return
		}
	}
}

// Stop gracefully stops the runner
func (lr *LearningRunner) Stop() {
	close(lr.done)
}

// TriggerRun requests an immediate pass. Returns false when one is
// already queued; the queued pass covers the caller's request too.
func (lr *LearningRunner) TriggerRun(reason string) bool {
	select {
	case lr.trigger <- reason:
		return true
	default:
		return false
	}
}

// runPass executes one pass and publishes its results. Returns whether
// the accelerated cadence should be active, adjusting the ticker on
// every transition.
func (lr *LearningRunner) runPass(reason string, accelerated bool, ticker *time.Ticker) bool {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	report, err := lr.orchestrator.RunOnce(ctx, reason)
	if err != nil {
		log.Printf("❌ Learning pass aborted: %v", err)
		return accelerated
	}

	if telemetry.Default != nil {
		telemetry.Default.RecordRun(report.Run, report.TemplateFallbacks)
		telemetry.Default.RecordResonance(report.Resonance.Omega)
	}

	lr.publish(report)

	// Cadence follows the omega scalar: accelerate while it stays
	// above threshold, return to normal once it saturates back down
	shouldAccelerate := report.Resonance.ShouldAccelerateLearning()
	if shouldAccelerate && !accelerated {
		ticker.Reset(lr.fastInterval)
		log.Printf("🔥 Accelerated learning cadence: every %s", lr.fastInterval)
	} else if !shouldAccelerate && accelerated {
		ticker.Reset(lr.interval)
		log.Printf("🧠 Normal learning cadence restored: every %s", lr.interval)
	}
	return shouldAccelerate
}

// publish fans one pass report out to every notification surface
func (lr *LearningRunner) publish(report *learning.RunReport) {
	// Overrides reference lessons by id; resolve kinds for the
	// webhook kind filter
	lessonKinds := make(map[int64]string, len(report.Lessons))
	for _, lesson := range report.Lessons {
		lessonKinds[lesson.ID] = lesson.Kind
	}

	if lr.broker != nil {
		for _, lesson := range report.Lessons {
			lr.broker.Broadcast(notifications.EventLessonMined, lesson)
		}
		for _, override := range report.Overrides {
			lr.broker.Broadcast(notifications.EventOverrideMaterialized, override)
		}
		lr.broker.Broadcast(notifications.EventRunCompleted, report.Run)
	}

	if lr.webhooks != nil {
		for _, lesson := range report.Lessons {
			lr.webhooks.SendLessonMined(lesson)
		}
		for _, override := range report.Overrides {
			lr.webhooks.SendOverrideMaterialized(override, lessonKinds[override.LessonID])
		}
		lr.webhooks.SendRunCompleted(report.Run)
	}

	if lr.redis != nil {
		summary := map[string]interface{}{
			"event":  notifications.EventRunCompleted,
			"run_id": report.Run.ID,
			"counts": map[string]int{
				"strands_scored": report.Run.StrandsScored,
				"braids":         report.Run.BraidsCreated,
				"lessons":        report.Run.LessonsMined,
				"overrides":      report.Run.OverridesMaterialized,
				"errors":         report.Run.ErrorCount,
			},
			"omega": report.Resonance.Omega,
		}
		if err := lr.redis.Publish(context.Background(), eventChannel, summary); err != nil {
			log.Printf("⚠️ Failed to publish run summary: %v", err)
		}
	}
}
