package app

import (
	"log"
	"time"

	"tradeloom/database"
	"tradeloom/database/lessons"
	"tradeloom/telemetry"
)

// DecayRefresher periodically expires overrides whose backing lessons
// stopped being refreshed and prunes aged run and delivery history.
// Overrides decay instead of being deleted: the expiry timestamp stays
// on the row, so the audit trail survives.
type DecayRefresher struct {
	repo     *database.StrandRepository
	lessons  *lessons.Repository
	interval time.Duration
	ttl      time.Duration
	done     chan bool
}

// NewDecayRefresher creates a new decay refresher
func NewDecayRefresher(repo *database.StrandRepository, lessonsRepo *lessons.Repository, interval, ttl time.Duration) *DecayRefresher {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if ttl <= 0 {
		ttl = database.OverrideDefaultTTL
	}
	return &DecayRefresher{
		repo:     repo,
		lessons:  lessonsRepo,
		interval: interval,
		ttl:      ttl,
		done:     make(chan bool),
	}
}

// Start begins the refresh loop
func (dr *DecayRefresher) Start() {
	log.Println("🔄 Decay Refresher started")

	ticker := time.NewTicker(dr.interval)
	defer ticker.Stop()

	// Initial run
	dr.refresh()

	for {
		select {
		case <-ticker.C:
			dr.refresh()
		case <-dr.done:
			log.Println("🔄 Decay Refresher stopped")
			return
		}
	}
}

// Stop stops the refresh loop
func (dr *DecayRefresher) Stop() {
	close(dr.done)
}

// refresh expires stale overrides and prunes aged history rows
func (dr *DecayRefresher) refresh() {
	cutoff := time.Now().Add(-dr.ttl)

	expired, err := dr.lessons.ExpireStaleOverrides(cutoff)
	if err != nil {
		log.Printf("⚠️ Failed to expire stale overrides: %v", err)
	} else if expired > 0 {
		log.Printf("🔄 Expired %d stale overrides (not refreshed since %s)", expired, cutoff.Format(time.RFC3339))
	}

	if pruned, err := dr.repo.PruneRuns(); err != nil {
		log.Printf("⚠️ Failed to prune run history: %v", err)
	} else if pruned > 0 {
		log.Printf("🔄 Pruned %d aged run rows", pruned)
	}

	if pruned, err := dr.repo.PruneWebhookLogs(); err != nil {
		log.Printf("⚠️ Failed to prune webhook logs: %v", err)
	} else if pruned > 0 {
		log.Printf("🔄 Pruned %d aged webhook delivery logs", pruned)
	}

	active, err := dr.lessons.CountActiveOverrides()
	if err != nil {
		log.Printf("⚠️ Failed to count active overrides: %v", err)
		return
	}
	if telemetry.Default != nil {
		telemetry.Default.SetActiveOverrides(active)
	}
}
