package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	models "tradeloom/database/models_pkg"
)

const namespace = "tradeloom"

// Metrics holds the Prometheus instruments for the learning pipeline.
// Register once at startup via Init; duplicate registration panics.
type Metrics struct {
	// RunsTotal counts learning passes by trigger and status.
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures full pass duration.
	RunDurationSeconds prometheus.Histogram

	StrandsScored         prometheus.Counter
	BraidsCreated         prometheus.Counter
	LessonsMined          prometheus.Counter
	OverridesMaterialized prometheus.Counter
	RunErrors             prometheus.Counter
	TemplateFallbacks     prometheus.Counter

	// MaxBraidLevel tracks the deepest abstraction level reached.
	MaxBraidLevel prometheus.Gauge

	// ActiveOverrides tracks how many overrides are currently in force.
	ActiveOverrides prometheus.Gauge

	// ResonanceOmega exposes the meta-learning accumulator.
	ResonanceOmega prometheus.Gauge

	// WebhookDeliveries counts outbound notifications by status.
	WebhookDeliveries *prometheus.CounterVec
}

// Default is the process-wide metrics instance, set by Init.
var Default *Metrics

// Init creates and registers all instruments on the default registry.
func Init() *Metrics {
	Default = &Metrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "learning_runs_total",
				Help:      "Learning passes by trigger and status",
			},
			[]string{"trigger", "status"},
		),
		RunDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "learning_run_duration_seconds",
				Help:      "Full learning pass duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		StrandsScored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strands_scored_total",
			Help:      "Strands whose quality scores were computed or refreshed",
		}),
		BraidsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "braids_created_total",
			Help:      "Compression braids synthesized",
		}),
		LessonsMined: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lessons_mined_total",
			Help:      "Lessons written by the miner",
		}),
		OverridesMaterialized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_materialized_total",
			Help:      "Overrides written or renewed",
		}),
		RunErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_errors_total",
			Help:      "Contained errors across learning passes",
		}),
		TemplateFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_template_fallbacks_total",
			Help:      "Lesson summaries that fell back to the template",
		}),
		MaxBraidLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_braid_level",
			Help:      "Deepest braid level reached in the latest pass",
		}),
		ActiveOverrides: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_overrides",
			Help:      "Overrides currently in force",
		}),
		ResonanceOmega: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resonance_omega",
			Help:      "Meta-learning accumulator after the latest pass",
		}),
		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Webhook deliveries by status",
			},
			[]string{"status"},
		),
	}
	return Default
}

// RecordRun folds one finished pass into the counters.
func (m *Metrics) RecordRun(run *models.LearningRun, templateFallbacks int) {
	if m == nil || run == nil {
		return
	}
	status := "ok"
	if run.ErrorCount > 0 {
		status = "degraded"
	}
	m.RunsTotal.WithLabelValues(run.TriggeredBy, status).Inc()
	m.RunDurationSeconds.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	m.StrandsScored.Add(float64(run.StrandsScored))
	m.BraidsCreated.Add(float64(run.BraidsCreated))
	m.LessonsMined.Add(float64(run.LessonsMined))
	m.OverridesMaterialized.Add(float64(run.OverridesMaterialized))
	m.RunErrors.Add(float64(run.ErrorCount))
	m.TemplateFallbacks.Add(float64(templateFallbacks))
	m.MaxBraidLevel.Set(float64(run.MaxBraidLevel))
}

// RecordResonance exposes the latest scalar state.
func (m *Metrics) RecordResonance(omega float64) {
	if m == nil {
		return
	}
	m.ResonanceOmega.Set(omega)
}

// SetActiveOverrides updates the in-force override gauge.
func (m *Metrics) SetActiveOverrides(n int64) {
	if m == nil {
		return
	}
	m.ActiveOverrides.Set(float64(n))
}

// RecordWebhook counts one delivery attempt outcome.
func (m *Metrics) RecordWebhook(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.WebhookDeliveries.WithLabelValues(status).Inc()
}

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
