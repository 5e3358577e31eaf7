package learning

import (
	"time"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

// thresholdDeltaRange bounds how far a threshold-tuning override may
// push a parameter, in the parameter's own normalized units.
const thresholdDeltaRange = 0.25

// MaterializerConfig tunes the override gates and bounds.
type MaterializerConfig struct {
	// MinEdge is the significance gate on |edge|.
	MinEdge float64

	// MultiplierFloor and MultiplierCeil bound sizing multipliers.
	MultiplierFloor float64
	MultiplierCeil  float64

	// DeltaRange bounds threshold-tuning parameter deltas.
	DeltaRange float64

	// TTL is how long a fresh override stays active without renewal.
	TTL time.Duration
}

// DefaultMaterializerConfig returns the production bounds.
func DefaultMaterializerConfig() MaterializerConfig {
	return MaterializerConfig{
		MinEdge:         database.MinOverrideEdge,
		MultiplierFloor: database.MultiplierFloor,
		MultiplierCeil:  database.MultiplierCeil,
		DeltaRange:      thresholdDeltaRange,
		TTL:             database.OverrideDefaultTTL,
	}
}

// Materializer turns significant lessons into bounded overrides. It
// never deletes: an override whose lesson falls back out of gate simply
// stops being renewed and decays past its expiry.
type Materializer struct {
	cfg MaterializerConfig
}

// NewMaterializer creates a materializer. Zero config fields fall back
// to defaults.
func NewMaterializer(cfg MaterializerConfig) *Materializer {
	def := DefaultMaterializerConfig()
	if cfg.MinEdge <= 0 {
		cfg.MinEdge = def.MinEdge
	}
	if cfg.MultiplierFloor <= 0 {
		cfg.MultiplierFloor = def.MultiplierFloor
	}
	if cfg.MultiplierCeil <= 0 {
		cfg.MultiplierCeil = def.MultiplierCeil
	}
	if cfg.DeltaRange <= 0 {
		cfg.DeltaRange = def.DeltaRange
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &Materializer{cfg: cfg}
}

// Materialize builds the override for one lesson, or nil when the edge
// is below the significance gate. The lesson must already be persisted
// so the override can reference its id.
func (m *Materializer) Materialize(spec KindSpec, lesson *models.LearningLesson, now time.Time) *models.LearningOverride {
	if lesson == nil {
		return nil
	}
	edge := lesson.Edge
	if edge < m.cfg.MinEdge && edge > -m.cfg.MinEdge {
		return nil
	}

	expires := now.Add(m.cfg.TTL)
	o := &models.LearningOverride{
		PatternKey:      lesson.PatternKey,
		Scope:           lesson.Scope,
		ActionCategory:  spec.ActionCategory,
		ConfidenceScore: m.confidence(lesson),
		Edge:            edge,
		LessonID:        lesson.ID,
		ExpiresAt:       &expires,
	}

	switch spec.ActionCategory {
	case models.ActionThresholdTuning:
		delta := clampRange(edge*m.cfg.DeltaRange, -m.cfg.DeltaRange, m.cfg.DeltaRange)
		o.ParameterDelta = &delta
	default:
		multiplier := clampRange(1.0+edge, m.cfg.MultiplierFloor, m.cfg.MultiplierCeil)
		o.Multiplier = &multiplier
	}

	return o
}

// confidence folds sample depth, outcome spread and evidence freshness
// into one [0,1] trust figure for the resolver to weight by.
func (m *Materializer) confidence(lesson *models.LearningLesson) float64 {
	n := float64(lesson.SampleCount)
	depth := n / (n + smallSamplePenalty)
	spread := 1.0 / (1.0 + lesson.OutcomeVariance)
	return clamp01(depth * spread * lesson.DecayState)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
