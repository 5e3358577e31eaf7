package learning

import (
	"log"
	"math"
	"sort"
	"time"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

// Edge shaping constants. The magnitude gain steepens the sigmoid so a
// few percent of outcome deviation already registers; the small-sample
// constant penalizes reliability until evidence piles up.
const (
	magnitudeGain      = 5.0
	smallSamplePenalty = 10.0
)

// MinerConfig tunes the evidence gates of the lesson miner.
type MinerConfig struct {
	// MinSamples is the evidence count below which no lesson is mined.
	MinSamples int

	// SupportSaturation is k in support = 1 - e^(-n/k).
	SupportSaturation float64

	// HalfLife controls how fast evidence freshness decays.
	HalfLife time.Duration
}

// DefaultMinerConfig returns the production gates.
func DefaultMinerConfig() MinerConfig {
	return MinerConfig{
		MinSamples:        database.MinLessonSamples,
		SupportSaturation: 20,
		HalfLife:          database.EvidenceHalfLife,
	}
}

// Miner turns evidence clusters into lesson statistics. It is a pure
// computation stage; persistence and ensemble admission happen in the
// orchestrator.
type Miner struct {
	registry *Registry
	cfg      MinerConfig
}

// NewMiner creates a miner. Zero config fields fall back to defaults.
func NewMiner(registry *Registry, cfg MinerConfig) *Miner {
	def := DefaultMinerConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.SupportSaturation <= 0 {
		cfg.SupportSaturation = def.SupportSaturation
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = def.HalfLife
	}
	return &Miner{registry: registry, cfg: cfg}
}

// LessonDraft carries the full statistics mined from one cluster,
// before ensemble admission and persistence.
type LessonDraft struct {
	Cluster     *Cluster
	Scope       string
	SampleCount int
	Mean        float64
	Variance    float64
	Baseline    float64
	Delta       float64
	Edge        float64
	Support     float64
	Reliability float64
	Stability   float64
	Freshness   float64
	Decay       float64
	Accuracy    float64
	Precision   float64
	Cost        float64
	Outcomes    []float64
	WindowStart time.Time
	WindowEnd   time.Time
}

// Baseline computes the evidence-weighted mean outcome across all
// strands of one kind, and the total evidence behind it. Braids count
// for the raw observations they compress.
func (m *Miner) Baseline(spec KindSpec, strands []*models.LearningStrand) (float64, int) {
	sum := 0.0
	n := 0
	for _, s := range strands {
		outcome, ok := m.registry.OutcomeValue(spec, s)
		if !ok {
			continue
		}
		w := EvidenceCount(s)
		sum += outcome * float64(w)
		n += w
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// Mine computes the lesson statistics for one cluster against the
// kind-wide baseline. Returns nil when the cluster carries too little
// evidence; thin evidence is not an error.
func (m *Miner) Mine(spec KindSpec, c *Cluster, baseline float64, now time.Time) *LessonDraft {
	type sample struct {
		outcome float64
		weight  float64
		at      time.Time
		id      string
	}

	samples := make([]sample, 0, len(c.Members))
	skipped := 0
	total := 0
	for _, s := range c.Members {
		outcome, ok := m.registry.OutcomeValue(spec, s)
		if !ok {
			skipped++
			continue
		}
		w := EvidenceCount(s)
		samples = append(samples, sample{
			outcome: outcome,
			weight:  float64(w),
			at:      s.CreatedAt,
			id:      s.ID,
		})
		total += w
	}
	if skipped > 0 {
		log.Printf("⚠️  Cluster %s: %d members lack a usable %s value, skipped", c.Key, skipped, spec.OutcomeField)
	}
	if total < m.cfg.MinSamples || len(samples) == 0 {
		return nil
	}

	// Deterministic series order regardless of fetch order.
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].at.Equal(samples[j].at) {
			return samples[i].id < samples[j].id
		}
		return samples[i].at.Before(samples[j].at)
	})

	weightSum := 0.0
	mean := 0.0
	for _, sm := range samples {
		mean += sm.outcome * sm.weight
		weightSum += sm.weight
	}
	mean /= weightSum

	variance := 0.0
	aboveBaseline := 0.0
	aboveZero := 0.0
	decaySum := 0.0
	outcomes := make([]float64, 0, len(samples))
	windowStart := samples[0].at
	windowEnd := samples[0].at
	for _, sm := range samples {
		dev := sm.outcome - mean
		variance += sm.weight * dev * dev
		if sm.outcome > baseline {
			aboveBaseline += sm.weight
		}
		if sm.outcome > 0 {
			aboveZero += sm.weight
		}
		decaySum += sm.weight * halfLifeDecay(now.Sub(sm.at), m.cfg.HalfLife)
		outcomes = append(outcomes, sm.outcome)
		if sm.at.Before(windowStart) {
			windowStart = sm.at
		}
		if sm.at.After(windowEnd) {
			windowEnd = sm.at
		}
	}
	variance /= weightSum

	// An all-identical cluster has zero variance; 1/(1+v) lands on the
	// neutral 1.0 instead of blowing up.
	invVariance := 1.0 / (1.0 + variance)
	n := float64(total)

	delta := mean - baseline
	support := 1.0 - math.Exp(-n/m.cfg.SupportSaturation)
	reliability := invVariance * n / (n + smallSamplePenalty)
	stability := invVariance
	magnitude := sigmoid(delta * magnitudeGain)
	freshness := halfLifeDecay(now.Sub(windowEnd), m.cfg.HalfLife)
	decay := decaySum / weightSum

	edge := delta * reliability * (support + magnitude + freshness + stability) * decay

	return &LessonDraft{
		Cluster:     c,
		Scope:       m.registry.ScopeFromKey(spec, c.Key),
		SampleCount: total,
		Mean:        mean,
		Variance:    variance,
		Baseline:    baseline,
		Delta:       delta,
		Edge:        edge,
		Support:     support,
		Reliability: reliability,
		Stability:   stability,
		Freshness:   freshness,
		Decay:       decay,
		Accuracy:    aboveBaseline / weightSum,
		Precision:   aboveZero / weightSum,
		Cost:        1.0 - support,
		Outcomes:    outcomes,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
}

// ToLesson converts the draft into a persistable record. Summary and
// selection score are filled in by the orchestrator afterwards.
func (d *LessonDraft) ToLesson() *models.LearningLesson {
	return &models.LearningLesson{
		PatternKey:      d.Cluster.Key,
		Scope:           d.Scope,
		Kind:            d.Cluster.Kind,
		BraidLevel:      d.Cluster.Level,
		SampleCount:     d.SampleCount,
		MeanOutcome:     d.Mean,
		OutcomeVariance: d.Variance,
		Baseline:        d.Baseline,
		Delta:           d.Delta,
		Edge:            d.Edge,
		DecayState:      d.Decay,
		WindowStart:     d.WindowStart,
		WindowEnd:       d.WindowEnd,
	}
}

// Candidate converts the draft into an ensemble candidate.
func (d *LessonDraft) Candidate() Candidate {
	return Candidate{
		Key:       d.Cluster.Key,
		Accuracy:  d.Accuracy,
		Precision: d.Precision,
		Stability: clamp01(d.Stability),
		Cost:      d.Cost,
		Outcomes:  d.Outcomes,
	}
}

// halfLifeDecay maps evidence age onto (0,1], 1.0 for brand-new data
// and one half per elapsed half-life.
func halfLifeDecay(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * age.Seconds() / halfLife.Seconds())
}

// sigmoid is the logistic squash onto (0,1).
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
