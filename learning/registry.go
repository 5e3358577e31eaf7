// Package learning implements the clustering, braiding, scoring and
// override pipeline that turns raw trading-pipeline events into
// compressed evidence and bounded runtime adjustments.
package learning

import (
	"fmt"
	"sort"
	"strings"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

// Scores holds the three per-strand quality signals, each in [0,1].
type Scores struct {
	Persistence float64
	Novelty     float64
	Surprise    float64
}

// KindSpec declares how one strand kind is processed: which structural
// dimensions cluster it, which subset of those scopes its lessons,
// where its outcome metric lives, and how it is scored.
type KindSpec struct {
	Kind           string
	Dimensions     []string // ordered; cluster keys follow this order
	ScopeDims      []string // subset of Dimensions describing where a lesson applies
	OutcomeField   string
	Timeframes     []string // declared list for cross-timeframe self-similarity
	ActionCategory string
	Score          func(s *models.LearningStrand) Scores
	Features       func(s *models.LearningStrand) []float64
}

// Registry maps strand kinds to their processing declarations. It is
// resolved once per batch, never per strand.
type Registry struct {
	specs map[string]KindSpec
	order []string
}

// NewRegistry builds the default kind wiring.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]KindSpec)}

	r.register(KindSpec{
		Kind:           models.KindPattern,
		Dimensions:     []string{database.DimAsset, database.DimTimeframe, database.DimPatternType},
		ScopeDims:      []string{database.DimAsset, database.DimTimeframe},
		OutcomeField:   "realized_return",
		Timeframes:     []string{"1m", "5m", "15m", "1h", "4h", "1d"},
		ActionCategory: models.ActionPositionSizing,
		Score:          scorePattern,
		Features:       featuresPattern,
	})

	r.register(KindSpec{
		Kind:           models.KindPredictionReview,
		Dimensions:     []string{database.DimAsset, database.DimTimeframe, database.DimOutcomeBucket, database.DimStrengthRange},
		ScopeDims:      []string{database.DimAsset, database.DimTimeframe},
		OutcomeField:   "prediction_accuracy",
		Timeframes:     []string{"5m", "15m", "1h", "4h"},
		ActionCategory: models.ActionThresholdTuning,
		Score:          scorePredictionReview,
		Features:       featuresPredictionReview,
	})

	r.register(KindSpec{
		Kind:           models.KindTradeOutcome,
		Dimensions:     []string{database.DimAsset, database.DimTimeframe, database.DimRegime, database.DimRRProfile},
		ScopeDims:      []string{database.DimAsset, database.DimRegime},
		OutcomeField:   "realized_return",
		Timeframes:     []string{"5m", "15m", "1h", "4h"},
		ActionCategory: models.ActionPositionSizing,
		Score:          scoreTradeOutcome,
		Features:       featuresTradeOutcome,
	})

	r.register(KindSpec{
		Kind:           models.KindDecision,
		Dimensions:     []string{database.DimAsset, database.DimMarketConditions, database.DimOutcomeBucket},
		ScopeDims:      []string{database.DimAsset, database.DimMarketConditions},
		OutcomeField:   "outcome_score",
		Timeframes:     []string{"1h", "4h", "1d"},
		ActionCategory: models.ActionThresholdTuning,
		Score:          scoreDecision,
		Features:       featuresDecision,
	})

	return r
}

func (r *Registry) register(spec KindSpec) {
	r.specs[spec.Kind] = spec
	r.order = append(r.order, spec.Kind)
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Spec returns the declaration for a kind and whether it is known.
func (r *Registry) Spec(kind string) (KindSpec, bool) {
	spec, ok := r.specs[kind]
	return spec, ok
}

// DimensionValue extracts the value of one structural dimension from a
// strand. Bucketed dimensions (outcome, strength, risk/reward) are
// derived from numeric content; the rest are read as strings.
func (r *Registry) DimensionValue(spec KindSpec, dim string, s *models.LearningStrand) (string, bool) {
	content := s.ContentMap()

	switch dim {
	case database.DimOutcomeBucket:
		v, ok := contentFloat(content, spec.OutcomeField)
		if !ok {
			return "", false
		}
		return outcomeBucket(v), true
	case database.DimStrengthRange:
		conf, okC := contentFloat(content, "confidence")
		qual, okQ := contentFloat(content, "quality")
		if !okC && !okQ {
			return "", false
		}
		if !okC {
			conf = 0.5
		}
		if !okQ {
			qual = 0.5
		}
		return strengthRange(conf * qual), true
	case database.DimRRProfile:
		v, ok := contentFloat(content, "risk_reward")
		if !ok {
			return "", false
		}
		return rrProfile(v), true
	default:
		return contentString(content, dim)
	}
}

// OutcomeValue extracts the outcome metric a lesson is mined from.
func (r *Registry) OutcomeValue(spec KindSpec, s *models.LearningStrand) (float64, bool) {
	return contentFloat(s.ContentMap(), spec.OutcomeField)
}

// EvidenceCount returns how many raw observations a strand stands for:
// 1 for a raw strand, the accumulated source total for a braid.
func EvidenceCount(s *models.LearningStrand) int {
	if v, ok := contentFloat(s.ContentMap(), "evidence_count"); ok && v >= 1 {
		return int(v)
	}
	return 1
}

// outcomeBucket maps a realized outcome metric onto its categorical bucket.
func outcomeBucket(v float64) string {
	switch {
	case v >= 0.10:
		return database.OutcomeStrongWin
	case v >= 0.01:
		return database.OutcomeWin
	case v > -0.01:
		return database.OutcomeFlat
	case v > -0.10:
		return database.OutcomeLoss
	default:
		return database.OutcomeStrongLoss
	}
}

// strengthRange maps confidence x quality onto a coarse bucket.
func strengthRange(v float64) string {
	switch {
	case v >= 0.6:
		return database.StrengthHigh
	case v >= 0.3:
		return database.StrengthMid
	default:
		return database.StrengthLow
	}
}

// rrProfile maps a risk/reward ratio onto its bucket.
func rrProfile(v float64) string {
	switch {
	case v >= 2.5:
		return database.RRAggressive
	case v >= 1.2:
		return database.RRBalanced
	default:
		return database.RRConservative
	}
}

// BuildClusterKey renders the canonical cluster key for a strand, or an
// error naming the first missing dimension.
func (r *Registry) BuildClusterKey(spec KindSpec, s *models.LearningStrand) (string, error) {
	parts := make([]string, 0, len(spec.Dimensions))
	for _, dim := range spec.Dimensions {
		v, ok := r.DimensionValue(spec, dim, s)
		if !ok || v == "" {
			return "", database.NewValidationError(dim, "missing or empty dimension value")
		}
		parts = append(parts, dim+"="+v)
	}
	return strings.Join(parts, "|"), nil
}

// ScopeFromKey reduces a cluster key to the lesson scope: only the
// dimensions that describe where the finding applies.
func (r *Registry) ScopeFromKey(spec KindSpec, key string) string {
	values := ParseKey(key)
	parts := make([]string, 0, len(spec.ScopeDims))
	for _, dim := range spec.ScopeDims {
		if v, ok := values[dim]; ok {
			parts = append(parts, dim+"="+v)
		}
	}
	return strings.Join(parts, "|")
}

// FamilyKey strips the timeframe dimension from a cluster key so
// evidence of the same pattern family can be compared across scales.
func FamilyKey(key string) string {
	segments := strings.Split(key, "|")
	parts := segments[:0]
	for _, seg := range segments {
		if strings.HasPrefix(seg, database.DimTimeframe+"=") {
			continue
		}
		parts = append(parts, seg)
	}
	return strings.Join(parts, "|")
}

// ParseKey decodes a canonical key or scope into its dimension values.
func ParseKey(key string) map[string]string {
	out := make(map[string]string)
	if key == "" {
		return out
	}
	for _, seg := range strings.Split(key, "|") {
		if dim, value, ok := strings.Cut(seg, "="); ok {
			out[dim] = value
		}
	}
	return out
}

// SortedKey re-renders a parsed key with dimensions in sorted order.
// Used where map iteration would otherwise make output order unstable.
func SortedKey(values map[string]string) string {
	dims := make([]string, 0, len(values))
	for dim := range values {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	parts := make([]string, 0, len(dims))
	for _, dim := range dims {
		parts = append(parts, fmt.Sprintf("%s=%s", dim, values[dim]))
	}
	return strings.Join(parts, "|")
}

// contentFloat reads a numeric field from a decoded payload.
func contentFloat(content map[string]interface{}, key string) (float64, bool) {
	if content == nil {
		return 0, false
	}
	v, ok := content[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}

// contentString reads a string field from a decoded payload.
func contentString(content map[string]interface{}, key string) (string, bool) {
	if content == nil {
		return "", false
	}
	v, ok := content[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
