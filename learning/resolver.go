package learning

import (
	"strings"

	models "tradeloom/database/models_pkg"
)

// ExecutionContext is the live situation overrides are resolved
// against: dimension=value pairs such as asset=BTC, timeframe=1h.
type ExecutionContext map[string]string

// ParseContext parses a canonical dim=value|dim=value string.
func ParseContext(scope string) ExecutionContext {
	return ExecutionContext(ParseKey(scope))
}

// ScopeMatches reports whether every dimension the scope pins carries
// the same value in the context. An empty scope matches everything; a
// scope pinning a dimension the context lacks does not match.
func ScopeMatches(scope string, ctx ExecutionContext) bool {
	if strings.TrimSpace(scope) == "" {
		return true
	}
	for dim, want := range ParseKey(scope) {
		got, ok := ctx[dim]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// ScopeSpecificity counts the dimensions a scope pins. More pinned
// dimensions mean a narrower, more specific override.
func ScopeSpecificity(scope string) int {
	return len(ParseKey(scope))
}

// Resolution is the single adjustment the live engine should apply for
// one action category in one context.
type Resolution struct {
	ActionCategory string  `json:"action_category"`
	Multiplier     float64 `json:"multiplier,omitempty"`
	ParameterDelta float64 `json:"parameter_delta,omitempty"`
	Confidence     float64 `json:"confidence"`
	Matched        int     `json:"matched"`
	OverrideIDs    []int64 `json:"override_ids"`
}

// ResolveOverrides collapses every override matching the context and
// category into one adjustment. Sizing overrides blend: a confidence-
// and specificity-weighted average of their multipliers. Threshold
// overrides do not average meaningfully, so the most specific scope
// wins, tie-broken by confidence and then recency. Returns nil when
// nothing matches.
func ResolveOverrides(overrides []models.LearningOverride, ctx ExecutionContext, category string) *Resolution {
	matched := make([]models.LearningOverride, 0, len(overrides))
	for _, o := range overrides {
		if o.ActionCategory != category {
			continue
		}
		if !ScopeMatches(o.Scope, ctx) {
			continue
		}
		matched = append(matched, o)
	}
	if len(matched) == 0 {
		return nil
	}

	if category == models.ActionThresholdTuning {
		return resolveMostSpecific(matched, category)
	}
	return resolveBlend(matched, category)
}

func resolveBlend(matched []models.LearningOverride, category string) *Resolution {
	res := &Resolution{ActionCategory: category, Matched: len(matched)}
	weightSum := 0.0
	multiplierSum := 0.0
	confidenceSum := 0.0
	for _, o := range matched {
		if o.Multiplier == nil {
			continue
		}
		w := o.ConfidenceScore * float64(1+ScopeSpecificity(o.Scope))
		if w <= 0 {
			continue
		}
		weightSum += w
		multiplierSum += w * (*o.Multiplier)
		confidenceSum += w * o.ConfidenceScore
		res.OverrideIDs = append(res.OverrideIDs, o.ID)
	}
	if weightSum == 0 {
		return nil
	}
	res.Multiplier = multiplierSum / weightSum
	res.Confidence = confidenceSum / weightSum
	return res
}

func resolveMostSpecific(matched []models.LearningOverride, category string) *Resolution {
	var winner *models.LearningOverride
	winnerSpec := -1
	for i := range matched {
		o := &matched[i]
		if o.ParameterDelta == nil {
			continue
		}
		spec := ScopeSpecificity(o.Scope)
		switch {
		case winner == nil, spec > winnerSpec:
		case spec == winnerSpec && o.ConfidenceScore > winner.ConfidenceScore:
		case spec == winnerSpec && o.ConfidenceScore == winner.ConfidenceScore && o.UpdatedAt.After(winner.UpdatedAt):
		default:
			continue
		}
		winner = o
		winnerSpec = spec
	}
	if winner == nil {
		return nil
	}
	return &Resolution{
		ActionCategory: category,
		ParameterDelta: *winner.ParameterDelta,
		Confidence:     winner.ConfidenceScore,
		Matched:        len(matched),
		OverrideIDs:    []int64{winner.ID},
	}
}
