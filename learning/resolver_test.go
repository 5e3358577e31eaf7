package learning

import (
	"testing"
	"time"

	models "tradeloom/database/models_pkg"
)

func TestScopeMatches(t *testing.T) {
	ctx := ExecutionContext{"asset": "BTC", "timeframe": "1h", "regime": "trending"}

	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{"empty scope matches everything", "", true},
		{"whitespace scope matches everything", "   ", true},
		{"single pinned dimension", "asset=BTC", true},
		{"all pinned dimensions match", "asset=BTC|timeframe=1h", true},
		{"value mismatch", "asset=BTC|timeframe=4h", false},
		{"dimension absent from context", "market_conditions=volatile", false},
		{"extra context dimensions are fine", "regime=trending", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeMatches(tt.scope, ctx); got != tt.want {
				t.Errorf("expected %v for scope %q, got %v", tt.want, tt.scope, got)
			}
		})
	}
}

func TestScopeSpecificity(t *testing.T) {
	tests := []struct {
		scope string
		want  int
	}{
		{"", 0},
		{"asset=BTC", 1},
		{"asset=BTC|timeframe=1h", 2},
		{"asset=BTC|timeframe=1h|regime=trending", 3},
	}

	for _, tt := range tests {
		if got := ScopeSpecificity(tt.scope); got != tt.want {
			t.Errorf("ScopeSpecificity(%q): expected %d, got %d", tt.scope, tt.want, got)
		}
	}
}

func TestParseContext(t *testing.T) {
	ctx := ParseContext("asset=BTC|timeframe=1h")
	if len(ctx) != 2 || ctx["asset"] != "BTC" || ctx["timeframe"] != "1h" {
		t.Errorf("unexpected context: %v", ctx)
	}
}

func TestResolveSizingBlends(t *testing.T) {
	overrides := []models.LearningOverride{
		{
			ID:              1,
			Scope:           "asset=BTC",
			ActionCategory:  models.ActionPositionSizing,
			Multiplier:      floatPtr(1.5),
			ConfidenceScore: 0.8,
		},
		{
			ID:              2,
			Scope:           "",
			ActionCategory:  models.ActionPositionSizing,
			Multiplier:      floatPtr(0.9),
			ConfidenceScore: 0.5,
		},
		{
			// Wrong category, never considered.
			ID:              3,
			Scope:           "asset=BTC",
			ActionCategory:  models.ActionThresholdTuning,
			ParameterDelta:  floatPtr(0.2),
			ConfidenceScore: 1.0,
		},
		{
			// Scope mismatch, never considered.
			ID:              4,
			Scope:           "asset=ETH",
			ActionCategory:  models.ActionPositionSizing,
			Multiplier:      floatPtr(2.0),
			ConfidenceScore: 1.0,
		},
	}

	ctx := ExecutionContext{"asset": "BTC", "timeframe": "1h"}
	res := ResolveOverrides(overrides, ctx, models.ActionPositionSizing)
	if res == nil {
		t.Fatal("expected a resolution")
	}

	// Weights: 0.8*(1+1)=1.6 for the scoped row, 0.5*(1+0)=0.5 for the
	// global one.
	wantMultiplier := (1.6*1.5 + 0.5*0.9) / 2.1
	wantConfidence := (1.6*0.8 + 0.5*0.5) / 2.1
	if !almostEqual(res.Multiplier, wantMultiplier) {
		t.Errorf("expected blended multiplier %.6f, got %.6f", wantMultiplier, res.Multiplier)
	}
	if !almostEqual(res.Confidence, wantConfidence) {
		t.Errorf("expected blended confidence %.6f, got %.6f", wantConfidence, res.Confidence)
	}
	if res.Matched != 2 {
		t.Errorf("expected 2 matched overrides, got %d", res.Matched)
	}
	if len(res.OverrideIDs) != 2 {
		t.Errorf("expected 2 contributing ids, got %v", res.OverrideIDs)
	}
	if res.ParameterDelta != 0 {
		t.Errorf("sizing resolution must not carry a delta, got %.4f", res.ParameterDelta)
	}
}

func TestResolveThresholdMostSpecificWins(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	overrides := []models.LearningOverride{
		{
			ID:              1,
			Scope:           "asset=BTC",
			ActionCategory:  models.ActionThresholdTuning,
			ParameterDelta:  floatPtr(-0.05),
			ConfidenceScore: 0.9,
			UpdatedAt:       base,
		},
		{
			ID:              2,
			Scope:           "asset=BTC|market_conditions=volatile",
			ActionCategory:  models.ActionThresholdTuning,
			ParameterDelta:  floatPtr(0.10),
			ConfidenceScore: 0.6,
			UpdatedAt:       base,
		},
	}

	ctx := ExecutionContext{"asset": "BTC", "market_conditions": "volatile"}
	res := ResolveOverrides(overrides, ctx, models.ActionThresholdTuning)
	if res == nil {
		t.Fatal("expected a resolution")
	}

	// The narrower scope wins despite its lower confidence.
	if !almostEqual(res.ParameterDelta, 0.10) {
		t.Errorf("expected delta 0.10 from the specific override, got %.4f", res.ParameterDelta)
	}
	if !almostEqual(res.Confidence, 0.6) {
		t.Errorf("expected the winner's confidence 0.6, got %.4f", res.Confidence)
	}
	if res.Matched != 2 {
		t.Errorf("expected 2 matched, got %d", res.Matched)
	}
	if len(res.OverrideIDs) != 1 || res.OverrideIDs[0] != 2 {
		t.Errorf("expected winner id 2, got %v", res.OverrideIDs)
	}
}

func TestResolveThresholdTieBreaks(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// Equal specificity: higher confidence wins.
	byConfidence := []models.LearningOverride{
		{ID: 1, Scope: "asset=BTC", ActionCategory: models.ActionThresholdTuning, ParameterDelta: floatPtr(0.05), ConfidenceScore: 0.5, UpdatedAt: base},
		{ID: 2, Scope: "timeframe=1h", ActionCategory: models.ActionThresholdTuning, ParameterDelta: floatPtr(-0.08), ConfidenceScore: 0.7, UpdatedAt: base},
	}
	ctx := ExecutionContext{"asset": "BTC", "timeframe": "1h"}
	res := ResolveOverrides(byConfidence, ctx, models.ActionThresholdTuning)
	if res == nil || !almostEqual(res.ParameterDelta, -0.08) {
		t.Fatalf("expected the higher-confidence override to win, got %+v", res)
	}

	// Equal specificity and confidence: the most recently updated wins.
	byRecency := []models.LearningOverride{
		{ID: 1, Scope: "asset=BTC", ActionCategory: models.ActionThresholdTuning, ParameterDelta: floatPtr(0.05), ConfidenceScore: 0.5, UpdatedAt: base},
		{ID: 2, Scope: "timeframe=1h", ActionCategory: models.ActionThresholdTuning, ParameterDelta: floatPtr(-0.08), ConfidenceScore: 0.5, UpdatedAt: base.Add(time.Hour)},
	}
	res = ResolveOverrides(byRecency, ctx, models.ActionThresholdTuning)
	if res == nil || !almostEqual(res.ParameterDelta, -0.08) {
		t.Fatalf("expected the fresher override to win, got %+v", res)
	}
}

func TestResolveNothingMatches(t *testing.T) {
	overrides := []models.LearningOverride{
		{ID: 1, Scope: "asset=ETH", ActionCategory: models.ActionPositionSizing, Multiplier: floatPtr(1.5), ConfidenceScore: 0.8},
	}
	ctx := ExecutionContext{"asset": "BTC"}

	if res := ResolveOverrides(overrides, ctx, models.ActionPositionSizing); res != nil {
		t.Errorf("expected nil when nothing matches, got %+v", res)
	}
	if res := ResolveOverrides(nil, ctx, models.ActionPositionSizing); res != nil {
		t.Errorf("expected nil for no overrides, got %+v", res)
	}

	// A matching row that carries no multiplier contributes no weight.
	hollow := []models.LearningOverride{
		{ID: 2, Scope: "asset=BTC", ActionCategory: models.ActionPositionSizing, ConfidenceScore: 0.8},
	}
	if res := ResolveOverrides(hollow, ctx, models.ActionPositionSizing); res != nil {
		t.Errorf("expected nil when no matched row carries a value, got %+v", res)
	}
}
