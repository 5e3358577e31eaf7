package learning

import (
	"testing"
	"time"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

func sizingLesson(edge float64) *models.LearningLesson {
	return &models.LearningLesson{
		ID:          7,
		PatternKey:  testClusterKey,
		Scope:       "asset=BTC|timeframe=1h",
		Kind:        models.KindPattern,
		SampleCount: 40,
		Edge:        edge,
		DecayState:  1.0,
	}
}

func TestMaterializeEdgeGate(t *testing.T) {
	r := NewRegistry()
	m := NewMaterializer(MaterializerConfig{})
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	tests := []struct {
		name string
		edge float64
		want bool
	}{
		{"weak positive", 0.04, false},
		{"weak negative", -0.04, false},
		{"at the gate", database.MinOverrideEdge, true},
		{"at the negative gate", -database.MinOverrideEdge, true},
		{"strong", 0.40, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := m.Materialize(spec, sizingLesson(tt.edge), now)
			if (o != nil) != tt.want {
				t.Errorf("edge %.2f: expected materialized=%v, got %v", tt.edge, tt.want, o != nil)
			}
		})
	}

	if m.Materialize(spec, nil, now) != nil {
		t.Error("expected nil lesson to materialize nothing")
	}
}

func TestMaterializeSizingMultiplier(t *testing.T) {
	r := NewRegistry()
	m := NewMaterializer(MaterializerConfig{})
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	tests := []struct {
		edge string
		in   float64
		want float64
	}{
		{"moderate boost", 0.40, 1.40},
		{"ceiling", 5.00, 3.00},
		{"floor", -0.90, 0.30},
		{"moderate cut", -0.25, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.edge, func(t *testing.T) {
			o := m.Materialize(spec, sizingLesson(tt.in), now)
			if o == nil {
				t.Fatal("expected an override")
			}
			if o.Multiplier == nil {
				t.Fatal("expected a sizing multiplier")
			}
			if !almostEqual(*o.Multiplier, tt.want) {
				t.Errorf("expected multiplier %.2f, got %.4f", tt.want, *o.Multiplier)
			}
			if o.ParameterDelta != nil {
				t.Error("sizing override must not carry a parameter delta")
			}
			if o.ActionCategory != models.ActionPositionSizing {
				t.Errorf("expected action %s, got %s", models.ActionPositionSizing, o.ActionCategory)
			}
		})
	}
}

func TestMaterializeThresholdDelta(t *testing.T) {
	r := NewRegistry()
	m := NewMaterializer(MaterializerConfig{})
	spec, _ := r.Spec(models.KindPredictionReview)
	now := time.Now()

	lesson := sizingLesson(0.40)
	lesson.Kind = models.KindPredictionReview

	o := m.Materialize(spec, lesson, now)
	if o == nil {
		t.Fatal("expected an override")
	}
	if o.ParameterDelta == nil {
		t.Fatal("expected a parameter delta")
	}
	// 0.40 * 0.25
	if !almostEqual(*o.ParameterDelta, 0.10) {
		t.Errorf("expected delta 0.10, got %.4f", *o.ParameterDelta)
	}
	if o.Multiplier != nil {
		t.Error("threshold override must not carry a multiplier")
	}
	if o.ActionCategory != models.ActionThresholdTuning {
		t.Errorf("expected action %s, got %s", models.ActionThresholdTuning, o.ActionCategory)
	}

	// Extreme edges clamp to the delta range.
	lesson.Edge = 2.0
	if o = m.Materialize(spec, lesson, now); !almostEqual(*o.ParameterDelta, 0.25) {
		t.Errorf("expected delta clamped to 0.25, got %.4f", *o.ParameterDelta)
	}
	lesson.Edge = -2.0
	if o = m.Materialize(spec, lesson, now); !almostEqual(*o.ParameterDelta, -0.25) {
		t.Errorf("expected delta clamped to -0.25, got %.4f", *o.ParameterDelta)
	}
}

func TestMaterializeConfidence(t *testing.T) {
	r := NewRegistry()
	m := NewMaterializer(MaterializerConfig{})
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	lesson := sizingLesson(0.40)
	lesson.SampleCount = 40
	lesson.OutcomeVariance = 0.5
	lesson.DecayState = 0.8

	o := m.Materialize(spec, lesson, now)
	if o == nil {
		t.Fatal("expected an override")
	}
	// depth 40/50, spread 1/1.5, decay 0.8
	want := (40.0 / 50.0) * (1.0 / 1.5) * 0.8
	if !almostEqual(o.ConfidenceScore, want) {
		t.Errorf("expected confidence %.6f, got %.6f", want, o.ConfidenceScore)
	}
}

func TestMaterializeMetadataAndExpiry(t *testing.T) {
	r := NewRegistry()
	m := NewMaterializer(MaterializerConfig{TTL: 48 * time.Hour})
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	lesson := sizingLesson(0.40)
	o := m.Materialize(spec, lesson, now)
	if o == nil {
		t.Fatal("expected an override")
	}

	if o.PatternKey != lesson.PatternKey || o.Scope != lesson.Scope {
		t.Errorf("key/scope not carried over: %+v", o)
	}
	if o.LessonID != lesson.ID {
		t.Errorf("expected lesson id %d, got %d", lesson.ID, o.LessonID)
	}
	if !almostEqual(o.Edge, 0.40) {
		t.Errorf("expected edge 0.40, got %.4f", o.Edge)
	}
	if o.ExpiresAt == nil {
		t.Fatal("expected an expiry")
	}
	if !o.ExpiresAt.Equal(now.Add(48 * time.Hour)) {
		t.Errorf("expected expiry %v, got %v", now.Add(48*time.Hour), *o.ExpiresAt)
	}
}

func TestMaterializerConfigDefaults(t *testing.T) {
	m := NewMaterializer(MaterializerConfig{})

	if m.cfg.MinEdge != database.MinOverrideEdge {
		t.Errorf("expected default min edge, got %.4f", m.cfg.MinEdge)
	}
	if m.cfg.MultiplierFloor != database.MultiplierFloor || m.cfg.MultiplierCeil != database.MultiplierCeil {
		t.Errorf("expected default multiplier bounds, got %.2f..%.2f", m.cfg.MultiplierFloor, m.cfg.MultiplierCeil)
	}
	if m.cfg.TTL != database.OverrideDefaultTTL {
		t.Errorf("expected default ttl, got %s", m.cfg.TTL)
	}
}
