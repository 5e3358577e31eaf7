package learning

import (
	"math"
	"testing"

	models "tradeloom/database/models_pkg"
)

func TestPhiAcrossTimeframes(t *testing.T) {
	tests := []struct {
		name      string
		strengths map[string]float64
		want      float64
	}{
		{"no evidence", map[string]float64{}, 0},
		{"single timeframe", map[string]float64{"1h": 0.8}, 0.8},
		{"product across scales", map[string]float64{"1h": 0.8, "4h": 0.5}, 0.4},
		{"weak scale drags the product down", map[string]float64{"1m": 0.9, "1h": 0.9, "1d": 0.1}, 0.081},
		{"strength clamps into unit range", map[string]float64{"1h": 2.0}, 1.0},
		{"NaN scales are skipped", map[string]float64{"1h": math.NaN(), "4h": 0.6}, 0.6},
		{"all NaN counts as no evidence", map[string]float64{"1h": math.NaN()}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhiAcrossTimeframes(tt.strengths); !almostEqual(got, tt.want) {
				t.Errorf("expected phi %.4f, got %.4f", tt.want, got)
			}
		})
	}
}

func TestWithObservation(t *testing.T) {
	r := Resonance{Rho: 0.5}

	next := r.WithObservation(0.8, 0.25)
	// 0.5 + 0.1 * 0.8 * 0.25
	if !almostEqual(next.Rho, 0.52) {
		t.Errorf("expected rho 0.52, got %.6f", next.Rho)
	}
	if r.Rho != 0.5 {
		t.Error("expected the receiver to stay unchanged")
	}

	// A large negative phi shift floors at zero instead of going negative.
	floored := Resonance{Rho: 0.01}.WithObservation(1.0, -1.0)
	if floored.Rho != 0 {
		t.Errorf("expected rho floored at 0, got %.6f", floored.Rho)
	}
}

func TestWithFieldContribution(t *testing.T) {
	r := Resonance{Theta: 0.2}

	next := r.WithFieldContribution(3.0)
	// 0.2 + 0.01 * 3
	if !almostEqual(next.Theta, 0.23) {
		t.Errorf("expected theta 0.23, got %.6f", next.Theta)
	}

	// Theta is monotone: non-positive mass contributes nothing.
	if got := r.WithFieldContribution(-5.0).Theta; got != 0.2 {
		t.Errorf("expected theta unchanged at 0.2, got %.6f", got)
	}
	if got := r.WithFieldContribution(0).Theta; got != 0.2 {
		t.Errorf("expected theta unchanged at 0.2, got %.6f", got)
	}
}

func TestWithAcceleration(t *testing.T) {
	r := Resonance{Theta: 2.0, Rho: 1.0}

	next := r.WithAcceleration()
	want := 0.01 * (1.0 / (1.0 + math.Exp(0-1.0))) * (2.0 * 1.0)
	if !almostEqual(next.Omega, want) {
		t.Errorf("expected omega %.6f, got %.6f", want, next.Omega)
	}

	// No resonance mass, no movement.
	idle := Resonance{Theta: 0, Rho: 1}.WithAcceleration()
	if idle.Omega != 0 {
		t.Errorf("expected omega unchanged, got %.6f", idle.Omega)
	}

	// The step shrinks as omega grows, so a hot streak plateaus.
	lowStep := Resonance{Theta: 2, Rho: 1, Omega: 0}.WithAcceleration().Omega - 0
	highStep := Resonance{Theta: 2, Rho: 1, Omega: 3}.WithAcceleration().Omega - 3
	if highStep >= lowStep {
		t.Errorf("expected a saturating step, got %.6f then %.6f", lowStep, highStep)
	}
	if highStep <= 0 {
		t.Errorf("expected a positive step even near saturation, got %.6f", highStep)
	}
}

func TestShouldAccelerateLearning(t *testing.T) {
	if (Resonance{Omega: 1.0}).ShouldAccelerateLearning() {
		t.Error("expected omega at the threshold to stay on normal cadence")
	}
	if !(Resonance{Omega: 1.01}).ShouldAccelerateLearning() {
		t.Error("expected omega above the threshold to accelerate")
	}
}

func TestResonanceStateRoundTrip(t *testing.T) {
	r := Resonance{Phi: 0.4, Rho: 0.3, Theta: 0.2, Omega: 1.1}

	state := r.ToState(42)
	if state.RunID != 42 {
		t.Errorf("expected run id 42, got %d", state.RunID)
	}
	if state.Phi != 0.4 || state.Rho != 0.3 || state.Theta != 0.2 || state.Omega != 1.1 {
		t.Errorf("unexpected snapshot: %+v", state)
	}

	back := ResonanceFromState(state)
	if back != r {
		t.Errorf("expected round trip to preserve scalars, got %+v", back)
	}

	if ResonanceFromState(nil) != (Resonance{}) {
		t.Error("expected nil snapshot to rehydrate to the zero state")
	}
}

func TestResonanceFromStateIgnoresRowFields(t *testing.T) {
	state := &models.ResonanceState{ID: 7, RunID: 3, Phi: 0.5, Rho: 0.1, Theta: 0.2, Omega: 0.3}
	r := ResonanceFromState(state)
	if r.Phi != 0.5 || r.Rho != 0.1 || r.Theta != 0.2 || r.Omega != 0.3 {
		t.Errorf("unexpected rehydrated state: %+v", r)
	}
}
