package learning

import (
	"math"

	models "tradeloom/database/models_pkg"
)

// Resonance tracking constants. Alpha scales how fast pattern intensity
// reacts to surprise, hbar scales the slow global accumulators, and the
// omega threshold gates the accelerated-learning mode.
const (
	resonanceAlpha  = 0.1
	resonanceHbar   = 0.01
	omegaThreshold  = 1.0
	omegaSaturation = 1.0
)

// Resonance is the global learning-intensity state. Values only move
// through the With* methods so every transition stays reproducible from
// the same inputs. Phi is the cross-timeframe self-similarity of the
// most recent pass, rho the accumulated pattern intensity, theta the
// global resonance field, omega the meta-learning accumulator.
type Resonance struct {
	Phi   float64
	Rho   float64
	Theta float64
	Omega float64
}

// ResonanceFromState rehydrates the value object from a persisted
// snapshot. A nil snapshot yields the zero state.
func ResonanceFromState(state *models.ResonanceState) Resonance {
	if state == nil {
		return Resonance{}
	}
	return Resonance{
		Phi:   state.Phi,
		Rho:   state.Rho,
		Theta: state.Theta,
		Omega: state.Omega,
	}
}

// ToState converts the value object into a persistable snapshot row.
func (r Resonance) ToState(runID int64) *models.ResonanceState {
	return &models.ResonanceState{
		RunID: runID,
		Phi:   r.Phi,
		Rho:   r.Rho,
		Theta: r.Theta,
		Omega: r.Omega,
	}
}

// PhiAcrossTimeframes computes the fractal self-similarity of one
// pattern family: the product of its normalized strength on every
// timeframe where it has evidence. A family seen strongly on several
// scales keeps a high product while one weak scale drags it down.
// Returns zero when no timeframe has data.
func PhiAcrossTimeframes(strengths map[string]float64) float64 {
	if len(strengths) == 0 {
		return 0
	}
	phi := 1.0
	seen := false
	for _, s := range strengths {
		if math.IsNaN(s) {
			continue
		}
		phi *= clamp01(s)
		seen = true
	}
	if !seen {
		return 0
	}
	return phi
}

// WithObservation folds one braid observation into rho:
//
//	rho' = rho + alpha * surprise * deltaPhi
//
// where deltaPhi is the change in the family's phi against the prior
// state. Rho is floored at zero; intensity decays, it never goes
// negative.
func (r Resonance) WithObservation(surprise, deltaPhi float64) Resonance {
	next := r
	next.Rho = r.Rho + resonanceAlpha*surprise*deltaPhi
	if next.Rho < 0 {
		next.Rho = 0
	}
	return next
}

// WithFieldContribution advances theta by the accumulated phi*rho mass
// of one pass:
//
//	theta' = theta + hbar * sum(phi_i * rho_i)
//
// Negative contributions are dropped so theta never decreases.
func (r Resonance) WithFieldContribution(phiRhoSum float64) Resonance {
	next := r
	if phiRhoSum > 0 {
		next.Theta = r.Theta + resonanceHbar*phiRhoSum
	}
	return next
}

// WithAcceleration advances omega by a saturating step:
//
//	omega' = omega + hbar * psi(omega) * (theta * rho)
//
// psi shrinks as omega grows, so omega plateaus instead of running
// away under a hot streak.
func (r Resonance) WithAcceleration() Resonance {
	next := r
	step := resonanceHbar * saturation(r.Omega) * (r.Theta * r.Rho)
	if step > 0 {
		next.Omega = r.Omega + step
	}
	return next
}

// WithPhi records the pass-level phi reading on the state.
func (r Resonance) WithPhi(phi float64) Resonance {
	next := r
	next.Phi = phi
	return next
}

// ShouldAccelerateLearning reports whether accumulated resonance has
// crossed the threshold where the caller may tighten its run cadence.
func (r Resonance) ShouldAccelerateLearning() bool {
	return r.Omega > omegaThreshold
}

// saturation is the decreasing sigmoid psi. It starts near 1 for small
// omega and falls toward zero once omega passes the saturation midpoint.
func saturation(omega float64) float64 {
	return 1.0 / (1.0 + math.Exp(omegaSaturation*(omega-omegaThreshold)))
}
