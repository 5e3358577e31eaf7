package learning

import (
	"math"
)

// Ensemble scoring weights. Orthogonality earns its slot by measuring
// what the other terms cannot: whether the candidate adds information
// the active set does not already carry.
const (
	weightAccuracy      = 0.30
	weightPrecision     = 0.25
	weightStability     = 0.25
	weightOrthogonality = 0.15
	weightCost          = 0.05

	// CorrelationCeiling is the hard diversity bound. A candidate whose
	// outcome series correlates beyond this with any active member is
	// rejected no matter how strong its own score is.
	CorrelationCeiling = 0.3

	// correlationMinSamples is the floor below which two outcome series
	// are too short to correlate meaningfully.
	correlationMinSamples = 10
)

// Candidate is one pattern proposed for the active ensemble. Outcomes
// is the per-evidence outcome series used for pairwise correlation.
type Candidate struct {
	Key       string
	Accuracy  float64
	Precision float64
	Stability float64
	Cost      float64
	Outcomes  []float64
}

// Admission is the verdict on one candidate.
type Admission struct {
	Score          float64
	Orthogonality  float64
	MaxCorrelation float64
	CorrelatedWith string
	Accepted       bool
}

// Ensemble ranks candidates and enforces the diversity bound against
// the members admitted so far. Admission order matters, so callers feed
// candidates strongest-first.
type Ensemble struct {
	ceiling float64
	members []Candidate
}

// NewEnsemble creates an empty ensemble with the given correlation
// ceiling. A non-positive ceiling falls back to the default bound.
func NewEnsemble(ceiling float64) *Ensemble {
	if ceiling <= 0 {
		ceiling = CorrelationCeiling
	}
	return &Ensemble{ceiling: ceiling}
}

// Size returns the number of admitted members.
func (e *Ensemble) Size() int {
	return len(e.members)
}

// Consider scores a candidate against the current members and admits it
// when no pairwise correlation breaches the ceiling. Series too short
// or too flat to correlate contribute no correlation evidence.
func (e *Ensemble) Consider(c Candidate) Admission {
	adm := Admission{Orthogonality: 1.0}
	for _, m := range e.members {
		corr := PearsonCorrelation(c.Outcomes, m.Outcomes)
		if math.IsNaN(corr) {
			continue
		}
		if abs := math.Abs(corr); abs > adm.MaxCorrelation {
			adm.MaxCorrelation = abs
			adm.CorrelatedWith = m.Key
		}
	}

	adm.Orthogonality = 1.0 - adm.MaxCorrelation
	adm.Score = SelectionScore(c.Accuracy, c.Precision, c.Stability, c.Cost, adm.Orthogonality)

	if adm.MaxCorrelation > e.ceiling {
		return adm
	}

	adm.Accepted = true
	e.members = append(e.members, c)
	return adm
}

// SelectionScore combines the five ranking terms. Cost subtracts, the
// rest add.
func SelectionScore(accuracy, precision, stability, cost, orthogonality float64) float64 {
	return weightAccuracy*accuracy +
		weightPrecision*precision +
		weightStability*stability -
		weightCost*cost +
		weightOrthogonality*orthogonality
}

// PearsonCorrelation calculates the Pearson correlation coefficient
// between two outcome series, truncated to the shorter length. Returns
// NaN when the series are too short and 0 when either side has no
// variance.
func PearsonCorrelation(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < correlationMinSamples {
		return math.NaN()
	}

	sumX, sumY, sumXY, sumX2, sumY2 := 0.0, 0.0, 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}

	numerator := float64(n)*sumXY - sumX*sumY
	denominator := math.Sqrt((float64(n)*sumX2 - sumX*sumX) * (float64(n)*sumY2 - sumY*sumY))

	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}
