package learning

import (
	"math"

	models "tradeloom/database/models_pkg"
)

// How strongly a deviation between expected and realized outcome maps
// onto the surprise score. A 10% miss saturates to 1.0.
const surpriseGain = 10.0

// Doctrine weights for prediction reviews.
const (
	doctrineConfirmed    = 1.0
	doctrineProvisional  = 0.6
	doctrineContradicted = 0.3
	doctrineRetired      = 0.1
)

// ScoreStrand computes the quality signals for one strand. Pure and
// total: unknown kinds and missing fields get conservative defaults, a
// braid keeps the mean-of-sources scores set at creation.
func (r *Registry) ScoreStrand(s *models.LearningStrand) Scores {
	if s.IsBraid() {
		return Scores{
			Persistence: s.PersistenceScore,
			Novelty:     s.NoveltyScore,
			Surprise:    s.SurpriseScore,
		}
	}

	spec, ok := r.Spec(s.Kind)
	if !ok || spec.Score == nil {
		return Scores{Persistence: 0.5, Novelty: 0.5, Surprise: 0.5}
	}
	return spec.Score(s)
}

// ApplyScores writes computed scores onto the strand and reports
// whether anything changed.
func ApplyScores(s *models.LearningStrand, scores Scores) bool {
	if s.PersistenceScore == scores.Persistence &&
		s.NoveltyScore == scores.Novelty &&
		s.SurpriseScore == scores.Surprise {
		return false
	}
	s.PersistenceScore = scores.Persistence
	s.NoveltyScore = scores.Novelty
	s.SurpriseScore = scores.Surprise
	return true
}

// MeanScores averages the scores of a braid's sources. This is what
// keeps scores composable across braid levels.
func MeanScores(sources []*models.LearningStrand) Scores {
	if len(sources) == 0 {
		return Scores{Persistence: 0.5, Novelty: 0.5, Surprise: 0.5}
	}
	var sum Scores
	for _, s := range sources {
		sum.Persistence += s.PersistenceScore
		sum.Novelty += s.NoveltyScore
		sum.Surprise += s.SurpriseScore
	}
	n := float64(len(sources))
	return Scores{
		Persistence: sum.Persistence / n,
		Novelty:     sum.Novelty / n,
		Surprise:    sum.Surprise / n,
	}
}

func scorePattern(s *models.LearningStrand) Scores {
	content := s.ContentMap()
	conf := floatOrDefault(content, "confidence", 0.5)
	qual := floatOrDefault(content, "quality", 0.5)

	return Scores{
		Persistence: clamp01(conf * qual),
		Novelty:     noveltyFromStrength(content),
		Surprise:    surpriseFromDeviation(content, "expected_return", "realized_return"),
	}
}

func scorePredictionReview(s *models.LearningStrand) Scores {
	content := s.ContentMap()
	conf := floatOrDefault(content, "confidence", 0.5)
	status, _ := contentString(content, "status")

	return Scores{
		Persistence: clamp01(doctrineWeight(status) * conf),
		Novelty:     noveltyFromStrength(content),
		Surprise:    surpriseFromDeviation(content, "predicted_return", "actual_return"),
	}
}

func scoreTradeOutcome(s *models.LearningStrand) Scores {
	content := s.ContentMap()
	conf := floatOrDefault(content, "confidence", 0.5)
	qual := floatOrDefault(content, "quality", 0.5)

	return Scores{
		Persistence: clamp01(conf * qual),
		Novelty:     noveltyFromStrength(content),
		Surprise:    surpriseFromDeviation(content, "expected_return", "realized_return"),
	}
}

func scoreDecision(s *models.LearningStrand) Scores {
	content := s.ContentMap()
	conf := floatOrDefault(content, "confidence", 0.5)
	alignment := floatOrDefault(content, "alignment", 0.5)

	return Scores{
		Persistence: clamp01(conf * alignment),
		Novelty:     noveltyFromStrength(content),
		Surprise:    surpriseFromDeviation(content, "expected_score", "outcome_score"),
	}
}

// doctrineWeight maps a prediction review status onto its persistence weight.
func doctrineWeight(status string) float64 {
	switch status {
	case "confirmed":
		return doctrineConfirmed
	case "provisional":
		return doctrineProvisional
	case "contradicted":
		return doctrineContradicted
	case "retired":
		return doctrineRetired
	default:
		return 0.5
	}
}

// noveltyFromStrength saturates signal strength into [0,1); missing
// strength falls back to the neutral default.
func noveltyFromStrength(content map[string]interface{}) float64 {
	if v, ok := contentFloat(content, "novelty"); ok {
		return clamp01(v)
	}
	strength, ok := contentFloat(content, "signal_strength")
	if !ok {
		return 0.5
	}
	return clamp01(1.0 - 1.0/(1.0+math.Abs(strength)))
}

// surpriseFromDeviation scores how far the realized value landed from
// the expected one. Either field missing means no evidence either way.
func surpriseFromDeviation(content map[string]interface{}, expectedField, actualField string) float64 {
	expected, okE := contentFloat(content, expectedField)
	actual, okA := contentFloat(content, actualField)
	if !okE || !okA {
		return 0.5
	}
	return clamp01(math.Abs(actual-expected) * surpriseGain)
}

// Tier-2 feature vectors. Order matters: normalization and distance
// run positionally across a bucket.

func featuresPattern(s *models.LearningStrand) []float64 {
	content := s.ContentMap()
	return []float64{
		floatOrDefault(content, "confidence", 0.5),
		floatOrDefault(content, "signal_strength", 0),
		floatOrDefault(content, "realized_return", 0),
	}
}

func featuresPredictionReview(s *models.LearningStrand) []float64 {
	content := s.ContentMap()
	return []float64{
		floatOrDefault(content, "confidence", 0.5),
		floatOrDefault(content, "predicted_return", 0),
		floatOrDefault(content, "actual_return", 0),
	}
}

func featuresTradeOutcome(s *models.LearningStrand) []float64 {
	content := s.ContentMap()
	return []float64{
		floatOrDefault(content, "confidence", 0.5),
		floatOrDefault(content, "realized_return", 0),
		floatOrDefault(content, "risk_reward", 1.0),
	}
}

func featuresDecision(s *models.LearningStrand) []float64 {
	content := s.ContentMap()
	return []float64{
		floatOrDefault(content, "confidence", 0.5),
		floatOrDefault(content, "alignment", 0.5),
		floatOrDefault(content, "outcome_score", 0),
	}
}

func floatOrDefault(content map[string]interface{}, key string, def float64) float64 {
	if v, ok := contentFloat(content, key); ok {
		return v
	}
	return def
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
