package learning

import (
	"fmt"
	"strings"
	"testing"
	"time"

	models "tradeloom/database/models_pkg"
)

func patternStrand(id string, ret, conf, strength float64, at time.Time) *models.LearningStrand {
	return newTestStrand(id, models.KindPattern, map[string]interface{}{
		"asset":           "BTC",
		"timeframe":       "1h",
		"pattern_type":    "volume_spike",
		"realized_return": ret,
		"confidence":      conf,
		"signal_strength": strength,
	}, at)
}

func TestGroupTier1(t *testing.T) {
	r := NewRegistry()
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	strands := []*models.LearningStrand{
		patternStrand("a1", 0.1, 0.8, 2, now),
		newTestStrand("b1", models.KindPattern, map[string]interface{}{
			"asset": "ETH", "timeframe": "1h", "pattern_type": "breakout", "realized_return": 0.2,
		}, now),
		patternStrand("a2", 0.2, 0.8, 2, now),
		patternStrand("a3", 0.3, 0.8, 2, now),
		newTestStrand("b2", models.KindPattern, map[string]interface{}{
			"asset": "ETH", "timeframe": "1h", "pattern_type": "breakout", "realized_return": 0.3,
		}, now),
	}

	clusters, skipped := r.Group(spec, strands, 0, DefaultGroupingConfig())

	if skipped != 0 {
		t.Errorf("expected 0 skipped, got %d", skipped)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	// First-seen key comes first.
	if clusters[0].Key != "asset=BTC|timeframe=1h|pattern_type=volume_spike" {
		t.Errorf("unexpected first cluster key: %s", clusters[0].Key)
	}
	if len(clusters[0].Members) != 3 {
		t.Errorf("expected 3 members in first cluster, got %d", len(clusters[0].Members))
	}
	if clusters[1].Key != "asset=ETH|timeframe=1h|pattern_type=breakout" {
		t.Errorf("unexpected second cluster key: %s", clusters[1].Key)
	}
	if len(clusters[1].Members) != 2 {
		t.Errorf("expected 2 members in second cluster, got %d", len(clusters[1].Members))
	}

	// Members carry the assignment tag, not yet consumed.
	for _, c := range clusters {
		for _, s := range c.Members {
			found := false
			for _, a := range s.Assignments() {
				if a.Key == c.Key {
					found = true
					if a.Consumed {
						t.Errorf("strand %s: fresh assignment must not be consumed", s.ID)
					}
				}
			}
			if !found {
				t.Errorf("strand %s missing assignment for %s", s.ID, c.Key)
			}
		}
	}
}

func TestGroupSkipsMalformed(t *testing.T) {
	r := NewRegistry()
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	wrongKind := newTestStrand("w1", models.KindDecision, map[string]interface{}{
		"asset": "BTC", "market_conditions": "calm", "outcome_score": 0.1,
	}, now)
	wrongLevel := patternStrand("w2", 0.1, 0.8, 2, now)
	wrongLevel.BraidLevel = 1
	missingDim := newTestStrand("w3", models.KindPattern, map[string]interface{}{
		"asset": "BTC", "timeframe": "1h",
	}, now)

	strands := []*models.LearningStrand{
		patternStrand("a1", 0.1, 0.8, 2, now),
		wrongKind,
		nil,
		wrongLevel,
		missingDim,
		patternStrand("a2", 0.2, 0.8, 2, now),
	}

	clusters, skipped := r.Group(spec, strands, 0, DefaultGroupingConfig())

	if skipped != 4 {
		t.Errorf("expected 4 skipped, got %d", skipped)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if len(clusters[0].Members) != 2 {
		t.Errorf("expected 2 members, got %d", len(clusters[0].Members))
	}
}

func TestGroupRefinementSplitsOversizedBucket(t *testing.T) {
	r := NewRegistry()
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	// Two well-separated populations under one structural key. 16 members
	// exceeds the refinement threshold of 12.
	strands := make([]*models.LearningStrand, 0, 16)
	for i := 0; i < 8; i++ {
		strands = append(strands, patternStrand(fmt.Sprintf("a%d", i), 0.10, 0.9, 5.0, now))
	}
	for i := 0; i < 8; i++ {
		strands = append(strands, patternStrand(fmt.Sprintf("b%d", i), -0.08, 0.1, 0.5, now))
	}

	clusters, skipped := r.Group(spec, strands, 0, DefaultGroupingConfig())

	if skipped != 0 {
		t.Errorf("expected 0 skipped, got %d", skipped)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 sub-clusters, got %d", len(clusters))
	}

	base := "asset=BTC|timeframe=1h|pattern_type=volume_spike"
	if clusters[0].Key != base+"|sub=0" {
		t.Errorf("expected first sub-key %s|sub=0, got %s", base, clusters[0].Key)
	}
	if clusters[1].Key != base+"|sub=1" {
		t.Errorf("expected second sub-key %s|sub=1, got %s", base, clusters[1].Key)
	}

	// Numbering follows the smallest member id, so the a-population is sub=0.
	for _, s := range clusters[0].Members {
		if !strings.HasPrefix(s.ID, "a") {
			t.Errorf("expected only a-strands in sub=0, found %s", s.ID)
		}
	}
	if len(clusters[0].Members) != 8 || len(clusters[1].Members) != 8 {
		t.Errorf("expected 8+8 members, got %d+%d", len(clusters[0].Members), len(clusters[1].Members))
	}
}

func TestGroupRefinementKeepsDegenerateBucketWhole(t *testing.T) {
	r := NewRegistry()
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	// 13 identical members trip the size threshold but carry no feature
	// spread to split on.
	strands := make([]*models.LearningStrand, 0, 13)
	for i := 0; i < 13; i++ {
		strands = append(strands, patternStrand(fmt.Sprintf("s%02d", i), 0.10, 0.9, 2.0, now))
	}

	clusters, _ := r.Group(spec, strands, 0, DefaultGroupingConfig())

	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if strings.Contains(clusters[0].Key, "|sub=") {
		t.Errorf("expected no sub-key on a degenerate bucket, got %s", clusters[0].Key)
	}
	if len(clusters[0].Members) != 13 {
		t.Errorf("expected 13 members, got %d", len(clusters[0].Members))
	}
}

func TestEnsureAssignment(t *testing.T) {
	s := newTestStrand("s1", models.KindPattern, map[string]interface{}{}, time.Now())

	if !EnsureAssignment(s, "asset=BTC|timeframe=1h|pattern_type=x") {
		t.Error("expected first assignment to report a change")
	}
	if EnsureAssignment(s, "asset=BTC|timeframe=1h|pattern_type=x") {
		t.Error("expected repeat assignment to report no change")
	}
	if EnsureAssignment(s, "asset=BTC|timeframe=4h|pattern_type=x") != true {
		t.Error("expected a second distinct key to be added")
	}
	if len(s.Assignments()) != 2 {
		t.Errorf("expected 2 assignments, got %d", len(s.Assignments()))
	}
}
