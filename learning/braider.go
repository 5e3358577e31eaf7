package learning

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

// Namespace for deterministic braid ids. A braid's id is a function of
// its exact source set, so two passes deriving the same compression
// collide on the primary key instead of duplicating it.
var braidNamespace = uuid.MustParse("7f1c3a52-9d84-4b6e-b1fa-52e84a30c7d1")

// BraidID derives the deterministic id for a braid over the given
// source strands.
func BraidID(sourceIDs []string) string {
	sorted := make([]string, len(sourceIDs))
	copy(sorted, sourceIDs)
	sort.Strings(sorted)
	return uuid.NewSHA1(braidNamespace, []byte(strings.Join(sorted, "\n"))).String()
}

// BraidOutcome summarizes one braiding pass over a set of clusters.
type BraidOutcome struct {
	Created []*models.LearningStrand
	Skipped int
	Errors  int
}

// BraidClusters applies the promotion rule to every cluster: at least
// braidThreshold un-consumed members at level N synthesize one strand
// at level N+1 referencing them all. A storage failure on one cluster
// is logged and skipped; the rest of the pass continues.
func (r *Registry) BraidClusters(store StrandStore, spec KindSpec, clusters []*Cluster) BraidOutcome {
	out := BraidOutcome{}

	for _, c := range clusters {
		braid, err := r.braidCluster(store, spec, c)
		if err != nil {
			log.Printf("⚠️  Braiding failed for cluster %s: %v", c.Key, err)
			out.Errors++
			continue
		}
		if braid == nil {
			out.Skipped++
			continue
		}
		out.Created = append(out.Created, braid)
	}

	return out
}

// braidCluster promotes one cluster if it holds enough un-consumed
// members. Members already absorbed into a braid under this key are
// left alone; they are never braided twice for the same lineage.
func (r *Registry) braidCluster(store StrandStore, spec KindSpec, c *Cluster) (*models.LearningStrand, error) {
	unconsumed := make([]*models.LearningStrand, 0, len(c.Members))
	for _, s := range c.Members {
		if !assignmentConsumed(s, c.Key) {
			unconsumed = append(unconsumed, s)
		}
	}

	if len(unconsumed) < database.BraidThreshold {
		return nil, nil
	}

	sourceIDs := make([]string, 0, len(unconsumed))
	maxLevel := 0
	for _, s := range unconsumed {
		sourceIDs = append(sourceIDs, s.ID)
		if s.BraidLevel > maxLevel {
			maxLevel = s.BraidLevel
		}
	}
	braidID := BraidID(sourceIDs)

	// Re-verify right before writing: another pass may have created the
	// same compression while this one was reading.
	existing, err := store.GetStrandByID(braidID)
	if err != nil {
		return nil, fmt.Errorf("braid lookup: %w", err)
	}

	var braid *models.LearningStrand
	if existing != nil {
		braid = existing
	} else {
		braid = r.buildBraid(spec, c, braidID, unconsumed, maxLevel+1)
		created, err := store.InsertStrandIgnoreDuplicate(braid)
		if err != nil {
			return nil, fmt.Errorf("braid insert: %w", err)
		}
		if !created {
			// Lost the race; the row that won is identical by construction.
			log.Printf("🔗 Braid %s already present for cluster %s", braidID, c.Key)
		}
	}

	r.markConsumed(store, c, unconsumed, braidID)

	if existing != nil {
		return nil, nil
	}
	return braid, nil
}

// buildBraid synthesizes the level N+1 strand for a cluster. Content
// carries the source cluster identity and count, the structural string
// dimensions (so the braid re-clusters at its own level), and the mean
// outcome and strength fields the derived dimensions recompute from.
func (r *Registry) buildBraid(spec KindSpec, c *Cluster, braidID string, sources []*models.LearningStrand, level int) *models.LearningStrand {
	content := map[string]interface{}{
		"source_cluster": c.Key,
		"source_count":   len(sources),
	}

	for dim, value := range ParseKey(c.Key) {
		if dim == "sub" || isDerivedDimension(dim) {
			continue
		}
		content[dim] = value
	}

	evidence := 0
	for _, s := range sources {
		evidence += EvidenceCount(s)
	}
	content["evidence_count"] = evidence

	for _, field := range []string{spec.OutcomeField, "confidence", "quality", "risk_reward", "signal_strength"} {
		if mean, ok := meanContentField(sources, field); ok {
			content[field] = mean
		}
	}

	scores := MeanScores(sources)
	braid := &models.LearningStrand{
		ID:               braidID,
		Kind:             spec.Kind,
		BraidLevel:       level,
		CreatedAt:        time.Now(),
		PersistenceScore: scores.Persistence,
		NoveltyScore:     scores.Novelty,
		SurpriseScore:    scores.Surprise,
	}
	braid.SetContentMap(content)
	braid.SetSourceIDs(sourceIDsOf(sources))
	return braid
}

// markConsumed flips the cluster tag and adds the back-reference on
// every source. One member failing to update is logged and left for
// the next pass; it does not unwind the braid.
func (r *Registry) markConsumed(store StrandStore, c *Cluster, sources []*models.LearningStrand, braidID string) {
	for _, s := range sources {
		changedRef := s.AddBraidReference(braidID)
		changedTag := consumeAssignment(s, c.Key, braidID)
		if !changedRef && !changedTag {
			continue
		}
		if err := store.UpdateStrand(s); err != nil {
			log.Printf("⚠️  Failed to mark strand %s as consumed by %s: %v", s.ID, braidID, err)
		}
	}
}

// assignmentConsumed reports whether the strand's tag for this key was
// already absorbed into a braid.
func assignmentConsumed(s *models.LearningStrand, key string) bool {
	for _, a := range s.Assignments() {
		if a.Key == key && a.Consumed {
			return true
		}
	}
	return false
}

// consumeAssignment marks the tag for this key as absorbed. Adds the
// tag first if grouping has not written it yet.
func consumeAssignment(s *models.LearningStrand, key, braidID string) bool {
	assignments := s.Assignments()
	for i, a := range assignments {
		if a.Key == key {
			if a.Consumed && a.BraidID == braidID {
				return false
			}
			assignments[i].Consumed = true
			assignments[i].BraidID = braidID
			s.SetAssignments(assignments)
			return true
		}
	}
	assignments = append(assignments, models.ClusterAssignment{Key: key, Consumed: true, BraidID: braidID})
	s.SetAssignments(assignments)
	return true
}

func isDerivedDimension(dim string) bool {
	switch dim {
	case database.DimOutcomeBucket, database.DimStrengthRange, database.DimRRProfile:
		return true
	}
	return false
}

func meanContentField(sources []*models.LearningStrand, field string) (float64, bool) {
	if field == "" {
		return 0, false
	}
	sum := 0.0
	n := 0
	for _, s := range sources {
		if v, ok := contentFloat(s.ContentMap(), field); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func sourceIDsOf(sources []*models.LearningStrand) []string {
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	return ids
}
