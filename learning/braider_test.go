package learning

import (
	"testing"
	"time"

	models "tradeloom/database/models_pkg"
)

const testClusterKey = "asset=BTC|timeframe=1h|pattern_type=volume_spike"

// seedCluster inserts n pattern strands into the store and returns the
// cluster the grouping pass would hand to the braider.
func seedCluster(t *testing.T, store *memStore, ids []string, returns []float64) *Cluster {
	t.Helper()
	now := time.Now()
	members := make([]*models.LearningStrand, 0, len(ids))
	for i, id := range ids {
		s := patternStrand(id, returns[i], 0.8, 2.0, now)
		s.PersistenceScore = 0.3 * float64(i+1) / float64(len(ids))
		s.NoveltyScore = 0.4
		s.SurpriseScore = 0.2
		EnsureAssignment(s, testClusterKey)
		if _, err := store.InsertStrandIgnoreDuplicate(s); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
		members = append(members, s)
	}
	return &Cluster{Key: testClusterKey, Kind: models.KindPattern, Level: 0, Members: members}
}

func TestBraidIDDeterministic(t *testing.T) {
	a := BraidID([]string{"s1", "s2", "s3"})
	b := BraidID([]string{"s3", "s1", "s2"})
	if a != b {
		t.Errorf("expected order-independent id, got %s vs %s", a, b)
	}

	c := BraidID([]string{"s1", "s2", "s4"})
	if a == c {
		t.Error("expected a different source set to derive a different id")
	}
}

func TestBraidClustersBelowThreshold(t *testing.T) {
	r := NewRegistry()
	store := newMemStore()
	spec, _ := r.Spec(models.KindPattern)

	c := seedCluster(t, store, []string{"s1", "s2"}, []float64{0.1, 0.2})
	out := r.BraidClusters(store, spec, []*Cluster{c})

	if len(out.Created) != 0 {
		t.Errorf("expected no braid from 2 members, got %d", len(out.Created))
	}
	if out.Skipped != 1 {
		t.Errorf("expected 1 skipped cluster, got %d", out.Skipped)
	}
	if out.Errors != 0 {
		t.Errorf("expected 0 errors, got %d", out.Errors)
	}
}

func TestBraidClustersCreatesBraid(t *testing.T) {
	r := NewRegistry()
	store := newMemStore()
	spec, _ := r.Spec(models.KindPattern)

	c := seedCluster(t, store, []string{"s1", "s2", "s3"}, []float64{0.1, 0.2, 0.3})
	out := r.BraidClusters(store, spec, []*Cluster{c})

	if len(out.Created) != 1 {
		t.Fatalf("expected 1 braid, got %d", len(out.Created))
	}
	braid := out.Created[0]

	if braid.ID != BraidID([]string{"s1", "s2", "s3"}) {
		t.Errorf("braid id not derived from sources: %s", braid.ID)
	}
	if braid.Kind != models.KindPattern {
		t.Errorf("expected kind pattern, got %s", braid.Kind)
	}
	if braid.BraidLevel != 1 {
		t.Errorf("expected braid level 1, got %d", braid.BraidLevel)
	}
	if !braid.IsBraid() {
		t.Error("expected IsBraid to report true")
	}

	content := braid.ContentMap()
	if content["source_cluster"] != testClusterKey {
		t.Errorf("unexpected source_cluster: %v", content["source_cluster"])
	}
	if got, _ := content["source_count"].(float64); got != 3 {
		t.Errorf("expected source_count 3, got %v", content["source_count"])
	}
	if got, _ := content["evidence_count"].(float64); got != 3 {
		t.Errorf("expected evidence_count 3, got %v", content["evidence_count"])
	}
	// Structural dimensions carry over so the braid re-clusters at its level.
	if content["asset"] != "BTC" || content["timeframe"] != "1h" || content["pattern_type"] != "volume_spike" {
		t.Errorf("structural dimensions missing from braid content: %v", content)
	}
	// Outcome and strength fields are means of the sources.
	if got, _ := content["realized_return"].(float64); !almostEqual(got, 0.2) {
		t.Errorf("expected mean realized_return 0.2, got %v", got)
	}
	if got, _ := content["confidence"].(float64); !almostEqual(got, 0.8) {
		t.Errorf("expected mean confidence 0.8, got %v", got)
	}

	// Scores are the mean of the sources' scores.
	wantPersistence := (0.1 + 0.2 + 0.3) / 3.0
	if !almostEqual(braid.PersistenceScore, wantPersistence) {
		t.Errorf("expected persistence %.4f, got %.4f", wantPersistence, braid.PersistenceScore)
	}
	if !almostEqual(braid.NoveltyScore, 0.4) || !almostEqual(braid.SurpriseScore, 0.2) {
		t.Errorf("unexpected braid scores: %+v", braid)
	}

	// The braid row is persisted.
	stored, err := store.GetStrandByID(braid.ID)
	if err != nil || stored == nil {
		t.Fatalf("braid not persisted: %v", err)
	}

	// Every source is marked consumed and back-references the braid.
	for _, id := range []string{"s1", "s2", "s3"} {
		s, _ := store.GetStrandByID(id)
		if s == nil {
			t.Fatalf("source %s missing", id)
		}
		if !s.HasBraidReference(braid.ID) {
			t.Errorf("source %s missing braid reference", id)
		}
		consumed := false
		for _, a := range s.Assignments() {
			if a.Key == testClusterKey && a.Consumed && a.BraidID == braid.ID {
				consumed = true
			}
		}
		if !consumed {
			t.Errorf("source %s not marked consumed under %s", id, testClusterKey)
		}
	}
}

func TestBraidClustersIdempotent(t *testing.T) {
	r := NewRegistry()
	store := newMemStore()
	spec, _ := r.Spec(models.KindPattern)

	c := seedCluster(t, store, []string{"s1", "s2", "s3"}, []float64{0.1, 0.2, 0.3})
	first := r.BraidClusters(store, spec, []*Cluster{c})
	if len(first.Created) != 1 {
		t.Fatalf("expected 1 braid on first pass, got %d", len(first.Created))
	}

	// Second pass over the same in-memory members: all consumed.
	second := r.BraidClusters(store, spec, []*Cluster{c})
	if len(second.Created) != 0 {
		t.Errorf("expected no braid on re-run, got %d", len(second.Created))
	}
	if second.Skipped != 1 {
		t.Errorf("expected re-run to skip the cluster, got %d skipped", second.Skipped)
	}

	// Third pass over members reloaded from the store, as a later run
	// would see them.
	reloaded := make([]*models.LearningStrand, 0, 3)
	for _, id := range []string{"s1", "s2", "s3"} {
		s, _ := store.GetStrandByID(id)
		reloaded = append(reloaded, s)
	}
	fresh := &Cluster{Key: testClusterKey, Kind: models.KindPattern, Level: 0, Members: reloaded}
	third := r.BraidClusters(store, spec, []*Cluster{fresh})
	if len(third.Created) != 0 || third.Skipped != 1 {
		t.Errorf("expected reloaded members to stay consumed, got %d created %d skipped",
			len(third.Created), third.Skipped)
	}

	if store.strandCount() != 4 {
		t.Errorf("expected 3 sources + 1 braid in store, got %d", store.strandCount())
	}
}

func TestBraidClusterReusesExistingBraid(t *testing.T) {
	r := NewRegistry()
	store := newMemStore()
	spec, _ := r.Spec(models.KindPattern)

	c := seedCluster(t, store, []string{"s1", "s2", "s3"}, []float64{0.1, 0.2, 0.3})

	// Another pass already wrote the braid row but crashed before marking
	// the sources consumed.
	braidID := BraidID([]string{"s1", "s2", "s3"})
	prior := newTestStrand(braidID, models.KindPattern, map[string]interface{}{
		"source_cluster": testClusterKey,
	}, time.Now())
	prior.BraidLevel = 1
	prior.SetSourceIDs([]string{"s1", "s2", "s3"})
	if _, err := store.InsertStrandIgnoreDuplicate(prior); err != nil {
		t.Fatalf("seed braid: %v", err)
	}

	out := r.BraidClusters(store, spec, []*Cluster{c})

	// The existing row is adopted, not counted as created.
	if len(out.Created) != 0 {
		t.Errorf("expected no new braid, got %d", len(out.Created))
	}
	if out.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", out.Skipped)
	}

	// Consumption is completed against the adopted braid.
	for _, id := range []string{"s1", "s2", "s3"} {
		s, _ := store.GetStrandByID(id)
		if !s.HasBraidReference(braidID) {
			t.Errorf("source %s missing reference to adopted braid", id)
		}
	}
}

func TestLateEvidenceFormsSecondBraid(t *testing.T) {
	r := NewRegistry()
	store := newMemStore()
	spec, _ := r.Spec(models.KindPattern)

	c := seedCluster(t, store, []string{"s1", "s2", "s3"}, []float64{0.1, 0.2, 0.3})
	first := r.BraidClusters(store, spec, []*Cluster{c})
	firstID := first.Created[0].ID

	// One late arrival alone is below threshold next to three consumed members.
	late1 := patternStrand("s4", 0.4, 0.8, 2.0, time.Now())
	store.InsertStrandIgnoreDuplicate(late1)
	members := append(append([]*models.LearningStrand{}, c.Members...), late1)
	out := r.BraidClusters(store, spec, []*Cluster{{Key: testClusterKey, Kind: models.KindPattern, Level: 0, Members: members}})
	if len(out.Created) != 0 {
		t.Fatalf("expected a single late strand to wait, got %d braids", len(out.Created))
	}

	// Two more arrivals clear the threshold again.
	late2 := patternStrand("s5", 0.5, 0.8, 2.0, time.Now())
	late3 := patternStrand("s6", 0.6, 0.8, 2.0, time.Now())
	store.InsertStrandIgnoreDuplicate(late2)
	store.InsertStrandIgnoreDuplicate(late3)
	members = append(members, late2, late3)
	out = r.BraidClusters(store, spec, []*Cluster{{Key: testClusterKey, Kind: models.KindPattern, Level: 0, Members: members}})

	if len(out.Created) != 1 {
		t.Fatalf("expected a second braid, got %d", len(out.Created))
	}
	second := out.Created[0]
	if second.ID == firstID {
		t.Error("expected the second braid to have a distinct id")
	}

	sources := second.SourceIDs()
	if len(sources) != 3 {
		t.Fatalf("expected 3 sources, got %d", len(sources))
	}
	for _, id := range sources {
		if id != "s4" && id != "s5" && id != "s6" {
			t.Errorf("expected only unconsumed strands as sources, found %s", id)
		}
	}
}

func TestBraidLevelIsMaxSourceLevelPlusOne(t *testing.T) {
	r := NewRegistry()
	store := newMemStore()
	spec, _ := r.Spec(models.KindPattern)
	now := time.Now()

	members := make([]*models.LearningStrand, 0, 3)
	for i, level := range []int{1, 1, 2} {
		s := patternStrand([]string{"b1", "b2", "b3"}[i], 0.1, 0.8, 2.0, now)
		s.BraidLevel = level
		store.InsertStrandIgnoreDuplicate(s)
		members = append(members, s)
	}
	c := &Cluster{Key: testClusterKey, Kind: models.KindPattern, Level: 2, Members: members}

	out := r.BraidClusters(store, spec, []*Cluster{c})
	if len(out.Created) != 1 {
		t.Fatalf("expected 1 braid, got %d", len(out.Created))
	}
	if got := out.Created[0].BraidLevel; got != 3 {
		t.Errorf("expected braid level 3, got %d", got)
	}
}
