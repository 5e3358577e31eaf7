package learning

import (
	"fmt"
	"log"
	"math"
	"sort"

	models "tradeloom/database/models_pkg"
)

// Cluster is an ephemeral grouping of same-kind, same-level strands
// sharing one cluster key. Members are references, not copies, so
// downstream stages mutate the same records the store loaded.
type Cluster struct {
	Key     string
	Kind    string
	Level   int
	Members []*models.LearningStrand
}

// GroupingConfig tunes the optional tier-2 refinement.
type GroupingConfig struct {
	// Buckets at or below this size are kept whole; above it, the
	// similarity pass may split them.
	RefinementMinSize int
	// Normalized feature distance within which two members stay in the
	// same sub-cluster.
	RefinementRadius float64
}

// DefaultGroupingConfig returns the refinement tuning used in production.
func DefaultGroupingConfig() GroupingConfig {
	return GroupingConfig{
		RefinementMinSize: 12,
		RefinementRadius:  0.35,
	}
}

// Group partitions strands of one kind and braid level into clusters.
//
// Tier 1 buckets by exact equality across the kind's declared
// dimensions. Tier 2 refines oversized buckets by feature similarity.
// Malformed strands are logged and skipped, never fatal; strands of the
// wrong kind or level are treated the same way. Returns the clusters
// and the number of strands skipped.
func (r *Registry) Group(spec KindSpec, strands []*models.LearningStrand, braidLevel int, cfg GroupingConfig) ([]*Cluster, int) {
	buckets := make(map[string][]*models.LearningStrand)
	order := make([]string, 0)
	skipped := 0

	for _, s := range strands {
		if s == nil {
			skipped++
			continue
		}
		if s.Kind != spec.Kind || s.BraidLevel != braidLevel {
			log.Printf("⚠️  Skipping strand %s: kind/level mismatch (%s L%d in a %s L%d pass)",
				s.ID, s.Kind, s.BraidLevel, spec.Kind, braidLevel)
			skipped++
			continue
		}

		key, err := r.BuildClusterKey(spec, s)
		if err != nil {
			log.Printf("⚠️  Skipping strand %s: %v", s.ID, err)
			skipped++
			continue
		}

		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], s)
	}

	var clusters []*Cluster
	for _, key := range order {
		members := buckets[key]
		if len(members) > cfg.RefinementMinSize && spec.Features != nil {
			for _, sub := range refineBucket(spec, key, members, cfg.RefinementRadius) {
				clusters = append(clusters, &Cluster{Key: sub.key, Kind: spec.Kind, Level: braidLevel, Members: sub.members})
			}
		} else {
			clusters = append(clusters, &Cluster{Key: key, Kind: spec.Kind, Level: braidLevel, Members: members})
		}
	}

	// Record the final keys on the member strands.
	for _, c := range clusters {
		for _, s := range c.Members {
			EnsureAssignment(s, c.Key)
		}
	}

	return clusters, skipped
}

// EnsureAssignment adds a structural tag for the key if the strand does
// not carry one yet. Reports whether the record changed.
func EnsureAssignment(s *models.LearningStrand, key string) bool {
	assignments := s.Assignments()
	for _, a := range assignments {
		if a.Key == key {
			return false
		}
	}
	assignments = append(assignments, models.ClusterAssignment{Key: key})
	s.SetAssignments(assignments)
	return true
}

type subCluster struct {
	key     string
	members []*models.LearningStrand
}

// refineBucket splits one oversized tier-1 bucket along numeric feature
// similarity. Members whose normalized feature distance is within the
// radius stay connected; connected components become sub-clusters.
// Degenerate feature sets (empty or identical vectors) collapse to a
// single cluster, never zero.
func refineBucket(spec KindSpec, key string, members []*models.LearningStrand, radius float64) []subCluster {
	n := len(members)
	features := make([][]float64, n)
	width := 0
	for i, s := range members {
		features[i] = spec.Features(s)
		if len(features[i]) > width {
			width = len(features[i])
		}
	}
	if width == 0 {
		return []subCluster{{key: key, members: members}}
	}

	normalized, degenerate := normalizeColumns(features, width)
	if degenerate {
		return []subCluster{{key: key, members: members}}
	}

	// Union by distance threshold.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if euclidean(normalized[i], normalized[j]) <= radius {
				union(i, j)
			}
		}
	}

	components := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		components[root] = append(components[root], i)
	}
	if len(components) <= 1 {
		return []subCluster{{key: key, members: members}}
	}

	// Number components by their smallest member id so sub-keys are
	// stable across re-runs over the same set.
	roots := make([]int, 0, len(components))
	for root := range components {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(a, b int) bool {
		return minMemberID(members, components[roots[a]]) < minMemberID(members, components[roots[b]])
	})

	out := make([]subCluster, 0, len(roots))
	for idx, root := range roots {
		indices := components[root]
		subMembers := make([]*models.LearningStrand, 0, len(indices))
		for _, i := range indices {
			subMembers = append(subMembers, members[i])
		}
		out = append(out, subCluster{
			key:     fmt.Sprintf("%s|sub=%d", key, idx),
			members: subMembers,
		})
	}
	return out
}

// normalizeColumns min-max scales each feature column into [0,1].
// Reports degenerate=true when no column carries any spread.
func normalizeColumns(features [][]float64, width int) ([][]float64, bool) {
	n := len(features)
	mins := make([]float64, width)
	maxs := make([]float64, width)
	for c := 0; c < width; c++ {
		mins[c] = math.Inf(1)
		maxs[c] = math.Inf(-1)
	}

	for _, row := range features {
		for c := 0; c < width; c++ {
			v := 0.0
			if c < len(row) {
				v = row[c]
			}
			if v < mins[c] {
				mins[c] = v
			}
			if v > maxs[c] {
				maxs[c] = v
			}
		}
	}

	spread := false
	for c := 0; c < width; c++ {
		if maxs[c]-mins[c] > 1e-12 {
			spread = true
			break
		}
	}
	if !spread {
		return nil, true
	}

	out := make([][]float64, n)
	for i, row := range features {
		out[i] = make([]float64, width)
		for c := 0; c < width; c++ {
			v := 0.0
			if c < len(row) {
				v = row[c]
			}
			if r := maxs[c] - mins[c]; r > 1e-12 {
				out[i][c] = (v - mins[c]) / r
			}
		}
	}
	return out, false
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func minMemberID(members []*models.LearningStrand, indices []int) string {
	min := ""
	for _, i := range indices {
		if min == "" || members[i].ID < min {
			min = members[i].ID
		}
	}
	return min
}
