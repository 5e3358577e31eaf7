package types

import "time"

// BraidDepthBucket holds the strand count at one braid level for one kind
type BraidDepthBucket struct {
	Kind        string `json:"kind"`
	BraidLevel  int    `json:"braid_level"`
	StrandCount int64  `json:"strand_count"`
	BraidCount  int64  `json:"braid_count"`
}

// LessonCoverage holds aggregated lesson statistics per kind
type LessonCoverage struct {
	Kind         string  `json:"kind"`
	LessonCount  int64   `json:"lesson_count"`
	ActiveCount  int64   `json:"active_count"`
	AvgEdge      float64 `json:"avg_edge"`
	MaxEdge      float64 `json:"max_edge"`
	MinEdge      float64 `json:"min_edge"`
	AvgSamples   float64 `json:"avg_samples"`
	AvgSelection float64 `json:"avg_selection"`
}

// OverrideCoverage holds aggregated override statistics per action category
type OverrideCoverage struct {
	ActionCategory string  `json:"action_category"`
	OverrideCount  int64   `json:"override_count"`
	ActiveCount    int64   `json:"active_count"`
	AvgMultiplier  float64 `json:"avg_multiplier"`
	MinMultiplier  float64 `json:"min_multiplier"`
	MaxMultiplier  float64 `json:"max_multiplier"`
	AvgConfidence  float64 `json:"avg_confidence"`
}

// ScopeActivity holds per-scope evidence and output counts
type ScopeActivity struct {
	Scope         string    `json:"scope"`
	StrandCount   int64     `json:"strand_count"`
	LessonCount   int64     `json:"lesson_count"`
	OverrideCount int64     `json:"override_count"`
	LastEvidence  time.Time `json:"last_evidence"`
}

// RunThroughput holds daily run aggregates for the stats endpoint
type RunThroughput struct {
	Day                   time.Time `json:"day"`
	RunCount              int64     `json:"run_count"`
	StrandsScored         int64     `json:"strands_scored"`
	BraidsCreated         int64     `json:"braids_created"`
	LessonsMined          int64     `json:"lessons_mined"`
	OverridesMaterialized int64     `json:"overrides_materialized"`
	ErrorCount            int64     `json:"error_count"`
}
