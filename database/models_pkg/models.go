package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Strand kinds. A braid keeps the kind of its sources, so the same
// consumers read raw and compressed evidence through one value set.
const (
	KindPattern          = "pattern"
	KindPredictionReview = "prediction_review"
	KindTradeOutcome     = "trade_outcome"
	KindDecision         = "decision"
)

// Override action categories.
const (
	ActionPositionSizing  = "position_sizing"
	ActionThresholdTuning = "threshold_tuning"
)

// ClusterAssignment is one structural tag placed on a strand by the
// grouping pass. Consumed flips when a braid absorbs the strand under
// this tag; BraidID records which braid did it.
type ClusterAssignment struct {
	Key      string `json:"key"`
	Consumed bool   `json:"consumed"`
	BraidID  string `json:"braid_id,omitempty"`
}

// LearningStrand represents one event record emitted by the trading
// pipeline, at any abstraction level.
//
// Key Fields:
//   - Kind: semantic category (pattern, prediction_review, trade_outcome, decision)
//   - BraidLevel: 0 for raw events; a compression braid carries source level + 1
//   - Content: kind-specific payload (flat JSON object of strings/numbers)
//   - ClusterKeys: structural tags assigned by the grouping pass, each
//     with its own consumed flag
//   - SourceStrandIDs: empty for raw strands; the >=3 members a braid compresses
//   - BraidRefs: ids of braids this strand has been absorbed into (provenance,
//     and the idempotence check for re-runs)
//   - PersistenceScore/NoveltyScore/SurpriseScore: quality signals in [0,1]
//
// Invariants:
//   - Kind and BraidLevel never change after creation
//   - strands are never deleted; braiding adds back-references instead
type LearningStrand struct {
	ID               string         `gorm:"primaryKey;size:64" json:"id"`
	Kind             string         `gorm:"size:32;index:idx_strands_kind_level;not null" json:"kind"`
	BraidLevel       int            `gorm:"index:idx_strands_kind_level;not null;default:0" json:"braid_level"`
	CreatedAt        time.Time      `gorm:"index;not null" json:"created_at"`
	Content          datatypes.JSON `json:"content"`
	ClusterKeys      datatypes.JSON `json:"cluster_keys"`
	PersistenceScore float64        `gorm:"type:decimal(6,5)" json:"persistence_score"`
	NoveltyScore     float64        `gorm:"type:decimal(6,5)" json:"novelty_score"`
	SurpriseScore    float64        `gorm:"type:decimal(6,5)" json:"surprise_score"`
	SourceStrandIDs  datatypes.JSON `json:"source_strand_ids"`
	BraidRefs        datatypes.JSON `json:"braid_refs"`
}

// TableName specifies the table name for LearningStrand
func (LearningStrand) TableName() string {
	return "learning_strands"
}

// ContentMap decodes the kind-specific payload. Nil content decodes to
// an empty map, never an error.
func (s *LearningStrand) ContentMap() map[string]interface{} {
	m := map[string]interface{}{}
	if len(s.Content) > 0 {
		_ = json.Unmarshal(s.Content, &m)
	}
	return m
}

// SetContentMap encodes and stores the payload.
func (s *LearningStrand) SetContentMap(m map[string]interface{}) {
	b, _ := json.Marshal(m)
	s.Content = datatypes.JSON(b)
}

// Assignments decodes the structural tags.
func (s *LearningStrand) Assignments() []ClusterAssignment {
	var out []ClusterAssignment
	if len(s.ClusterKeys) > 0 {
		_ = json.Unmarshal(s.ClusterKeys, &out)
	}
	return out
}

// SetAssignments encodes and stores the structural tags.
func (s *LearningStrand) SetAssignments(a []ClusterAssignment) {
	b, _ := json.Marshal(a)
	s.ClusterKeys = datatypes.JSON(b)
}

// SourceIDs decodes the member list of a braid; empty for raw strands.
func (s *LearningStrand) SourceIDs() []string {
	var out []string
	if len(s.SourceStrandIDs) > 0 {
		_ = json.Unmarshal(s.SourceStrandIDs, &out)
	}
	return out
}

// SetSourceIDs encodes and stores the braid member list.
func (s *LearningStrand) SetSourceIDs(ids []string) {
	b, _ := json.Marshal(ids)
	s.SourceStrandIDs = datatypes.JSON(b)
}

// BraidReferences decodes the ids of braids that absorbed this strand.
func (s *LearningStrand) BraidReferences() []string {
	var out []string
	if len(s.BraidRefs) > 0 {
		_ = json.Unmarshal(s.BraidRefs, &out)
	}
	return out
}

// AddBraidReference appends a braid id if not already present and
// reports whether the list changed.
func (s *LearningStrand) AddBraidReference(braidID string) bool {
	refs := s.BraidReferences()
	for _, r := range refs {
		if r == braidID {
			return false
		}
	}
	refs = append(refs, braidID)
	b, _ := json.Marshal(refs)
	s.BraidRefs = datatypes.JSON(b)
	return true
}

// HasBraidReference reports whether the strand was already absorbed
// into the given braid.
func (s *LearningStrand) HasBraidReference(braidID string) bool {
	for _, r := range s.BraidReferences() {
		if r == braidID {
			return true
		}
	}
	return false
}

// IsBraid reports whether this strand is a compression of others.
func (s *LearningStrand) IsBraid() bool {
	return s.BraidLevel >= 1 && len(s.SourceIDs()) > 0
}

// LearningLesson is a mined statistical finding for one pattern key in
// one scope. Lessons are superseded by later runs, not mutated: a
// refresh writes a new row and links the old one via SupersededBy.
//
// Key Fields:
//   - PatternKey: canonical cluster key of the evidence group
//   - Scope: comma-separated dimension=value context the lesson applies to
//   - SampleCount/MeanOutcome/OutcomeVariance/Baseline/Delta: the statistics
//   - Edge: signed deviation-from-baseline weighted by reliability,
//     support, magnitude, freshness and stability
//   - SelectionScore: multi-factor rank used for ensemble admission
//   - DecayState: evidence-freshness multiplier at mining time
//   - Summary/SummarySource: human-readable text, llm or template generated
type LearningLesson struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PatternKey      string     `gorm:"size:255;index:idx_lessons_pattern_scope;not null" json:"pattern_key"`
	Scope           string     `gorm:"size:255;index:idx_lessons_pattern_scope;not null" json:"scope"`
	Kind            string     `gorm:"size:32;index;not null" json:"kind"`
	BraidLevel      int        `gorm:"not null;default:0" json:"braid_level"`
	SampleCount     int        `gorm:"not null" json:"sample_count"`
	MeanOutcome     float64    `gorm:"type:decimal(12,6)" json:"mean_outcome"`
	OutcomeVariance float64    `gorm:"type:decimal(12,6)" json:"outcome_variance"`
	Baseline        float64    `gorm:"type:decimal(12,6)" json:"baseline"`
	Delta           float64    `gorm:"type:decimal(12,6)" json:"delta"`
	Edge            float64    `gorm:"type:decimal(12,6);index" json:"edge"`
	SelectionScore  float64    `gorm:"type:decimal(12,6)" json:"selection_score"`
	DecayState      float64    `gorm:"type:decimal(6,5);default:1" json:"decay_state"`
	WindowStart     time.Time  `json:"window_start"`
	WindowEnd       time.Time  `json:"window_end"`
	Summary         string     `gorm:"type:text" json:"summary"`
	SummarySource   string     `gorm:"size:16" json:"summary_source"` // llm, template
	SupersededBy    *int64     `gorm:"index" json:"superseded_by,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	SupersededAt    *time.Time `json:"superseded_at,omitempty"`
}

// TableName specifies the table name for LearningLesson
func (LearningLesson) TableName() string {
	return "learning_lessons"
}

// LearningOverride is a bounded runtime adjustment materialized from a
// sufficiently significant lesson. The live engine reads these filtered
// by scope and action category; this system only writes them.
type LearningOverride struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PatternKey      string     `gorm:"size:255;uniqueIndex:idx_overrides_key_scope_action;not null" json:"pattern_key"`
	Scope           string     `gorm:"size:255;uniqueIndex:idx_overrides_key_scope_action;not null" json:"scope"`
	ActionCategory  string     `gorm:"size:32;uniqueIndex:idx_overrides_key_scope_action;not null" json:"action_category"`
	Multiplier      *float64   `gorm:"type:decimal(8,4)" json:"multiplier,omitempty"`      // position_sizing
	ParameterDelta  *float64   `gorm:"type:decimal(8,4)" json:"parameter_delta,omitempty"` // threshold_tuning
	ConfidenceScore float64    `gorm:"type:decimal(6,5)" json:"confidence_score"`
	Edge            float64    `gorm:"type:decimal(12,6)" json:"edge"`
	LessonID        int64      `gorm:"index;not null" json:"lesson_id"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at,omitempty"`
}

// TableName specifies the table name for LearningOverride
func (LearningOverride) TableName() string {
	return "learning_overrides"
}

// ResonanceState is one snapshot of the process-wide learning scalars.
// The latest row wins; scalars are recomputed from persisted braid data
// each run, so a crash loses nothing unrecoverable.
type ResonanceState struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID      int64     `gorm:"index" json:"run_id"`
	Phi        float64   `gorm:"type:decimal(12,6)" json:"phi"`
	Rho        float64   `gorm:"type:decimal(12,6)" json:"rho"`
	Theta      float64   `gorm:"type:decimal(12,6)" json:"theta"`
	Omega      float64   `gorm:"type:decimal(12,6)" json:"omega"`
	ComputedAt time.Time `gorm:"index;not null" json:"computed_at"`
}

// TableName specifies the table name for ResonanceState
func (ResonanceState) TableName() string {
	return "resonance_states"
}

// LearningRun records the counters of one orchestrated batch pass.
type LearningRun struct {
	ID                    int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StartedAt             time.Time `gorm:"index;not null" json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
	TriggeredBy           string    `gorm:"size:32" json:"triggered_by"` // interval, manual, startup
	StrandsScored         int       `gorm:"default:0" json:"strands_scored"`
	ClustersFormed        int       `gorm:"default:0" json:"clusters_formed"`
	BraidsCreated         int       `gorm:"default:0" json:"braids_created"`
	MaxBraidLevel         int       `gorm:"default:0" json:"max_braid_level"`
	LessonsMined          int       `gorm:"default:0" json:"lessons_mined"`
	OverridesMaterialized int       `gorm:"default:0" json:"overrides_materialized"`
	ClustersSkipped       int       `gorm:"default:0" json:"clusters_skipped"`
	ErrorCount            int       `gorm:"default:0" json:"error_count"`
}

// TableName specifies the table name for LearningRun
func (LearningRun) TableName() string {
	return "learning_runs"
}

// LearningWebhook holds a webhook registration for learning events.
type LearningWebhook struct {
	ID                int        `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string     `gorm:"size:100;not null" json:"name"`
	URL               string     `gorm:"not null" json:"url"`
	Method            string     `gorm:"size:10;default:POST" json:"method"`
	AuthType          string     `gorm:"size:20" json:"auth_type"`
	AuthHeader        string     `gorm:"size:100" json:"auth_header"`
	AuthValue         string     `json:"auth_value"`
	EventTypes        string     `json:"event_types"` // Stored as JSON array
	Kinds             string     `json:"kinds"`       // Stored as JSON array
	MinEdge           *float64   `gorm:"type:decimal(8,4)" json:"min_edge,omitempty"`
	IsActive          bool       `gorm:"default:true" json:"is_active"`
	RetryCount        int        `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int        `gorm:"default:5" json:"retry_delay_seconds"`
	TimeoutSeconds    int        `gorm:"default:10" json:"timeout_seconds"`
	LastTriggeredAt   *time.Time `json:"last_triggered_at,omitempty"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	TotalSent         int        `gorm:"default:0" json:"total_sent"`
	TotalFailed       int        `gorm:"default:0" json:"total_failed"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for LearningWebhook
func (LearningWebhook) TableName() string {
	return "learning_webhooks"
}

// LearningWebhookLog is one delivery attempt audit row.
type LearningWebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	EventType      string    `gorm:"size:32" json:"event_type"`
	Payload        string    `gorm:"type:text" json:"payload"`
	ResponseStatus int       `json:"response_status"`
	ResponseBody   string    `gorm:"type:text" json:"response_body"`
	AttemptCount   int       `gorm:"default:1" json:"attempt_count"`
	Success        bool      `gorm:"index" json:"success"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for LearningWebhookLog
func (LearningWebhookLog) TableName() string {
	return "learning_webhook_logs"
}
