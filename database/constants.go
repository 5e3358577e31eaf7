package database

import "time"

// Structural dimension names used in cluster keys and scopes.
const (
	DimAsset            = "asset"
	DimTimeframe        = "timeframe"
	DimRegime           = "regime"
	DimPatternType      = "pattern_type"
	DimOutcomeBucket    = "outcome_bucket"
	DimStrengthRange    = "strength_range"
	DimRRProfile        = "rr_profile"
	DimMarketConditions = "market_conditions"
)

// Outcome bucket values derived from the realized outcome metric.
const (
	OutcomeStrongWin  = "strong_win"
	OutcomeWin        = "win"
	OutcomeFlat       = "flat"
	OutcomeLoss       = "loss"
	OutcomeStrongLoss = "strong_loss"
)

// Strength range buckets derived from confidence x quality.
const (
	StrengthLow  = "low"
	StrengthMid  = "mid"
	StrengthHigh = "high"
)

// Risk/reward profile buckets.
const (
	RRConservative = "conservative"
	RRBalanced     = "balanced"
	RRAggressive   = "aggressive"
)

// Braiding thresholds
const (
	// Minimum cluster members before one braid is synthesized at the
	// next level. Below this, compression loses more than it saves.
	BraidThreshold = 3
)

// Mining thresholds
const (
	// Minimum sample count before edge statistics are trusted at all.
	MinLessonSamples = 33

	// Significance gate on |edge| before an override is written.
	MinOverrideEdge = 0.05

	// Hard bounds on materialized sizing multipliers.
	MultiplierFloor = 0.3
	MultiplierCeil  = 3.0
)

// Evidence freshness windows
const (
	EvidenceHalfLife    = 72 * time.Hour
	OverrideDefaultTTL  = 14 * 24 * time.Hour
	LessonWindowDefault = 30 * 24 * time.Hour
)

// Query limits
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Run history retention
const (
	RunRetention        = 90 * 24 * time.Hour
	WebhookLogRetention = 30 * 24 * time.Hour
)
