package analytics

import (
	"database/sql"
	"fmt"
	"time"

	"tradeloom/database/types"
)

// Repository runs the aggregate coverage queries behind the stats API.
// These are plain SQL on the pq connection; the row volume makes GORM
// model scanning a poor fit here.
type Repository struct {
	conn *sql.DB
}

// NewRepository creates a new analytics repository
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{conn: conn}
}

// GetBraidDepthHistogram returns strand counts per kind and braid level.
// Braid count at level N is the number of compressed records there.
func (r *Repository) GetBraidDepthHistogram() ([]types.BraidDepthBucket, error) {
	query := `
		SELECT
			kind,
			braid_level,
			COUNT(*) AS strand_count,
			COUNT(*) FILTER (WHERE braid_level >= 1) AS braid_count
		FROM learning_strands
		GROUP BY kind, braid_level
		ORDER BY kind, braid_level
	`

	rows, err := r.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("GetBraidDepthHistogram: %w", err)
	}
	defer rows.Close()

	var out []types.BraidDepthBucket
	for rows.Next() {
		var b types.BraidDepthBucket
		if err := rows.Scan(&b.Kind, &b.BraidLevel, &b.StrandCount, &b.BraidCount); err != nil {
			return nil, fmt.Errorf("GetBraidDepthHistogram scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetLessonCoverage returns per-kind lesson aggregates
func (r *Repository) GetLessonCoverage() ([]types.LessonCoverage, error) {
	query := `
		SELECT
			kind,
			COUNT(*) AS lesson_count,
			COUNT(*) FILTER (WHERE superseded_by IS NULL) AS active_count,
			COALESCE(AVG(edge), 0) AS avg_edge,
			COALESCE(MAX(edge), 0) AS max_edge,
			COALESCE(MIN(edge), 0) AS min_edge,
			COALESCE(AVG(sample_count), 0) AS avg_samples,
			COALESCE(AVG(selection_score), 0) AS avg_selection
		FROM learning_lessons
		GROUP BY kind
		ORDER BY lesson_count DESC
	`

	rows, err := r.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("GetLessonCoverage: %w", err)
	}
	defer rows.Close()

	var out []types.LessonCoverage
	for rows.Next() {
		var c types.LessonCoverage
		if err := rows.Scan(&c.Kind, &c.LessonCount, &c.ActiveCount, &c.AvgEdge,
			&c.MaxEdge, &c.MinEdge, &c.AvgSamples, &c.AvgSelection); err != nil {
			return nil, fmt.Errorf("GetLessonCoverage scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetOverrideCoverage returns per-category override aggregates.
// Multiplier columns are NULL for threshold overrides, so the averages
// only cover sizing rows.
func (r *Repository) GetOverrideCoverage() ([]types.OverrideCoverage, error) {
	query := `
		SELECT
			action_category,
			COUNT(*) AS override_count,
			COUNT(*) FILTER (WHERE expires_at IS NULL OR expires_at > NOW()) AS active_count,
			COALESCE(AVG(multiplier), 0) AS avg_multiplier,
			COALESCE(MIN(multiplier), 0) AS min_multiplier,
			COALESCE(MAX(multiplier), 0) AS max_multiplier,
			COALESCE(AVG(confidence_score), 0) AS avg_confidence
		FROM learning_overrides
		GROUP BY action_category
		ORDER BY override_count DESC
	`

	rows, err := r.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("GetOverrideCoverage: %w", err)
	}
	defer rows.Close()

	var out []types.OverrideCoverage
	for rows.Next() {
		var c types.OverrideCoverage
		if err := rows.Scan(&c.ActionCategory, &c.OverrideCount, &c.ActiveCount,
			&c.AvgMultiplier, &c.MinMultiplier, &c.MaxMultiplier, &c.AvgConfidence); err != nil {
			return nil, fmt.Errorf("GetOverrideCoverage scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetTopScopes returns the scopes producing the most learning output
func (r *Repository) GetTopScopes(limit int) ([]types.ScopeActivity, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			l.scope,
			COALESCE(SUM(l.sample_count), 0) AS strand_count,
			COUNT(DISTINCT l.id) AS lesson_count,
			COUNT(DISTINCT o.id) AS override_count,
			MAX(l.window_end) AS last_evidence
		FROM learning_lessons l
		LEFT JOIN learning_overrides o ON o.scope = l.scope
		WHERE l.superseded_by IS NULL
		GROUP BY l.scope
		ORDER BY lesson_count DESC, strand_count DESC
		LIMIT $1
	`

	rows, err := r.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("GetTopScopes: %w", err)
	}
	defer rows.Close()

	var out []types.ScopeActivity
	for rows.Next() {
		var s types.ScopeActivity
		var lastEvidence sql.NullTime
		if err := rows.Scan(&s.Scope, &s.StrandCount, &s.LessonCount, &s.OverrideCount, &lastEvidence); err != nil {
			return nil, fmt.Errorf("GetTopScopes scan: %w", err)
		}
		if lastEvidence.Valid {
			s.LastEvidence = lastEvidence.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRunThroughput returns daily run aggregates over a trailing window
func (r *Repository) GetRunThroughput(days int) ([]types.RunThroughput, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days)

	query := `
		SELECT
			DATE_TRUNC('day', started_at) AS day,
			COUNT(*) AS run_count,
			COALESCE(SUM(strands_scored), 0) AS strands_scored,
			COALESCE(SUM(braids_created), 0) AS braids_created,
			COALESCE(SUM(lessons_mined), 0) AS lessons_mined,
			COALESCE(SUM(overrides_materialized), 0) AS overrides_materialized,
			COALESCE(SUM(error_count), 0) AS error_count
		FROM learning_runs
		WHERE started_at >= $1
		GROUP BY day
		ORDER BY day DESC
	`

	rows, err := r.conn.Query(query, since)
	if err != nil {
		return nil, fmt.Errorf("GetRunThroughput: %w", err)
	}
	defer rows.Close()

	var out []types.RunThroughput
	for rows.Next() {
		var t types.RunThroughput
		if err := rows.Scan(&t.Day, &t.RunCount, &t.StrandsScored, &t.BraidsCreated,
			&t.LessonsMined, &t.OverridesMaterialized, &t.ErrorCount); err != nil {
			return nil, fmt.Errorf("GetRunThroughput scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
