package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StrandRepository handles database operations for strands, braids,
// resonance snapshots, runs and webhook registrations.
type StrandRepository struct {
	db *Database
}

// NewStrandRepository creates a new strand repository
func NewStrandRepository(db *Database) *StrandRepository {
	return &StrandRepository{db: db}
}

// InitSchema performs auto-migration and index setup
func (r *StrandRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&LearningStrand{},
		&LearningLesson{},
		&LearningOverride{},
		&ResonanceState{},
		&LearningRun{},
		&LearningWebhook{},
		&LearningWebhookLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// GIN index for structural-dimension equality filters on the JSONB
	// payload. GORM tags cannot express this, so it is managed manually.
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_strands_content_gin
		ON learning_strands USING GIN (content jsonb_path_ops)
	`)

	// Partial index for the live engine's hot path: active overrides only.
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_overrides_active
		ON learning_overrides (scope, action_category)
		WHERE expires_at IS NULL OR expires_at > NOW()
	`)

	// Lessons are read newest-first per pattern key.
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_lessons_active
		ON learning_lessons (pattern_key, created_at DESC)
		WHERE superseded_by IS NULL
	`)

	fmt.Println("✅ Database schema initialized")
	return nil
}

// ============================================================================
// Strand operations
// ============================================================================

// InsertStrand persists a strand. A missing id is filled with a random
// UUID; braid ids are expected to be set by the caller (deterministic).
func (r *StrandRepository) InsertStrand(strand *LearningStrand) error {
	if strand.ID == "" {
		strand.ID = uuid.NewString()
	}
	if strand.CreatedAt.IsZero() {
		strand.CreatedAt = time.Now()
	}
	if err := r.db.db.Create(strand).Error; err != nil {
		return WrapDBError("InsertStrand", err)
	}
	return nil
}

// InsertStrandIgnoreDuplicate persists a strand, treating a primary-key
// collision as success. Returns whether a new row was written. Braid
// creation relies on this: two concurrent passes deriving the same
// braid id collide here instead of duplicating.
func (r *StrandRepository) InsertStrandIgnoreDuplicate(strand *LearningStrand) (bool, error) {
	if strand.CreatedAt.IsZero() {
		strand.CreatedAt = time.Now()
	}
	res := r.db.db.Clauses(clause.OnConflict{DoNothing: true}).Create(strand)
	if res.Error != nil {
		return false, WrapDBError("InsertStrandIgnoreDuplicate", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetStrandByID retrieves one strand, nil if absent
func (r *StrandRepository) GetStrandByID(id string) (*LearningStrand, error) {
	var strand LearningStrand
	err := r.db.db.First(&strand, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapDBError("GetStrandByID", err)
	}
	return &strand, nil
}

// GetStrandsByKindAndLevel retrieves strands of one kind at one braid
// level, newest first. A zero since disables the window filter.
func (r *StrandRepository) GetStrandsByKindAndLevel(kind string, braidLevel int, since time.Time, limit int) ([]*LearningStrand, error) {
	var strands []*LearningStrand
	query := r.db.db.Order("created_at DESC").
		Where("kind = ?", kind).
		Where("braid_level = ?", braidLevel)

	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&strands).Error; err != nil {
		return nil, WrapDBError("GetStrandsByKindAndLevel", err)
	}
	return strands, nil
}

// QueryStrands retrieves strands filtered by kind, braid level and
// arbitrary structural equality on the content payload.
func (r *StrandRepository) QueryStrands(kind string, braidLevel int, filters map[string]string, limit int) ([]*LearningStrand, error) {
	var strands []*LearningStrand
	query := r.db.db.Order("created_at DESC")

	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if braidLevel >= 0 {
		query = query.Where("braid_level = ?", braidLevel)
	}
	for key, value := range filters {
		query = query.Where(datatypes.JSONQuery("content").Equals(value, key))
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&strands).Error; err != nil {
		return nil, WrapDBError("QueryStrands", err)
	}
	return strands, nil
}

// UpdateStrand writes back a mutated strand record
func (r *StrandRepository) UpdateStrand(strand *LearningStrand) error {
	if err := r.db.db.Save(strand).Error; err != nil {
		return WrapDBError("UpdateStrand", err)
	}
	return nil
}

// PatchStrand applies a partial column update to one strand
func (r *StrandRepository) PatchStrand(id string, patch map[string]interface{}) error {
	res := r.db.db.Model(&LearningStrand{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return WrapDBError("PatchStrand", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("strand", id)
	}
	return nil
}

// MaxBraidLevel returns the highest braid level present for a kind
func (r *StrandRepository) MaxBraidLevel(kind string) (int, error) {
	var level int
	err := r.db.db.Model(&LearningStrand{}).
		Where("kind = ?", kind).
		Select("COALESCE(MAX(braid_level), 0)").
		Scan(&level).Error
	if err != nil {
		return 0, WrapDBError("MaxBraidLevel", err)
	}
	return level, nil
}

// CountStrands counts strands for a kind at one level
func (r *StrandRepository) CountStrands(kind string, braidLevel int) (int64, error) {
	var count int64
	err := r.db.db.Model(&LearningStrand{}).
		Where("kind = ? AND braid_level = ?", kind, braidLevel).
		Count(&count).Error
	if err != nil {
		return 0, WrapDBError("CountStrands", err)
	}
	return count, nil
}

// GetBraids retrieves braid strands (level >= 1) for a kind, newest first
func (r *StrandRepository) GetBraids(kind string, since time.Time, limit int) ([]*LearningStrand, error) {
	var braids []*LearningStrand
	query := r.db.db.Order("created_at DESC").Where("braid_level >= 1")

	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&braids).Error; err != nil {
		return nil, WrapDBError("GetBraids", err)
	}
	return braids, nil
}

// ============================================================================
// Resonance state
// ============================================================================

// SaveResonanceState appends a new scalar snapshot
func (r *StrandRepository) SaveResonanceState(state *ResonanceState) error {
	if state.ComputedAt.IsZero() {
		state.ComputedAt = time.Now()
	}
	if err := r.db.db.Create(state).Error; err != nil {
		return WrapDBError("SaveResonanceState", err)
	}
	return nil
}

// GetLatestResonanceState returns the newest snapshot, nil if none yet
func (r *StrandRepository) GetLatestResonanceState() (*ResonanceState, error) {
	var state ResonanceState
	err := r.db.db.Order("computed_at DESC").First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapDBError("GetLatestResonanceState", err)
	}
	return &state, nil
}

// ============================================================================
// Run history
// ============================================================================

// SaveRun persists the counters of one completed pass
func (r *StrandRepository) SaveRun(run *LearningRun) error {
	if err := r.db.db.Create(run).Error; err != nil {
		return WrapDBError("SaveRun", err)
	}
	return nil
}

// GetRecentRuns retrieves run history, newest first
func (r *StrandRepository) GetRecentRuns(limit int) ([]LearningRun, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	var runs []LearningRun
	err := r.db.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, WrapDBError("GetRecentRuns", err)
	}
	return runs, nil
}

// PruneRuns deletes run rows older than the retention window
func (r *StrandRepository) PruneRuns() (int64, error) {
	cutoff := time.Now().Add(-RunRetention)
	res := r.db.db.Where("started_at < ?", cutoff).Delete(&LearningRun{})
	if res.Error != nil {
		return 0, WrapDBError("PruneRuns", res.Error)
	}
	return res.RowsAffected, nil
}

// ============================================================================
// Webhook registrations
// ============================================================================

// GetWebhooks retrieves all webhook registrations
func (r *StrandRepository) GetWebhooks() ([]LearningWebhook, error) {
	var hooks []LearningWebhook
	err := r.db.db.Order("created_at DESC").Find(&hooks).Error
	if err != nil {
		return nil, WrapDBError("GetWebhooks", err)
	}
	return hooks, nil
}

// SaveWebhook creates or updates a webhook registration
func (r *StrandRepository) SaveWebhook(hook *LearningWebhook) error {
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = time.Now()
	}
	if err := r.db.db.Save(hook).Error; err != nil {
		return WrapDBError("SaveWebhook", err)
	}
	return nil
}

// DeleteWebhook removes a webhook registration and keeps its logs
func (r *StrandRepository) DeleteWebhook(id int) error {
	res := r.db.db.Delete(&LearningWebhook{}, "id = ?", id)
	if res.Error != nil {
		return WrapDBError("DeleteWebhook", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// GetActiveWebhooks retrieves enabled webhook registrations
func (r *StrandRepository) GetActiveWebhooks() ([]LearningWebhook, error) {
	var hooks []LearningWebhook
	err := r.db.db.Where("is_active = ?", true).Find(&hooks).Error
	if err != nil {
		return nil, WrapDBError("GetActiveWebhooks", err)
	}
	return hooks, nil
}

// SaveWebhookLog persists one delivery attempt audit row
func (r *StrandRepository) SaveWebhookLog(logEntry *LearningWebhookLog) error {
	if err := r.db.db.Create(logEntry).Error; err != nil {
		return WrapDBError("SaveWebhookLog", err)
	}
	return nil
}

// UpdateWebhookStats bumps delivery counters after an attempt
func (r *StrandRepository) UpdateWebhookStats(webhookID int, success bool, lastError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"last_triggered_at": &now,
	}
	if success {
		updates["last_success_at"] = &now
		updates["total_sent"] = gorm.Expr("total_sent + 1")
		updates["last_error"] = ""
	} else {
		updates["total_failed"] = gorm.Expr("total_failed + 1")
		updates["last_error"] = lastError
	}
	err := r.db.db.Model(&LearningWebhook{}).Where("id = ?", webhookID).Updates(updates).Error
	if err != nil {
		return WrapDBError("UpdateWebhookStats", err)
	}
	return nil
}

// PruneWebhookLogs deletes delivery logs older than the retention window
func (r *StrandRepository) PruneWebhookLogs() (int64, error) {
	cutoff := time.Now().Add(-WebhookLogRetention)
	res := r.db.db.Where("created_at < ?", cutoff).Delete(&LearningWebhookLog{})
	if res.Error != nil {
		return 0, WrapDBError("PruneWebhookLogs", res.Error)
	}
	return res.RowsAffected, nil
}
