package lessons

import (
	"errors"
	"fmt"
	"time"

	models "tradeloom/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for lessons and overrides
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new lessons repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveLesson persists a freshly mined lesson
func (r *Repository) SaveLesson(lesson *models.LearningLesson) error {
	if err := r.db.Create(lesson).Error; err != nil {
		return fmt.Errorf("SaveLesson: %w", err)
	}
	return nil
}

// SupersedeLesson links an old lesson row to the row replacing it.
// Lessons are never mutated in place; a refresh writes a new row and
// points the old one here.
func (r *Repository) SupersedeLesson(oldID, newID int64) error {
	now := time.Now()
	err := r.db.Model(&models.LearningLesson{}).
		Where("id = ?", oldID).
		Updates(map[string]interface{}{
			"superseded_by": newID,
			"superseded_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("SupersedeLesson: %w", err)
	}
	return nil
}

// GetLatestLesson returns the live (non-superseded) lesson for one
// pattern key and scope, nil if none exists yet.
func (r *Repository) GetLatestLesson(patternKey, scope string) (*models.LearningLesson, error) {
	var lesson models.LearningLesson
	err := r.db.Where("pattern_key = ? AND scope = ? AND superseded_by IS NULL", patternKey, scope).
		Order("created_at DESC").
		First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetLatestLesson: %w", err)
	}
	return &lesson, nil
}

// GetLessonByID retrieves a specific lesson by ID
func (r *Repository) GetLessonByID(id int64) (*models.LearningLesson, error) {
	var lesson models.LearningLesson
	err := r.db.First(&lesson, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetLessonByID: %w", err)
	}
	return &lesson, nil
}

// GetLessons retrieves lessons with filters, newest first
func (r *Repository) GetLessons(kind, patternKey string, activeOnly bool, minEdge float64, limit int) ([]models.LearningLesson, error) {
	var out []models.LearningLesson
	query := r.db.Order("created_at DESC")

	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if patternKey != "" {
		query = query.Where("pattern_key = ?", patternKey)
	}
	if activeOnly {
		query = query.Where("superseded_by IS NULL")
	}
	if minEdge > 0 {
		query = query.Where("ABS(edge) >= ?", minEdge)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("GetLessons: %w", err)
	}
	return out, nil
}

// UpsertOverride writes or refreshes the override for one
// (pattern_key, scope, action_category). Prior values are overwritten;
// the row identity is stable so the live engine's reads stay keyed.
func (r *Repository) UpsertOverride(o *models.LearningOverride) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "pattern_key"},
			{Name: "scope"},
			{Name: "action_category"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"multiplier", "parameter_delta", "confidence_score",
			"edge", "lesson_id", "updated_at", "expires_at",
		}),
	}).Create(o).Error
	if err != nil {
		return fmt.Errorf("UpsertOverride: %w", err)
	}
	return nil
}

// GetOverrideByKey retrieves one override, nil if absent
func (r *Repository) GetOverrideByKey(patternKey, scope, category string) (*models.LearningOverride, error) {
	var o models.LearningOverride
	err := r.db.Where("pattern_key = ? AND scope = ? AND action_category = ?", patternKey, scope, category).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetOverrideByKey: %w", err)
	}
	return &o, nil
}

// GetOverrides retrieves overrides with filters, newest first.
// Scope-subset matching against an execution context happens in the
// resolver; this returns the candidate rows.
func (r *Repository) GetOverrides(category string, activeOnly bool, limit int) ([]models.LearningOverride, error) {
	var out []models.LearningOverride
	query := r.db.Order("updated_at DESC")

	if category != "" {
		query = query.Where("action_category = ?", category)
	}
	if activeOnly {
		query = query.Where("expires_at IS NULL OR expires_at > ?", time.Now())
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("GetOverrides: %w", err)
	}
	return out, nil
}

// ExpireStaleOverrides sets an expiry on overrides whose backing lesson
// has gone stale. Returns how many rows were touched.
func (r *Repository) ExpireStaleOverrides(updatedBefore time.Time) (int64, error) {
	now := time.Now()
	res := r.db.Model(&models.LearningOverride{}).
		Where("updated_at < ? AND (expires_at IS NULL OR expires_at > ?)", updatedBefore, now).
		Update("expires_at", &now)
	if res.Error != nil {
		return 0, fmt.Errorf("ExpireStaleOverrides: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountActiveOverrides counts overrides the live engine can currently read
func (r *Repository) CountActiveOverrides() (int64, error) {
	var count int64
	err := r.db.Model(&models.LearningOverride{}).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("CountActiveOverrides: %w", err)
	}
	return count, nil
}
