// Package database provides database connection management for the tradeloom learning system.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - The strand/lesson/override repository used by the learning pipeline
//   - Comprehensive error handling and validation
//
// Key Concepts:
//   - Strands are append-only; braiding adds back-references, never deletes
//   - Braid ids are deterministic, so duplicate creation collides on the
//     primary key instead of duplicating evidence
//   - Lessons are superseded by newer rows rather than mutated in place
//
// Data Models:
//
//	All data models (LearningStrand, LearningLesson, LearningOverride, etc.)
//	are defined in the models_pkg package to avoid circular import dependencies.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "tradeloom/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
// It serves as the central connection point for all database operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
// This method provides access to the raw GORM DB for advanced operations.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Backward Compatibility Type Aliases
// ============================================================================

// These type aliases let callers import the entity types from the database
// package directly instead of reaching into models_pkg.

// Strand kinds and override action categories - constant re-exports
const (
	KindPattern          = models.KindPattern
	KindPredictionReview = models.KindPredictionReview
	KindTradeOutcome     = models.KindTradeOutcome
	KindDecision         = models.KindDecision

	ActionPositionSizing  = models.ActionPositionSizing
	ActionThresholdTuning = models.ActionThresholdTuning
)

// Core data models - type aliases
type LearningStrand = models.LearningStrand
type ClusterAssignment = models.ClusterAssignment
type LearningLesson = models.LearningLesson
type LearningOverride = models.LearningOverride
type ResonanceState = models.ResonanceState
type LearningRun = models.LearningRun
type LearningWebhook = models.LearningWebhook
type LearningWebhookLog = models.LearningWebhookLog
