package learning

import (
	"time"

	models "tradeloom/database/models_pkg"
)

// StrandStore is the event-log access the pipeline consumes. The
// Postgres repository satisfies it in production; tests run against an
// in-memory implementation. The pipeline never deletes strands.
type StrandStore interface {
	// InsertStrandIgnoreDuplicate persists a strand, treating a
	// primary-key collision as success. Reports whether a new row was
	// written. Braid creation depends on this for race safety.
	InsertStrandIgnoreDuplicate(strand *models.LearningStrand) (bool, error)

	// GetStrandByID retrieves one strand, nil if absent.
	GetStrandByID(id string) (*models.LearningStrand, error)

	// GetStrandsByKindAndLevel retrieves strands of one kind at one
	// braid level. A zero since disables the window filter.
	GetStrandsByKindAndLevel(kind string, braidLevel int, since time.Time, limit int) ([]*models.LearningStrand, error)

	// UpdateStrand writes back a mutated strand record.
	UpdateStrand(strand *models.LearningStrand) error

	// MaxBraidLevel returns the highest braid level present for a kind.
	MaxBraidLevel(kind string) (int, error)
}

// LessonStore persists mined lessons and materialized overrides.
type LessonStore interface {
	SaveLesson(lesson *models.LearningLesson) error
	SupersedeLesson(oldID, newID int64) error
	GetLatestLesson(patternKey, scope string) (*models.LearningLesson, error)
	UpsertOverride(o *models.LearningOverride) error
}

// StateStore persists resonance snapshots and run counters between
// passes. The scalars are recomputed from braid data each run; the
// snapshot only seeds the next pass.
type StateStore interface {
	SaveResonanceState(state *models.ResonanceState) error
	GetLatestResonanceState() (*models.ResonanceState, error)
	SaveRun(run *models.LearningRun) error
}
