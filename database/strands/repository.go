package strands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

// ingestBatchSize caps each bulk insert chunk so backfills of arbitrary
// size stay within one statement's parameter limits.
const ingestBatchSize = 100

// knownKinds lists the strand kinds external producers may submit.
var knownKinds = map[string]bool{
	models.KindPattern:          true,
	models.KindPredictionReview: true,
	models.KindTradeOutcome:     true,
	models.KindDecision:         true,
}

// Repository handles ingest of raw strands submitted over the API.
// Braids are created only by the learning pass; this repository forces
// everything it writes to level 0.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new strand ingest repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ValidateForIngest normalizes a submitted strand and rejects payloads
// external producers are not allowed to write. A missing id gets a
// random UUID; braid fields must be absent since only the learning
// pass derives those.
func (r *Repository) ValidateForIngest(strand *models.LearningStrand) error {
	if strand == nil {
		return database.NewValidationError("strand", "must not be nil")
	}
	if !knownKinds[strand.Kind] {
		return database.NewValidationErrorWithValue("kind", "unknown strand kind", strand.Kind)
	}
	if strand.BraidLevel != 0 {
		return database.NewValidationErrorWithValue("braid_level", "ingested strands must be level 0", strand.BraidLevel)
	}
	if len(strand.SourceIDs()) > 0 {
		return database.NewValidationError("source_strand_ids", "only braids carry source ids")
	}
	if len(strand.Content) == 0 {
		return database.NewValidationError("content", "must not be empty")
	}

	if strand.ID == "" {
		strand.ID = uuid.NewString()
	}
	if strand.CreatedAt.IsZero() {
		strand.CreatedAt = time.Now()
	}
	return nil
}

// Ingest validates and persists one submitted strand
func (r *Repository) Ingest(strand *models.LearningStrand) error {
	if err := r.ValidateForIngest(strand); err != nil {
		return err
	}
	if err := r.db.Create(strand).Error; err != nil {
		return fmt.Errorf("Ingest: %w", err)
	}
	return nil
}

// Backfill validates and persists a historical batch in chunks.
// Re-submitting the same batch is safe: rows whose ids already exist
// are skipped, and the count of newly written rows is returned.
func (r *Repository) Backfill(batch []*models.LearningStrand) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	for i, strand := range batch {
		if err := r.ValidateForIngest(strand); err != nil {
			return 0, fmt.Errorf("Backfill item %d: %w", i, err)
		}
	}

	var written int64
	for i := 0; i < len(batch); i += ingestBatchSize {
		end := i + ingestBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[i:end]

		res := r.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(chunk, len(chunk))
		if res.Error != nil {
			return written, fmt.Errorf("Backfill batch %d: %w", i/ingestBatchSize, res.Error)
		}
		written += res.RowsAffected
	}

	return written, nil
}

// GetRecent retrieves recently ingested raw strands with filters
func (r *Repository) GetRecent(kind string, limit int) ([]*models.LearningStrand, error) {
	var out []*models.LearningStrand
	query := r.db.Order("created_at DESC").Where("braid_level = 0")

	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("GetRecent: %w", err)
	}
	return out, nil
}
