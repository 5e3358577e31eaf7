package strands

import (
	"errors"
	"testing"
	"time"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
)

func validStrand() *models.LearningStrand {
	s := &models.LearningStrand{Kind: models.KindPattern}
	s.SetContentMap(map[string]interface{}{
		"asset":           "BTC",
		"timeframe":       "1h",
		"pattern_type":    "volume_spike",
		"realized_return": 0.04,
	})
	return s
}

func TestValidateForIngest(t *testing.T) {
	repo := &Repository{}

	tests := []struct {
		name      string
		strand    *models.LearningStrand
		wantField string
	}{
		{
			name:      "nil strand",
			strand:    nil,
			wantField: "strand",
		},
		{
			name: "unknown kind",
			strand: func() *models.LearningStrand {
				s := validStrand()
				s.Kind = "sentiment"
				return s
			}(),
			wantField: "kind",
		},
		{
			name: "braid level set",
			strand: func() *models.LearningStrand {
				s := validStrand()
				s.BraidLevel = 1
				return s
			}(),
			wantField: "braid_level",
		},
		{
			name: "source ids set",
			strand: func() *models.LearningStrand {
				s := validStrand()
				s.SetSourceIDs([]string{"abc"})
				return s
			}(),
			wantField: "source_strand_ids",
		},
		{
			name:      "empty content",
			strand:    &models.LearningStrand{Kind: models.KindPattern},
			wantField: "content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.ValidateForIngest(tt.strand)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			var vErr *database.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected a ValidationError, got %T", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, vErr.Field)
			}
		})
	}
}

func TestValidateForIngestAcceptsAllKnownKinds(t *testing.T) {
	repo := &Repository{}

	for _, kind := range []string{
		models.KindPattern,
		models.KindPredictionReview,
		models.KindTradeOutcome,
		models.KindDecision,
	} {
		s := validStrand()
		s.Kind = kind
		if err := repo.ValidateForIngest(s); err != nil {
			t.Errorf("expected kind %s to validate, got %v", kind, err)
		}
	}
}

func TestValidateForIngestFillsDefaults(t *testing.T) {
	repo := &Repository{}

	s := validStrand()
	if err := repo.ValidateForIngest(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID == "" {
		t.Error("expected a generated id")
	}
	if s.CreatedAt.IsZero() {
		t.Error("expected created_at to be filled")
	}
}

func TestValidateForIngestKeepsCallerIdentity(t *testing.T) {
	repo := &Repository{}

	at := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)
	s := validStrand()
	s.ID = "caller-supplied-id"
	s.CreatedAt = at

	if err := repo.ValidateForIngest(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID != "caller-supplied-id" {
		t.Errorf("expected the caller id to survive, got %s", s.ID)
	}
	if !s.CreatedAt.Equal(at) {
		t.Errorf("expected the caller timestamp to survive, got %v", s.CreatedAt)
	}
}
