package learning

import (
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	models "tradeloom/database/models_pkg"
)

// memStore is the in-memory stand-in for the Postgres repositories.
// It clones records on every boundary like a real round-trip would, so
// pipeline code that forgets to persist a mutation fails here the same
// way it would in production.
type memStore struct {
	mu        sync.Mutex
	strands   map[string]*models.LearningStrand
	lessons   map[int64]*models.LearningLesson
	overrides []*models.LearningOverride
	states    []*models.ResonanceState
	runs      []*models.LearningRun

	nextLessonID   int64
	nextOverrideID int64
	nextRunID      int64
}

func newMemStore() *memStore {
	return &memStore{
		strands: make(map[string]*models.LearningStrand),
		lessons: make(map[int64]*models.LearningLesson),
	}
}

func cloneJSON(in datatypes.JSON) datatypes.JSON {
	if in == nil {
		return nil
	}
	out := make(datatypes.JSON, len(in))
	copy(out, in)
	return out
}

func cloneStrand(s *models.LearningStrand) *models.LearningStrand {
	c := *s
	c.Content = cloneJSON(s.Content)
	c.ClusterKeys = cloneJSON(s.ClusterKeys)
	c.SourceStrandIDs = cloneJSON(s.SourceStrandIDs)
	c.BraidRefs = cloneJSON(s.BraidRefs)
	return &c
}

func (m *memStore) InsertStrandIgnoreDuplicate(strand *models.LearningStrand) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.strands[strand.ID]; exists {
		return false, nil
	}
	if strand.CreatedAt.IsZero() {
		strand.CreatedAt = time.Now()
	}
	m.strands[strand.ID] = cloneStrand(strand)
	return true, nil
}

func (m *memStore) GetStrandByID(id string) (*models.LearningStrand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strands[id]
	if !ok {
		return nil, nil
	}
	return cloneStrand(s), nil
}

func (m *memStore) GetStrandsByKindAndLevel(kind string, braidLevel int, since time.Time, limit int) ([]*models.LearningStrand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.LearningStrand, 0)
	for _, s := range m.strands {
		if s.Kind != kind || s.BraidLevel != braidLevel {
			continue
		}
		if !since.IsZero() && s.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneStrand(s))
	}
	// Newest first, like the Postgres repository.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateStrand(strand *models.LearningStrand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strands[strand.ID] = cloneStrand(strand)
	return nil
}

func (m *memStore) MaxBraidLevel(kind string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, s := range m.strands {
		if s.Kind == kind && s.BraidLevel > max {
			max = s.BraidLevel
		}
	}
	return max, nil
}

func (m *memStore) strandCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.strands)
}

func (m *memStore) SaveLesson(lesson *models.LearningLesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lesson.ID == 0 {
		m.nextLessonID++
		lesson.ID = m.nextLessonID
	}
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = time.Now()
	}
	copied := *lesson
	m.lessons[lesson.ID] = &copied
	return nil
}

func (m *memStore) SupersedeLesson(oldID, newID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.lessons[oldID]
	if !ok {
		return nil
	}
	now := time.Now()
	old.SupersededBy = &newID
	old.SupersededAt = &now
	return nil
}

func (m *memStore) GetLatestLesson(patternKey, scope string) (*models.LearningLesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.LearningLesson
	for _, l := range m.lessons {
		if l.PatternKey != patternKey || l.Scope != scope || l.SupersededBy != nil {
			continue
		}
		if latest == nil || l.ID > latest.ID {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (m *memStore) UpsertOverride(o *models.LearningOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i, existing := range m.overrides {
		if existing.PatternKey == o.PatternKey && existing.Scope == o.Scope && existing.ActionCategory == o.ActionCategory {
			o.ID = existing.ID
			o.CreatedAt = existing.CreatedAt
			o.UpdatedAt = now
			copied := *o
			m.overrides[i] = &copied
			return nil
		}
	}
	m.nextOverrideID++
	o.ID = m.nextOverrideID
	o.CreatedAt = now
	o.UpdatedAt = now
	copied := *o
	m.overrides = append(m.overrides, &copied)
	return nil
}

func (m *memStore) SaveResonanceState(state *models.ResonanceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *state
	if copied.ComputedAt.IsZero() {
		copied.ComputedAt = time.Now()
	}
	copied.ID = int64(len(m.states) + 1)
	m.states = append(m.states, &copied)
	return nil
}

func (m *memStore) GetLatestResonanceState() (*models.ResonanceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return nil, nil
	}
	copied := *m.states[len(m.states)-1]
	return &copied, nil
}

func (m *memStore) SaveRun(run *models.LearningRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == 0 {
		m.nextRunID++
		run.ID = m.nextRunID
	}
	copied := *run
	m.runs = append(m.runs, &copied)
	return nil
}

// newTestStrand builds a level-0 strand with the given payload.
func newTestStrand(id, kind string, content map[string]interface{}, at time.Time) *models.LearningStrand {
	s := &models.LearningStrand{
		ID:        id,
		Kind:      kind,
		CreatedAt: at,
	}
	s.SetContentMap(content)
	return s
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func floatPtr(v float64) *float64 {
	return &v
}
