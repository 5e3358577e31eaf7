package learning

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeloom/database"
	models "tradeloom/database/models_pkg"
	"tradeloom/llm"
)

// Summarizer writes the human-readable lesson text. The llm package
// provides the production implementation; a nil summarizer means every
// lesson gets the deterministic template.
type Summarizer interface {
	Summarize(ctx context.Context, d llm.LessonDigest) (text string, source string)
}

// OrchestratorConfig tunes one batch pass.
type OrchestratorConfig struct {
	// StrandWindow bounds how far back raw strands are read. Braid
	// levels are always read unwindowed; they stay small.
	StrandWindow time.Duration

	// BatchLimit caps the per-level fetch.
	BatchLimit int

	// Parallelism bounds the concurrent per-cluster mining goroutines.
	Parallelism int

	Grouping     GroupingConfig
	Miner        MinerConfig
	Materializer MaterializerConfig

	// CorrelationCeiling overrides the ensemble diversity bound.
	CorrelationCeiling float64
}

// DefaultOrchestratorConfig returns the production pass tuning.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		StrandWindow:       database.LessonWindowDefault,
		BatchLimit:         2000,
		Parallelism:        4,
		Grouping:           DefaultGroupingConfig(),
		Miner:              DefaultMinerConfig(),
		Materializer:       DefaultMaterializerConfig(),
		CorrelationCeiling: CorrelationCeiling,
	}
}

// RunReport is everything one pass produced, for callers that notify,
// broadcast, or record metrics. The run row inside carries the counters.
type RunReport struct {
	Run               *models.LearningRun
	Braids            []*models.LearningStrand
	Lessons           []*models.LearningLesson
	Overrides         []*models.LearningOverride
	Resonance         Resonance
	TemplateFallbacks int
}

// Orchestrator drives one full learning pass: score, group, braid level
// by level, then mine lessons and materialize overrides, then advance
// the resonance state. Every stage failure is contained to its cluster
// or kind; a pass always runs to the end.
type Orchestrator struct {
	registry     *Registry
	strands      StrandStore
	lessons      LessonStore
	state        StateStore
	miner        *Miner
	materializer *Materializer
	summarizer   Summarizer
	cfg          OrchestratorConfig
}

// NewOrchestrator wires a pass pipeline. summarizer may be nil.
func NewOrchestrator(registry *Registry, strands StrandStore, lessons LessonStore, state StateStore, summarizer Summarizer, cfg OrchestratorConfig) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.StrandWindow <= 0 {
		cfg.StrandWindow = def.StrandWindow
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.Grouping.RefinementMinSize == 0 && cfg.Grouping.RefinementRadius == 0 {
		cfg.Grouping = def.Grouping
	}
	if cfg.CorrelationCeiling <= 0 {
		cfg.CorrelationCeiling = def.CorrelationCeiling
	}

	return &Orchestrator{
		registry:     registry,
		strands:      strands,
		lessons:      lessons,
		state:        state,
		miner:        NewMiner(registry, cfg.Miner),
		materializer: NewMaterializer(cfg.Materializer),
		summarizer:   summarizer,
		cfg:          cfg,
	}
}

// RunOnce executes one complete learning pass. The returned report is
// never nil; the error is non-nil only when the context was cancelled
// mid-pass.
func (o *Orchestrator) RunOnce(ctx context.Context, trigger string) (*RunReport, error) {
	started := time.Now()
	log.Printf("🚀 Learning pass started (trigger: %s)", trigger)

	run := &models.LearningRun{StartedAt: started, TriggeredBy: trigger}
	report := &RunReport{Run: run}

	for _, kind := range o.registry.Kinds() {
		if ctx.Err() != nil {
			break
		}
		spec, ok := o.registry.Spec(kind)
		if !ok {
			continue
		}
		o.processKind(ctx, spec, run, report)
	}

	o.advanceResonance(run, report)

	run.FinishedAt = time.Now()
	if err := o.state.SaveRun(run); err != nil {
		log.Printf("⚠️  Failed to save run record: %v", err)
		run.ErrorCount++
	}
	if err := o.state.SaveResonanceState(report.Resonance.ToState(run.ID)); err != nil {
		log.Printf("⚠️  Failed to save resonance state: %v", err)
		run.ErrorCount++
	}

	log.Printf("✅ Learning pass complete in %s: %d scored, %d clusters, %d braids (max level %d), %d lessons, %d overrides, %d errors",
		time.Since(started).Round(time.Millisecond),
		run.StrandsScored, run.ClustersFormed, run.BraidsCreated,
		run.MaxBraidLevel, run.LessonsMined, run.OverridesMaterialized, run.ErrorCount)

	return report, ctx.Err()
}

// processKind walks one kind through the full pipeline: the level loop
// of score+group+braid, then mining over every cluster that formed.
func (o *Orchestrator) processKind(ctx context.Context, spec KindSpec, run *models.LearningRun, report *RunReport) {
	maxLevel, err := o.strands.MaxBraidLevel(spec.Kind)
	if err != nil {
		log.Printf("⚠️  Failed to read max braid level for %s: %v", spec.Kind, err)
		run.ErrorCount++
		maxLevel = 0
	}

	var baselineStrands []*models.LearningStrand
	var eligible []*Cluster

	// Braids created at level N+1 extend the loop bound, so compression
	// climbs until a level stops producing braids.
	for level := 0; level <= maxLevel; level++ {
		if ctx.Err() != nil {
			return
		}

		since := time.Time{}
		if level == 0 {
			since = time.Now().Add(-o.cfg.StrandWindow)
		}
		strands, err := o.strands.GetStrandsByKindAndLevel(spec.Kind, level, since, o.cfg.BatchLimit)
		if err != nil {
			log.Printf("⚠️  Failed to fetch %s strands at level %d: %v", spec.Kind, level, err)
			run.ErrorCount++
			continue
		}
		if len(strands) == 0 {
			continue
		}
		if level > run.MaxBraidLevel {
			run.MaxBraidLevel = level
		}

		type pending struct {
			strand       *models.LearningStrand
			scoreChanged bool
			keysBefore   string
		}
		dirty := make([]pending, 0, len(strands))

		// Braids keep their creation-time mean scores; only raw strands
		// are scored here.
		for _, s := range strands {
			p := pending{strand: s, keysBefore: string(s.ClusterKeys)}
			if level == 0 {
				if ApplyScores(s, o.registry.ScoreStrand(s)) {
					p.scoreChanged = true
					run.StrandsScored++
				}
			}
			dirty = append(dirty, p)
		}

		clusters, skipped := o.registry.Group(spec, strands, level, o.cfg.Grouping)
		run.ClustersFormed += len(clusters)
		if skipped > 0 {
			log.Printf("⚠️  %d malformed %s strands skipped at level %d", skipped, spec.Kind, level)
		}

		for _, p := range dirty {
			if !p.scoreChanged && string(p.strand.ClusterKeys) == p.keysBefore {
				continue
			}
			if err := o.strands.UpdateStrand(p.strand); err != nil {
				log.Printf("⚠️  Failed to persist strand %s: %v", p.strand.ID, err)
				run.ErrorCount++
			}
		}

		outcome := o.registry.BraidClusters(o.strands, spec, clusters)
		run.BraidsCreated += len(outcome.Created)
		run.ClustersSkipped += outcome.Skipped
		run.ErrorCount += outcome.Errors
		report.Braids = append(report.Braids, outcome.Created...)
		for _, b := range outcome.Created {
			if b.BraidLevel > maxLevel {
				maxLevel = b.BraidLevel
			}
			if b.BraidLevel > run.MaxBraidLevel {
				run.MaxBraidLevel = b.BraidLevel
			}
		}

		if level == 0 {
			baselineStrands = strands
		}
		eligible = append(eligible, clusters...)
	}

	o.mineKind(ctx, spec, baselineStrands, eligible, run, report)
}

// mineKind computes lesson drafts for every cluster in parallel, then
// admits them into the ensemble strongest-first and persists the
// admitted ones.
func (o *Orchestrator) mineKind(ctx context.Context, spec KindSpec, baselineStrands []*models.LearningStrand, eligible []*Cluster, run *models.LearningRun, report *RunReport) {
	if len(eligible) == 0 {
		return
	}

	baseline, baseN := o.miner.Baseline(spec, baselineStrands)
	if baseN == 0 {
		all := make([]*models.LearningStrand, 0)
		for _, c := range eligible {
			all = append(all, c.Members...)
		}
		baseline, baseN = o.miner.Baseline(spec, all)
	}
	if baseN == 0 {
		return
	}

	now := time.Now()
	drafts := make([]*LessonDraft, len(eligible))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for i, c := range eligible {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			drafts[i] = o.miner.Mine(spec, c, baseline, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("⚠️  Mining interrupted for %s: %v", spec.Kind, err)
		run.ErrorCount++
	}

	mined := make([]*LessonDraft, 0, len(drafts))
	for _, d := range drafts {
		if d != nil {
			mined = append(mined, d)
		}
	}
	if len(mined) == 0 {
		return
	}

	// Strongest candidates claim their correlation slot first.
	sort.Slice(mined, func(i, j int) bool {
		ei, ej := math.Abs(mined[i].Edge), math.Abs(mined[j].Edge)
		if ei == ej {
			return mined[i].Cluster.Key < mined[j].Cluster.Key
		}
		return ei > ej
	})

	ens := NewEnsemble(o.cfg.CorrelationCeiling)
	for _, d := range mined {
		adm := ens.Consider(d.Candidate())
		if !adm.Accepted {
			log.Printf("🔗 Pattern %s left out of ensemble: correlation %.2f with %s",
				d.Cluster.Key, adm.MaxCorrelation, adm.CorrelatedWith)
			continue
		}
		o.persistLesson(ctx, spec, d, adm, now, run, report)
	}
}

// persistLesson writes one admitted lesson, links the supersede chain,
// and materializes its override when the edge clears the gate.
func (o *Orchestrator) persistLesson(ctx context.Context, spec KindSpec, d *LessonDraft, adm Admission, now time.Time, run *models.LearningRun, report *RunReport) {
	lesson := d.ToLesson()
	lesson.SelectionScore = adm.Score

	digest := llm.LessonDigest{
		PatternKey:  lesson.PatternKey,
		Scope:       lesson.Scope,
		Kind:        lesson.Kind,
		BraidLevel:  lesson.BraidLevel,
		SampleCount: lesson.SampleCount,
		MeanOutcome: lesson.MeanOutcome,
		Baseline:    lesson.Baseline,
		Delta:       lesson.Delta,
		Variance:    lesson.OutcomeVariance,
		Edge:        lesson.Edge,
		WindowStart: lesson.WindowStart,
		WindowEnd:   lesson.WindowEnd,
	}
	if o.summarizer != nil {
		lesson.Summary, lesson.SummarySource = o.summarizer.Summarize(ctx, digest)
		if lesson.SummarySource == llm.SourceTemplate {
			report.TemplateFallbacks++
		}
	} else {
		lesson.Summary = llm.TemplateLessonSummary(digest)
		lesson.SummarySource = llm.SourceTemplate
	}

	prev, err := o.lessons.GetLatestLesson(lesson.PatternKey, lesson.Scope)
	if err != nil {
		log.Printf("⚠️  Failed to look up prior lesson for %s: %v", lesson.PatternKey, err)
		run.ErrorCount++
	}

	if err := o.lessons.SaveLesson(lesson); err != nil {
		log.Printf("⚠️  Failed to save lesson for %s: %v", lesson.PatternKey, err)
		run.ErrorCount++
		return
	}
	if prev != nil {
		if err := o.lessons.SupersedeLesson(prev.ID, lesson.ID); err != nil {
			log.Printf("⚠️  Failed to supersede lesson %d: %v", prev.ID, err)
			run.ErrorCount++
		}
	}
	run.LessonsMined++
	report.Lessons = append(report.Lessons, lesson)

	override := o.materializer.Materialize(spec, lesson, now)
	if override == nil {
		return
	}
	if err := o.lessons.UpsertOverride(override); err != nil {
		log.Printf("⚠️  Failed to upsert override for %s: %v", override.PatternKey, err)
		run.ErrorCount++
		return
	}
	run.OverridesMaterialized++
	report.Overrides = append(report.Overrides, override)
}

// advanceResonance folds this pass's braids into the persisted scalars.
// The braid's family is read from its source cluster key; strength per
// timeframe is the braid's persistence composite.
func (o *Orchestrator) advanceResonance(run *models.LearningRun, report *RunReport) {
	prev := Resonance{}
	if state, err := o.state.GetLatestResonanceState(); err != nil {
		log.Printf("⚠️  Failed to load resonance state: %v", err)
		run.ErrorCount++
	} else {
		prev = ResonanceFromState(state)
	}

	if len(report.Braids) == 0 {
		report.Resonance = prev
		return
	}

	families := make(map[string]map[string]float64)
	for _, b := range report.Braids {
		content := b.ContentMap()
		key, ok := contentString(content, "source_cluster")
		if !ok {
			continue
		}
		fam := FamilyKey(key)
		tf, _ := contentString(content, database.DimTimeframe)
		if families[fam] == nil {
			families[fam] = make(map[string]float64)
		}
		if b.PersistenceScore > families[fam][tf] {
			families[fam][tf] = b.PersistenceScore
		}
	}

	res := prev
	phiSum := 0.0
	phiRhoSum := 0.0
	counted := 0
	for _, b := range report.Braids {
		content := b.ContentMap()
		key, ok := contentString(content, "source_cluster")
		if !ok {
			continue
		}
		phi := PhiAcrossTimeframes(families[FamilyKey(key)])
		res = res.WithObservation(b.SurpriseScore, phi-res.Phi)
		res = res.WithPhi(phi)
		phiRhoSum += phi * res.Rho
		phiSum += phi
		counted++
	}

	res = res.WithFieldContribution(phiRhoSum)
	res = res.WithAcceleration()
	if counted > 0 {
		res = res.WithPhi(phiSum / float64(counted))
	}

	if res.ShouldAccelerateLearning() {
		log.Printf("🔥 Resonance omega %.4f above threshold, accelerated cadence advised", res.Omega)
	}

	report.Resonance = res
}
