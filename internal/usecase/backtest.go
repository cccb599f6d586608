package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Nowcast/internal/domain/models"
	drepo "Nowcast/internal/domain/repository"
	"Nowcast/internal/modelcache"
	"Nowcast/internal/services/calendar"
	"Nowcast/internal/services/folds"
	"Nowcast/internal/services/pooling"
	"Nowcast/internal/services/raggededge"
	"Nowcast/internal/services/selection"
	"Nowcast/internal/services/specsearch"
	applogger "Nowcast/pkg/logger"
)

// Branch is a named selection strategy.
type Branch struct {
	Name     string
	Strategy selection.Strategy
}

// BacktestConfig holds the run settings the runner needs.
type BacktestConfig struct {
	Target        string
	LagDepth      int
	Bounds        folds.Bounds
	Criteria      []models.Criterion
	Pools         []models.PoolStrategy
	PoolOptions   pooling.Options
	MonthlyGrid   specsearch.GridParams
	QuarterlyGrid specsearch.GridParams
	// BenchmarkLags is the deepest target lag of the autoregressive benchmark.
	BenchmarkLags int
	Assembler     raggededge.Options
}

// Report is the outcome of one backtest.
type Report struct {
	RunID     string
	Folds     int
	Results   models.Results
	Selection models.SelectionMatrix
	// Absent counts pooled points missing because pooling failed.
	Absent int
}

// BacktestRunner walks the folds in chronological order and produces the
// pooled nowcast series of every pooling strategy, branch, criterion and checkpoint.
type BacktestRunner struct {
	cfg        BacktestConfig
	source     drepo.PanelSource
	calendar   *calendar.Calendar
	indicators []calendar.IndicatorSpec
	branches   []Branch
	poolers    []pooling.Pooler
	searcher   *specsearch.Searcher
	store      drepo.CacheStore
	publisher  drepo.ResultPublisher
	metrics    drepo.Metrics
	progress   *Progress
	l          *applogger.Logger
}

// NewBacktestRunner creates a runner. publisher may be nil.
func NewBacktestRunner(
	cfg BacktestConfig,
	source drepo.PanelSource,
	cal *calendar.Calendar,
	indicators []calendar.IndicatorSpec,
	branches []Branch,
	store drepo.CacheStore,
	publisher drepo.ResultPublisher,
	metrics drepo.Metrics,
	l *applogger.Logger,
) (*BacktestRunner, error) {
	if len(cfg.Criteria) == 0 {
		cfg.Criteria = models.Criteria
	}
	if len(cfg.Pools) == 0 {
		cfg.Pools = models.PoolStrategies
	}
	if cfg.BenchmarkLags < 1 {
		cfg.BenchmarkLags = 1
	}
	if len(branches) == 0 {
		return nil, models.NewConfigurationError("branches", "at least one selection branch is required")
	}
	poolers := make([]pooling.Pooler, 0, len(cfg.Pools))
	for _, s := range cfg.Pools {
		p, err := pooling.New(s, cfg.PoolOptions)
		if err != nil {
			return nil, err
		}
		poolers = append(poolers, p)
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &BacktestRunner{
		cfg:        cfg,
		source:     source,
		calendar:   cal,
		indicators: indicators,
		branches:   branches,
		poolers:    poolers,
		searcher:   specsearch.New(cfg.Criteria, l),
		store:      store,
		publisher:  publisher,
		metrics:    metrics,
		l:          l,
	}, nil
}

// SetProgress attaches a tracker updated after every fold.
func (r *BacktestRunner) SetProgress(p *Progress) { r.progress = p }

// RunID is the identity under which this configuration caches its results.
func (r *BacktestRunner) RunID() string {
	return modelcache.RunID(r.cfg.Target, r.cfg.LagDepth, r.cfg.Bounds.BacktestStart, r.cfg.Bounds.End)
}

// session is everything derived once per run from the inputs.
type session struct {
	folds     []models.Fold
	assembler *raggededge.Assembler
	cache     *modelcache.ModelCache
	specs     map[string]calendar.IndicatorSpec
}

func (r *BacktestRunner) prepare(ctx context.Context) (*session, error) {
	panel, err := r.source.LoadPanel(ctx)
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}
	releases, err := r.source.LoadReleases(ctx)
	if err != nil {
		return nil, fmt.Errorf("load releases: %w", err)
	}
	fs, err := folds.Generate(panel.Index(), r.cfg.Bounds)
	if err != nil {
		return nil, err
	}

	quarters := make([]time.Time, len(fs))
	for i, f := range fs {
		quarters[i] = f.Test
	}
	meta, warnings := r.calendar.BuildMeta(r.indicators, releases, quarters)
	for _, w := range warnings {
		r.l.Warn(w.Error(), applogger.String("kind", w.Kind), applogger.String("indicator", w.Subject))
	}

	asm, err := raggededge.New(panel, meta, r.cfg.Target, r.cfg.Assembler, r.l)
	if err != nil {
		return nil, err
	}
	mc := modelcache.New(r.RunID(), r.store, r.metrics, r.l)
	if err := mc.Load(ctx); err != nil {
		return nil, err
	}

	specs := make(map[string]calendar.IndicatorSpec, len(r.indicators))
	for _, s := range r.indicators {
		specs[s.Name] = s
	}
	return &session{folds: fs, assembler: asm, cache: mc, specs: specs}, nil
}

// slot is one SpecSearch unit: an indicator, or the benchmark, with its key parameters.
type slot struct {
	name      string
	frequency models.Frequency
	transform string
	grid      []models.ModelSpec
}

func (r *BacktestRunner) slots() []slot {
	out := make([]slot, 0, len(r.indicators)+1)
	for _, s := range r.indicators {
		g := r.cfg.MonthlyGrid
		if s.Frequency == models.FreqQuarterly {
			g = r.cfg.QuarterlyGrid
		}
		transform := s.Transform
		if transform == "" {
			transform = "none"
		}
		out = append(out, slot{name: s.Name, frequency: s.Frequency, transform: transform, grid: specsearch.GenerateGrid(g)})
	}
	return append(out, slot{
		name:      models.BenchmarkIndicator,
		frequency: models.FreqQuarterly,
		transform: "none",
		grid:      specsearch.BenchmarkGrid(r.cfg.BenchmarkLags),
	})
}

func (r *BacktestRunner) keys(runID string, fold models.Fold, cp models.Checkpoint, s slot) []models.CacheKey {
	out := make([]models.CacheKey, len(r.cfg.Criteria))
	for i, crit := range r.cfg.Criteria {
		out[i] = models.NewCacheKey(runID, fold.ID(), s.frequency, s.name, cp, crit, s.transform)
	}
	return out
}

// plan lists every cache key the run needs.
func (r *BacktestRunner) plan(runID string, fs []models.Fold) []models.CacheKey {
	var out []models.CacheKey
	slots := r.slots()
	for _, f := range fs {
		for _, cp := range r.calendar.Checkpoints() {
			for _, s := range slots {
				out = append(out, r.keys(runID, f, cp, s)...)
			}
		}
	}
	return out
}

// Missing reports the cache keys a run would have to compute.
func (r *BacktestRunner) Missing(ctx context.Context) ([]models.CacheKey, error) {
	sess, err := r.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return sess.cache.Missing(r.plan(sess.cache.RunID(), sess.folds)), nil
}

// Run executes the backtest, flushes the cache and publishes the pooled points.
func (r *BacktestRunner) Run(ctx context.Context) (*Report, error) {
	rep, err := r.run(ctx)
	r.progress.finish(err)
	return rep, err
}

func (r *BacktestRunner) run(ctx context.Context) (*Report, error) {
	start := time.Now()
	sess, err := r.prepare(ctx)
	if err != nil {
		return nil, err
	}
	runID := sess.cache.RunID()
	missing := sess.cache.Missing(r.plan(runID, sess.folds))
	r.l.Info("backtest starting",
		applogger.String("run_id", runID),
		applogger.Int("folds", len(sess.folds)),
		applogger.Int("checkpoints", len(r.calendar.Checkpoints())),
		applogger.Int("missing_keys", len(missing)))

	r.progress.start(runID, len(sess.folds))
	rep := &Report{RunID: runID, Folds: len(sess.folds), Results: models.Results{}}
	for _, fold := range sess.folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		foldStart := time.Now()
		for _, cp := range r.calendar.Checkpoints() {
			if err := r.step(sess, fold, cp, rep); err != nil {
				return nil, err
			}
		}
		r.recordFold(time.Since(foldStart))
		r.progress.advance(fold.Label(), rep.Absent)
	}

	if err := sess.cache.Flush(ctx); err != nil {
		return nil, err
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, runID, rep.Results.Flatten()); err != nil {
			return nil, err
		}
	}
	r.l.Info("backtest finished",
		applogger.String("run_id", runID),
		applogger.Int("cached_entries", sess.cache.Len()),
		applogger.Int("absent_points", rep.Absent),
		applogger.Duration("duration_ms", time.Since(start)))
	if r.metrics != nil {
		r.metrics.RecordLatency("run", time.Since(start).Seconds())
	}
	return rep, nil
}

// step handles one fold at one checkpoint.
func (r *BacktestRunner) step(sess *session, fold models.Fold, cp models.Checkpoint, rep *Report) error {
	ds, err := sess.assembler.Assemble(fold, cp)
	if err != nil {
		return err
	}

	entries := make(map[string]map[models.Criterion]models.CacheEntry, len(r.indicators)+1)
	stems := make(map[string]map[models.Criterion]string, len(r.indicators)+1)
	for _, s := range r.slots() {
		keys := r.keys(sess.cache.RunID(), fold, cp, s)
		got, err := sess.cache.GetOrComputeAll(keys, func() (map[models.Criterion]models.CacheEntry, error) {
			return r.search(sess, fold, cp, s)
		})
		if err != nil {
			r.l.Warn("spec search skipped",
				applogger.String("indicator", s.name),
				applogger.String("fold", fold.Label()),
				applogger.String("checkpoint", cp.String()),
				applogger.Error(err))
		}
		if len(got) == 0 {
			continue
		}
		entries[s.name] = got
		stems[s.name] = make(map[models.Criterion]string, len(keys))
		for _, k := range keys {
			stems[s.name][k.Criterion] = k.Stem()
		}
	}

	in := selection.NewInput(ds)
	for _, b := range r.branches {
		sel, err := b.Strategy.Fit(in)
		if err != nil {
			r.l.Warn("selection failed",
				applogger.String("branch", b.Name),
				applogger.String("fold", fold.Label()),
				applogger.String("checkpoint", cp.String()),
				applogger.Error(err))
		}
		chosen := sel.Indicators()
		rep.Selection.Add(models.SelectionRow{Fold: fold.ID(), Checkpoint: cp, Branch: b.Name, Indicators: chosen})

		for _, crit := range r.cfg.Criteria {
			var forecasts []pooling.Forecast
			for _, ind := range chosen {
				e, ok := entries[ind][crit]
				if !ok {
					continue
				}
				forecasts = append(forecasts, pooling.Forecast{
					Indicator: ind,
					Predicted: e.Predicted,
					History:   sess.cache.History().Trailing(stems[ind][crit], fold.Test, r.cfg.PoolOptions.Window),
				})
			}
			bench, hasBench := entries[models.BenchmarkIndicator][crit]

			for _, p := range r.poolers {
				pooled, err := p.Pool(fold.Test, cp, forecasts)
				var perr *models.PoolingError
				if errors.As(err, &perr) {
					rep.Absent++
					if r.metrics != nil {
						r.metrics.RecordPoolingError(string(p.Strategy()))
					}
					r.l.Debug("pooled point absent",
						applogger.String("branch", b.Name),
						applogger.String("criterion", string(crit)),
						applogger.String("reason", perr.Error()))
					continue
				}
				if err != nil {
					return err
				}
				pt := models.ResultPoint{
					Date:      fold.ID(),
					Predicted: pooled.Value,
					Weights:   pooled.Weights,
				}
				if ds.HasTestY {
					d := ds.TestY - pooled.Value
					pt.Actual, pt.HasActual, pt.SquaredError = ds.TestY, true, d*d
				}
				if hasBench {
					pt.Benchmark, pt.HasBenchmark = bench.Predicted, true
				}
				rep.Results.Add(p.Strategy(), b.Name, crit, cp, pt)
			}
		}
	}
	return nil
}

func (r *BacktestRunner) search(sess *session, fold models.Fold, cp models.Checkpoint, s slot) (map[models.Criterion]models.CacheEntry, error) {
	indicator := s.name
	if indicator == models.BenchmarkIndicator {
		indicator = ""
	}
	ds, err := sess.assembler.AssembleIndicator(fold, cp, indicator)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	out, err := r.searcher.Search(ds, indicator, s.grid)
	if r.metrics != nil {
		r.metrics.RecordSpecFit(s.name, err == nil)
		r.metrics.RecordLatency("spec_search", time.Since(started).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BacktestRunner) recordFold(d time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordFold()
		r.metrics.RecordLatency("fold", d.Seconds())
	}
}
