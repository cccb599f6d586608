package specsearch

import (
	"fmt"

	"Nowcast/internal/domain/models"
	"Nowcast/internal/services/raggededge"
	"Nowcast/internal/services/regression"
	"Nowcast/pkg/logger"
)

// intervalAlpha gives a 95% prediction interval.
const intervalAlpha = 0.05

// Searcher fits every specification of a grid by OLS and keeps the best one per criterion.
type Searcher struct {
	criteria []models.Criterion
	l        *logger.Logger
}

// New returns a searcher ranking by the given criteria, all of them when empty.
func New(criteria []models.Criterion, l *logger.Logger) *Searcher {
	if len(criteria) == 0 {
		criteria = models.Criteria
	}
	return &Searcher{criteria: criteria, l: l}
}

type candidate struct {
	spec    models.ModelSpec
	columns []string
	fit     *regression.OLS
	point   float64
	lower   float64
	upper   float64
}

func (c candidate) score(crit models.Criterion) float64 {
	switch crit {
	case models.CritAIC:
		return c.fit.AIC()
	case models.CritAdjR2:
		return c.fit.AdjR2()
	default:
		return c.fit.BIC()
	}
}

// Search scores the grid on the dataset, using the target's lags and the given
// indicator's columns in recency order. Specifications reaching past the
// available columns are skipped, as are those whose fit fails. An empty
// indicator searches target lags only. When nothing can be fitted the error
// wraps models.ErrNoFit.
func (s *Searcher) Search(ds models.RaggedEdgeDataset, indicator string, grid []models.ModelSpec) (map[models.Criterion]models.CacheEntry, error) {
	targetCols := ds.TargetLagColumns()
	var indCols []string
	if indicator != "" {
		indCols = raggededge.IndicatorColumns(ds, indicator)
	}

	var fitted []candidate
	for _, spec := range grid {
		if spec.TargetLags > len(targetCols) || spec.Depth() > len(indCols) {
			continue
		}
		names := append([]string(nil), targetCols[:spec.TargetLags]...)
		for _, pos := range spec.IndicatorLags {
			names = append(names, indCols[pos])
		}
		c, err := fitSpec(ds, spec, names)
		if err != nil {
			if s.l != nil {
				s.l.Debug("spec fit failed",
					logger.String("indicator", indicator),
					logger.String("spec", spec.String()),
					logger.Error(err))
			}
			continue
		}
		fitted = append(fitted, c)
	}
	if len(fitted) == 0 {
		return nil, fmt.Errorf("%s at %s/%s: %w", indicatorLabel(indicator), ds.Fold.Label(), ds.Checkpoint, models.ErrNoFit)
	}

	out := make(map[models.Criterion]models.CacheEntry, len(s.criteria))
	for _, crit := range s.criteria {
		best := fitted[0]
		for _, c := range fitted[1:] {
			if crit.Better(c.score(crit), best.score(crit)) {
				best = c
			}
		}
		out[crit] = entry(best, best.score(crit), ds)
	}
	return out, nil
}

func fitSpec(ds models.RaggedEdgeDataset, spec models.ModelSpec, names []string) (candidate, error) {
	cols := make([][]float64, len(names))
	x := make([]float64, len(names))
	for k, n := range names {
		j, ok := ds.ColumnIndex(n)
		if !ok {
			return candidate{}, fmt.Errorf("column %s not in dataset", n)
		}
		cols[k] = ds.X[j]
		x[k] = ds.TestX[j]
	}
	fit, err := regression.Fit(cols, ds.Y)
	if err != nil {
		return candidate{}, err
	}
	point, lo, hi, err := fit.Predict(x, intervalAlpha)
	if err != nil {
		return candidate{}, err
	}
	return candidate{spec: spec, columns: names, fit: fit, point: point, lower: lo, upper: hi}, nil
}

func entry(c candidate, score float64, ds models.RaggedEdgeDataset) models.CacheEntry {
	e := models.CacheEntry{
		Spec:      c.spec,
		Columns:   c.columns,
		Params:    append([]float64(nil), c.fit.Params...),
		Score:     score,
		Predicted: c.point,
		Lower:     c.lower,
		Upper:     c.upper,
	}
	if ds.HasTestY {
		d := ds.TestY - c.point
		e.Actual, e.HasActual, e.SquaredError = ds.TestY, true, d*d
	}
	return e
}

func indicatorLabel(indicator string) string {
	if indicator == "" {
		return models.BenchmarkIndicator
	}
	return indicator
}
