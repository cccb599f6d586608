package raggededge

import (
	"math"
	"sort"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/logger"
	"Nowcast/pkg/util"
)

// Options tune the column inclusion rule.
type Options struct {
	// StrictLagRelease also gates previous-quarter columns by their lag-1 release checkpoint.
	StrictLagRelease bool
	// Stationarity drops columns failing a unit-root check on the training slice. Nil disables it.
	Stationarity StationarityPolicy
}

// Assembler restricts the panel to what was observable at a checkpoint.
// It holds no mutable state; every call returns a new dataset.
type Assembler struct {
	panel  *models.Panel
	meta   models.MetaSet
	target string
	opts   Options
	l      *logger.Logger
}

func New(panel *models.Panel, meta models.MetaSet, target string, opts Options, l *logger.Logger) (*Assembler, error) {
	if panel == nil {
		return nil, models.NewConfigurationError("panel", "nil panel")
	}
	if !panel.Has(target) {
		return nil, models.NewConfigurationError("run.target", "panel has no column %q", target)
	}
	return &Assembler{panel: panel, meta: meta, target: target, opts: opts, l: l}, nil
}

// Available reports whether a column may enter the information set of quarter
// fold.Test at checkpoint cp. Columns of unknown indicators are never available.
func (a *Assembler) Available(fold models.Fold, cp models.Checkpoint, column string) bool {
	ref := models.ParseColumn(column)
	if ref.Base == a.target {
		return ref.IsLag()
	}
	m, ok := a.meta[ref.Base]
	if !ok {
		return false
	}
	switch {
	case ref.Lag == 0:
		return m.CurrentRelease(fold.Test, ref.SubPeriod).AvailableBy(cp)
	case ref.Lag == 1 && a.opts.StrictLagRelease:
		return m.LagRelease(fold.Test, ref.SubPeriod).AvailableBy(cp)
	default:
		return true
	}
}

// Assemble returns the complete-case training set and test row of one fold at one checkpoint.
func (a *Assembler) Assemble(fold models.Fold, cp models.Checkpoint) (models.RaggedEdgeDataset, error) {
	return a.build(fold, cp, nil)
}

// AssembleIndicator is Assemble restricted to the target lags and one indicator's
// columns, so that rows are dropped only for gaps in those columns. An empty
// indicator yields the target lags alone.
func (a *Assembler) AssembleIndicator(fold models.Fold, cp models.Checkpoint, indicator string) (models.RaggedEdgeDataset, error) {
	return a.build(fold, cp, func(ref models.ColumnRef) bool {
		return ref.Base == a.target || ref.Base == indicator
	})
}

func (a *Assembler) build(fold models.Fold, cp models.Checkpoint, include func(models.ColumnRef) bool) (models.RaggedEdgeDataset, error) {
	testRow, ok := a.panel.Row(fold.Test)
	if !ok {
		return models.RaggedEdgeDataset{}, models.NewConfigurationError("folds", "test date %s not in panel", fold.Label())
	}
	trainRows := make([]int, 0, len(fold.Train))
	for _, t := range fold.Train {
		r, ok := a.panel.Row(t)
		if !ok {
			return models.RaggedEdgeDataset{}, models.NewConfigurationError("folds", "train date %s not in panel", t.Format(util.DateLayout))
		}
		trainRows = append(trainRows, r)
	}

	var cols []string
	for _, c := range a.panel.Columns() {
		if include != nil && !include(models.ParseColumn(c)) {
			continue
		}
		if !a.Available(fold, cp, c) {
			continue
		}
		if v, _ := a.panel.Value(c, testRow); math.IsNaN(v) {
			a.warn(models.DataQualityWarning{Kind: models.WarnMissingTestValue, Subject: c, Detail: fold.Label()})
			continue
		}
		cols = append(cols, c)
	}

	if a.opts.Stationarity != nil {
		cols = a.dropNonStationary(cols, trainRows, fold, cp)
	}
	sortColumns(cols, a.target)

	ds := models.RaggedEdgeDataset{
		Fold:       fold,
		Checkpoint: cp,
		Target:     a.target,
		Columns:    cols,
		X:          make([][]float64, len(cols)),
		TestX:      make([]float64, len(cols)),
	}
	for j, c := range cols {
		ds.TestX[j], _ = a.panel.Value(c, testRow)
	}
	if y, _ := a.panel.Value(a.target, testRow); !math.IsNaN(y) {
		ds.TestY, ds.HasTestY = y, true
	}

rows:
	for _, r := range trainRows {
		y, _ := a.panel.Value(a.target, r)
		if math.IsNaN(y) {
			continue
		}
		for _, c := range cols {
			if v, _ := a.panel.Value(c, r); math.IsNaN(v) {
				continue rows
			}
		}
		ds.Y = append(ds.Y, y)
		for j, c := range cols {
			v, _ := a.panel.Value(c, r)
			ds.X[j] = append(ds.X[j], v)
		}
	}
	return ds, nil
}

func (a *Assembler) dropNonStationary(cols []string, trainRows []int, fold models.Fold, cp models.Checkpoint) []string {
	kept := cols[:0:0]
	dropped := 0
	for _, c := range cols {
		series := make([]float64, 0, len(trainRows))
		for _, r := range trainRows {
			if v, _ := a.panel.Value(c, r); !math.IsNaN(v) {
				series = append(series, v)
			}
		}
		if a.opts.Stationarity.Stationary(series) {
			kept = append(kept, c)
			continue
		}
		dropped++
		a.warn(models.DataQualityWarning{Kind: models.WarnNonStationary, Subject: c, Detail: fold.Label()})
	}
	if dropped > 0 && a.l != nil {
		a.l.Info("stationarity check dropped columns",
			logger.String("fold", fold.Label()),
			logger.String("checkpoint", cp.String()),
			logger.Int("dropped", dropped))
	}
	return kept
}

func (a *Assembler) warn(w models.DataQualityWarning) {
	if a.l != nil {
		a.l.Warn(w.Error(), logger.String("kind", w.Kind), logger.String("column", w.Subject))
	}
}

// sortColumns puts target lags first (by lag), then indicator columns by name.
func sortColumns(cols []string, target string) {
	sort.SliceStable(cols, func(i, j int) bool {
		ri, rj := models.ParseColumn(cols[i]), models.ParseColumn(cols[j])
		ti, tj := ri.Base == target, rj.Base == target
		if ti != tj {
			return ti
		}
		if ti {
			return ri.Lag < rj.Lag
		}
		return cols[i] < cols[j]
	})
}

// Recency orders an indicator's columns from most to least recent observation.
func Recency(ref models.ColumnRef) int {
	if ref.SubPeriod == 0 {
		return ref.Lag
	}
	return ref.Lag*3 + (3 - ref.SubPeriod)
}

// IndicatorColumns returns the indicator's columns in the dataset ordered by
// recency, index 0 being the most recent observation.
func IndicatorColumns(ds models.RaggedEdgeDataset, indicator string) []string {
	var out []string
	for _, c := range ds.Columns {
		if models.ParseColumn(c).Base == indicator {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Recency(models.ParseColumn(out[i])) < Recency(models.ParseColumn(out[j]))
	})
	return out
}
