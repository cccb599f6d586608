package folds

import (
	"time"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/util"
)

// Bounds are the configured fold boundaries. A zero End means the last timestamp of the index.
type Bounds struct {
	BacktestStart   time.Time
	EvaluationStart time.Time
	End             time.Time
}

// Generate builds one expanding-window fold per timestamp from EvaluationStart
// through End. Each fold trains on every timestamp from BacktestStart up to, not
// including, its test timestamp. The output depends only on its inputs.
func Generate(index []time.Time, b Bounds) ([]models.Fold, error) {
	if len(index) == 0 {
		return nil, models.NewConfigurationError("folds", "empty index")
	}

	pos := make(map[time.Time]int, len(index))
	for i, t := range index {
		d := util.NormalizeDate(t)
		if i > 0 && !d.After(util.NormalizeDate(index[i-1])) {
			return nil, models.NewConfigurationError("folds", "index not strictly increasing at %s", d.Format(util.DateLayout))
		}
		pos[d] = i
	}

	find := func(field string, t time.Time) (int, error) {
		i, ok := pos[util.NormalizeDate(t)]
		if !ok {
			return 0, models.NewConfigurationError(field, "%s is not in the index", t.Format(util.DateLayout))
		}
		return i, nil
	}

	start, err := find("run.backtest_start", b.BacktestStart)
	if err != nil {
		return nil, err
	}
	eval, err := find("run.evaluation_start", b.EvaluationStart)
	if err != nil {
		return nil, err
	}
	last := len(index) - 1
	if !b.End.IsZero() {
		if last, err = find("run.end", b.End); err != nil {
			return nil, err
		}
	}
	if start > eval || eval > last {
		return nil, models.NewConfigurationError("run", "need backtest_start <= evaluation_start <= end, got %s, %s, %s",
			index[start].Format(util.DateLayout), index[eval].Format(util.DateLayout), index[last].Format(util.DateLayout))
	}

	out := make([]models.Fold, 0, last-eval+1)
	for t := eval; t <= last; t++ {
		train := make([]time.Time, 0, t-start)
		for i := start; i < t; i++ {
			train = append(train, util.NormalizeDate(index[i]))
		}
		out = append(out, models.Fold{Train: train, Test: util.NormalizeDate(index[t])})
	}
	return out, nil
}
