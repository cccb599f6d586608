package pooling

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/util"
)

// Forecast is one indicator's prediction for the fold being pooled, with the
// squared errors it made on earlier folds.
type Forecast struct {
	Indicator string
	Predicted float64
	History   []models.ErrorPoint
}

// Pooled is a combined nowcast. Weights sum to one.
type Pooled struct {
	Value   float64
	Weights map[string]float64
}

// Pooler combines per-indicator forecasts for one fold and checkpoint.
type Pooler interface {
	Strategy() models.PoolStrategy
	Pool(fold time.Time, cp models.Checkpoint, forecasts []Forecast) (Pooled, error)
}

// Options configure MSFE weighting.
type Options struct {
	Window     int
	Epsilon    float64
	MinHistory int
}

// DefaultOptions match the configuration defaults.
func DefaultOptions() Options {
	return Options{Window: 8, Epsilon: 1e-8, MinHistory: 2}
}

// New dispatches on strategy.
func New(strategy models.PoolStrategy, opts Options) (Pooler, error) {
	switch strategy {
	case models.PoolAverage:
		return Average{}, nil
	case models.PoolMedian:
		return Median{}, nil
	case models.PoolMSFE:
		if opts.Window < 1 || opts.Epsilon <= 0 || opts.MinHistory < 1 {
			return nil, models.NewConfigurationError("pooling", "window and min_history must be >= 1 and epsilon > 0")
		}
		return MSFE{opts: opts}, nil
	default:
		return nil, models.NewConfigurationError("pooling.strategies", "unknown strategy %q", strategy)
	}
}

func usable(forecasts []Forecast) []Forecast {
	out := make([]Forecast, 0, len(forecasts))
	for _, f := range forecasts {
		if !math.IsNaN(f.Predicted) && !math.IsInf(f.Predicted, 0) {
			out = append(out, f)
		}
	}
	return out
}

func fail(s models.PoolStrategy, fold time.Time, cp models.Checkpoint, reason string) error {
	return &models.PoolingError{Fold: util.NormalizeDate(fold), Checkpoint: cp, Strategy: s, Reason: reason}
}

// Average is the equally weighted mean of every forecast.
type Average struct{}

func (Average) Strategy() models.PoolStrategy { return models.PoolAverage }

func (a Average) Pool(fold time.Time, cp models.Checkpoint, forecasts []Forecast) (Pooled, error) {
	fs := usable(forecasts)
	if len(fs) == 0 {
		return Pooled{}, fail(a.Strategy(), fold, cp, "no forecasts")
	}
	out := Pooled{Weights: make(map[string]float64, len(fs))}
	w := 1 / float64(len(fs))
	for _, f := range fs {
		out.Weights[f.Indicator] += w
		out.Value += w * f.Predicted
	}
	return out, nil
}

// Median takes the middle forecast, or the mean of the two middle ones.
type Median struct{}

func (Median) Strategy() models.PoolStrategy { return models.PoolMedian }

func (m Median) Pool(fold time.Time, cp models.Checkpoint, forecasts []Forecast) (Pooled, error) {
	fs := usable(forecasts)
	if len(fs) == 0 {
		return Pooled{}, fail(m.Strategy(), fold, cp, "no forecasts")
	}
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Predicted < fs[j].Predicted })

	mid := len(fs) / 2
	picked := []Forecast{fs[mid]}
	if len(fs)%2 == 0 {
		picked = []Forecast{fs[mid-1], fs[mid]}
	}
	out := Pooled{Weights: make(map[string]float64, len(picked))}
	w := 1 / float64(len(picked))
	for _, f := range picked {
		out.Weights[f.Indicator] += w
		out.Value += w * f.Predicted
	}
	return out, nil
}

// MSFE weights each forecast by the inverse of its mean squared error over the
// last Window folds strictly before the pooled fold. Indicators with fewer than
// MinHistory such errors sit out the fold.
type MSFE struct {
	opts Options
}

func (MSFE) Strategy() models.PoolStrategy { return models.PoolMSFE }

// TrailingMSE returns the mean of the last window squared errors dated strictly
// before fold, and how many errors it used.
func TrailingMSE(history []models.ErrorPoint, fold time.Time, window int) (float64, int) {
	cut := util.NormalizeDate(fold)
	past := make([]models.ErrorPoint, 0, len(history))
	for _, p := range history {
		if util.NormalizeDate(p.Fold).Before(cut) {
			past = append(past, p)
		}
	}
	sort.SliceStable(past, func(i, j int) bool { return past[i].Fold.Before(past[j].Fold) })
	if len(past) > window {
		past = past[len(past)-window:]
	}
	if len(past) == 0 {
		return math.NaN(), 0
	}
	errs := make([]float64, len(past))
	for i, p := range past {
		errs[i] = p.SquaredError
	}
	return floats.Sum(errs) / float64(len(errs)), len(errs)
}

func (m MSFE) Pool(fold time.Time, cp models.Checkpoint, forecasts []Forecast) (Pooled, error) {
	var (
		names []string
		preds []float64
		raw   []float64
	)
	for _, f := range usable(forecasts) {
		mse, n := TrailingMSE(f.History, fold, m.opts.Window)
		if n < m.opts.MinHistory || math.IsNaN(mse) || math.IsInf(mse, 0) {
			continue
		}
		names = append(names, f.Indicator)
		preds = append(preds, f.Predicted)
		raw = append(raw, 1/(mse+m.opts.Epsilon))
	}
	if len(names) == 0 {
		return Pooled{}, fail(m.Strategy(), fold, cp, "no indicator has a usable error history")
	}

	floats.Scale(1/floats.Sum(raw), raw)
	out := Pooled{Value: floats.Dot(raw, preds), Weights: make(map[string]float64, len(names))}
	for i, n := range names {
		out.Weights[n] += raw[i]
	}
	return out, nil
}
