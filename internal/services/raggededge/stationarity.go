package raggededge

import (
	"math"

	"Nowcast/internal/services/regression"
)

// StationarityPolicy decides whether a training series may enter a dataset.
type StationarityPolicy interface {
	Stationary(series []float64) bool
}

// MacKinnon asymptotic critical values of the ADF t statistic, constant, no trend.
var adfCritical = map[float64]float64{
	0.01: -3.43,
	0.05: -2.86,
	0.10: -2.57,
}

// ADF is an augmented Dickey-Fuller test with a constant and a fixed number of
// lagged differences. Series shorter than MinRows, or whose test regression
// cannot be fitted, are kept: the check is best effort.
type ADF struct {
	Lags         int
	Significance float64 // 0.01, 0.05 or 0.10
	MinRows      int
}

var _ StationarityPolicy = ADF{}

// Statistic returns the ADF t statistic of the lagged level.
func (p ADF) Statistic(series []float64) (float64, bool) {
	n := len(series)
	start := p.Lags + 1
	if n-start < p.Lags+3 {
		return 0, false
	}

	dy := make([]float64, n)
	for t := 1; t < n; t++ {
		dy[t] = series[t] - series[t-1]
	}

	rows := n - start
	y := make([]float64, rows)
	cols := make([][]float64, p.Lags+1)
	for j := range cols {
		cols[j] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		t := start + i
		y[i] = dy[t]
		cols[0][i] = series[t-1]
		for k := 1; k <= p.Lags; k++ {
			cols[k][i] = dy[t-k]
		}
	}

	fit, err := regression.Fit(cols, y)
	if err != nil {
		return 0, false
	}
	stat := fit.TStat(1)
	if math.IsNaN(stat) {
		return 0, false
	}
	return stat, true
}

func (p ADF) Stationary(series []float64) bool {
	if len(series) < p.MinRows {
		return true
	}
	crit, ok := adfCritical[p.Significance]
	if !ok {
		crit = adfCritical[0.05]
	}
	stat, ok := p.Statistic(series)
	if !ok {
		return true
	}
	return stat < crit
}
