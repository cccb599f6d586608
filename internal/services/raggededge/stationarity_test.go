package raggededge

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, phi float64) []float64 {
	rng := rand.New(rand.NewSource(7))
	out := make([]float64, n)
	for t := 1; t < n; t++ {
		out[t] = phi*out[t-1] + rng.NormFloat64()
	}
	return out
}

func TestADFSeparatesMeanRevertingFromExplosive(t *testing.T) {
	p := ADF{Lags: 1, Significance: 0.05, MinRows: 12}

	stat, ok := p.Statistic(series(80, -0.5))
	require.True(t, ok)
	assert.Less(t, stat, -2.86)
	assert.True(t, p.Stationary(series(80, -0.5)))

	stat, ok = p.Statistic(series(40, 1.1))
	require.True(t, ok)
	assert.Greater(t, stat, -2.86)
	assert.False(t, p.Stationary(series(40, 1.1)))
}

func TestADFKeepsShortSeries(t *testing.T) {
	p := ADF{Lags: 1, Significance: 0.05, MinRows: 12}
	assert.True(t, p.Stationary(series(8, 1.1)))
}

func TestAssemblerDropsNonStationaryColumns(t *testing.T) {
	f := newFixture()
	f.cols["ip_m1_lag1"] = series(len(f.index), 1.2)
	a := f.assembler(t, Options{Stationarity: ADF{Lags: 1, Significance: 0.05, MinRows: 12}}, nil)

	ds, err := a.Assemble(f.fold(18), 3)
	require.NoError(t, err)
	assert.NotContains(t, ds.Columns, "ip_m1_lag1")
}
