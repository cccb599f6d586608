package specsearch

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
)

func TestGenerateGridContiguous(t *testing.T) {
	grid := GenerateGrid(GridParams{MaxTargetLags: 1, MinIndicatorLags: 1, MaxIndicatorLags: 3})
	require.Len(t, grid, 6)
	assert.Equal(t, models.ModelSpec{TargetLags: 0, IndicatorLags: []int{0}}, grid[0])
	assert.Equal(t, models.ModelSpec{TargetLags: 1, IndicatorLags: []int{0, 1, 2}}, grid[5])
	for _, s := range grid {
		assert.True(t, s.Contiguous(), s.String())
	}
	assert.Equal(t, grid, GenerateGrid(GridParams{MaxTargetLags: 1, MinIndicatorLags: 1, MaxIndicatorLags: 3}))
}

func TestGenerateGridWithGaps(t *testing.T) {
	grid := GenerateGrid(GridParams{MinIndicatorLags: 2, MaxIndicatorLags: 3, AllowGaps: true})
	var blocks [][]int
	for _, s := range grid {
		blocks = append(blocks, s.IndicatorLags)
	}
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {1, 2}, {0, 1, 2}}, blocks)
}

func TestBenchmarkGrid(t *testing.T) {
	grid := BenchmarkGrid(2)
	require.Len(t, grid, 2)
	assert.Equal(t, 1, grid[0].TargetLags)
	assert.Empty(t, grid[1].IndicatorLags)
}

// dataset builds n rows of gdp lags and four quarterly cons columns.
func dataset(n int) models.RaggedEdgeDataset {
	rng := rand.New(rand.NewSource(11))
	ds := models.RaggedEdgeDataset{
		Target:     "gdp",
		Checkpoint: 2,
		Columns:    []string{"gdp_lag1", "gdp_lag2", "cons", "cons_lag1", "cons_lag2", "cons_lag3"},
		HasTestY:   true,
		TestY:      1.5,
	}
	ds.X = make([][]float64, len(ds.Columns))
	for j := range ds.X {
		ds.X[j] = make([]float64, n)
		for i := range ds.X[j] {
			ds.X[j][i] = rng.NormFloat64()
		}
		ds.TestX = append(ds.TestX, 0.5)
	}
	ds.Y = make([]float64, n)
	for i := range ds.Y {
		ds.Y[i] = 0.5 + 2*ds.X[2][i] + 0.3*ds.X[0][i] + 0.2*rng.NormFloat64()
	}
	return ds
}

func TestSearchSkipsSpecsDeeperThanColumns(t *testing.T) {
	grid := []models.ModelSpec{
		{TargetLags: 0, IndicatorLags: []int{0, 1, 2, 3}},
		{TargetLags: 0, IndicatorLags: []int{0, 1, 2, 3, 4}},
	}
	res, err := New(nil, nil).Search(dataset(30), "cons", grid)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for crit, e := range res {
		assert.Equal(t, grid[0], e.Spec, crit)
		assert.Equal(t, []string{"cons", "cons_lag1", "cons_lag2", "cons_lag3"}, e.Columns)
		assert.Len(t, e.Params, 5)
	}
}

func TestSearchEntry(t *testing.T) {
	grid := GenerateGrid(GridParams{MaxTargetLags: 2, MinIndicatorLags: 1, MaxIndicatorLags: 4})
	res, err := New([]models.Criterion{models.CritBIC}, nil).Search(dataset(40), "cons", grid)
	require.NoError(t, err)
	require.Len(t, res, 1)

	e := res[models.CritBIC]
	assert.Contains(t, e.Columns, "cons")
	assert.Less(t, e.Lower, e.Predicted)
	assert.Greater(t, e.Upper, e.Predicted)
	assert.True(t, e.HasActual)
	assert.InDelta(t, (1.5-e.Predicted)*(1.5-e.Predicted), e.SquaredError, 1e-12)
}

func TestSearchCriteriaDirection(t *testing.T) {
	grid := GenerateGrid(GridParams{MaxTargetLags: 2, MinIndicatorLags: 1, MaxIndicatorLags: 4})
	ds := dataset(40)
	s := New(nil, nil)
	res, err := s.Search(ds, "cons", grid)
	require.NoError(t, err)

	// every other fitted spec scores no better than the winner
	for _, spec := range grid {
		names := append([]string(nil), ds.TargetLagColumns()[:spec.TargetLags]...)
		ind := []string{"cons", "cons_lag1", "cons_lag2", "cons_lag3"}
		for _, p := range spec.IndicatorLags {
			names = append(names, ind[p])
		}
		c, err := fitSpec(ds, spec, names)
		require.NoError(t, err)
		assert.LessOrEqual(t, res[models.CritBIC].Score, c.fit.BIC())
		assert.LessOrEqual(t, res[models.CritAIC].Score, c.fit.AIC())
		assert.GreaterOrEqual(t, res[models.CritAdjR2].Score, c.fit.AdjR2())
	}
}

func TestSearchBenchmark(t *testing.T) {
	res, err := New(nil, nil).Search(dataset(30), "", BenchmarkGrid(2))
	require.NoError(t, err)
	for _, e := range res {
		assert.Empty(t, e.Spec.IndicatorLags)
		for _, c := range e.Columns {
			assert.Contains(t, []string{"gdp_lag1", "gdp_lag2"}, c)
		}
	}
}

func TestSearchExcludesSingularFits(t *testing.T) {
	ds := dataset(30)
	ds.X[3] = append([]float64(nil), ds.X[2]...)
	grid := []models.ModelSpec{
		{TargetLags: 0, IndicatorLags: []int{0, 1}},
		{TargetLags: 0, IndicatorLags: []int{0}},
	}
	res, err := New(nil, nil).Search(ds, "cons", grid)
	require.NoError(t, err)
	for _, e := range res {
		assert.Equal(t, grid[1], e.Spec)
	}
}

func TestSearchNoFit(t *testing.T) {
	_, err := New(nil, nil).Search(dataset(3), "cons", []models.ModelSpec{{TargetLags: 0, IndicatorLags: []int{0, 1, 2, 3}}})
	assert.ErrorIs(t, err, models.ErrNoFit)

	_, err = New(nil, nil).Search(dataset(30), "ip", GenerateGrid(DefaultMonthlyGrid))
	assert.ErrorIs(t, err, models.ErrNoFit)
}
