package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColumn(t *testing.T) {
	cases := []struct {
		name string
		want ColumnRef
	}{
		{"gdp", ColumnRef{Name: "gdp", Base: "gdp"}},
		{"gdp_lag2", ColumnRef{Name: "gdp_lag2", Base: "gdp", Lag: 2}},
		{"ind_prod_m2", ColumnRef{Name: "ind_prod_m2", Base: "ind_prod", SubPeriod: 2}},
		{"ind_prod_m3_lag1", ColumnRef{Name: "ind_prod_m3_lag1", Base: "ind_prod", SubPeriod: 3, Lag: 1}},
		{"x_m7", ColumnRef{Name: "x_m7", Base: "x_m7"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseColumn(tc.name))
		})
	}
	assert.Equal(t, "ind_prod_m3_lag1", ColumnName("ind_prod", 3, 1))
	assert.Equal(t, "gdp", ColumnName("gdp", 0, 0))
}

func TestCheckpointOrdering(t *testing.T) {
	p1, err := ParseCheckpoint("P1")
	require.NoError(t, err)
	p3, err := ParseCheckpoint("p3")
	require.NoError(t, err)

	assert.True(t, p1.AvailableBy(p3))
	assert.False(t, p3.AvailableBy(p1))
	assert.False(t, CheckpointUnavailable.AvailableBy(p3))
	assert.Equal(t, "p3", p3.String())

	_, err = ParseCheckpoint("q2")
	assert.Error(t, err)
}

func TestCacheKeyCanonicalFold(t *testing.T) {
	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	stamp := time.Date(2020, 1, 1, 17, 30, 0, 0, time.FixedZone("X", 3600))

	a := NewCacheKey("run", date, FreqMonthly, "ip", 2, CritBIC, "diff")
	b := NewCacheKey("run", stamp, FreqMonthly, "ip", 2, CritBIC, "diff")
	assert.Equal(t, a, b)
	assert.Equal(t, "run|2020-01-01|monthly|ip|p2|bic|diff", a.String())

	parsed, err := ParseCacheKey(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	later := NewCacheKey("run", date.AddDate(0, 3, 0), FreqMonthly, "ip", 2, CritBIC, "diff")
	assert.Equal(t, a.Stem(), later.Stem())

	_, err = ParseCacheKey("too|short")
	assert.Error(t, err)
}

func TestCriterionBetter(t *testing.T) {
	assert.True(t, CritBIC.Better(1, 2))
	assert.True(t, CritAIC.Better(-3, -1))
	assert.True(t, CritAdjR2.Better(0.8, 0.5))
}

func TestModelSpecContiguous(t *testing.T) {
	assert.True(t, ModelSpec{TargetLags: 1, IndicatorLags: []int{0, 1, 2}}.Contiguous())
	assert.False(t, ModelSpec{TargetLags: 1, IndicatorLags: []int{0, 2}}.Contiguous())
	assert.Equal(t, 3, ModelSpec{IndicatorLags: []int{0, 1, 2}}.Depth())
}

func TestPanelRejectsUnorderedIndex(t *testing.T) {
	idx := []time.Time{
		time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := NewPanel(idx, map[string][]float64{"gdp": {1, 2}})
	assert.Error(t, err)

	p, err := NewPanel(idx[1:], map[string][]float64{"gdp": {math.NaN()}})
	require.NoError(t, err)
	row, ok := p.Row(time.Date(2020, 4, 1, 12, 0, 0, 0, time.UTC))
	require.True(t, ok)
	v, _ := p.Value("gdp", row)
	assert.True(t, math.IsNaN(v))
}

func TestSelectionMatrix(t *testing.T) {
	var m SelectionMatrix
	fold := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Add(SelectionRow{Fold: fold, Checkpoint: 1, Branch: "a", Indicators: []string{"ip"}})
	m.Add(SelectionRow{Fold: fold, Checkpoint: 2, Branch: "a", Indicators: []string{"pmi", "ip"}})

	cols, mat := m.Matrix()
	assert.Equal(t, []string{"ip", "pmi"}, cols)
	assert.Equal(t, [][]int{{1, 0}, {1, 1}}, mat)
}

func TestSelectionResultIndicators(t *testing.T) {
	r := SelectionResult{Columns: []string{"ip_m2", "pmi_m1", "ip_m1_lag1"}}
	assert.Equal(t, []string{"ip", "pmi"}, r.Indicators())
}

func TestTypedErrors(t *testing.T) {
	var err error = NewConfigurationError("folds.eval_start", "not in index")
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "folds.eval_start")

	err = &PoolingError{Strategy: PoolMSFE, Checkpoint: 1, Reason: "no history"}
	var poolErr *PoolingError
	assert.True(t, errors.As(err, &poolErr))
}
