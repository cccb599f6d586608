package raggededge

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/logger"
	"Nowcast/pkg/util"
)

var ipColumns = []string{"ip_m1", "ip_m2", "ip_m3", "ip_m1_lag1", "ip_m2_lag1", "ip_m3_lag1"}

type fixture struct {
	index []time.Time
	cols  map[string][]float64
	meta  models.MetaSet
}

// newFixture builds 20 quarters of gdp, one monthly indicator released in the
// second month of each quarter (m1 by p2, m2 and m3 by p3) and one quarterly
// indicator released at p3.
func newFixture() *fixture {
	f := &fixture{cols: map[string][]float64{}}
	start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		f.index = append(f.index, util.AddQuarters(start, i))
	}
	for _, c := range append([]string{"gdp", "gdp_lag1", "cons", "cons_lag1", "unknown"}, ipColumns...) {
		vals := make([]float64, len(f.index))
		for i := range vals {
			vals[i] = math.Sin(float64(i*len(c)) * 0.37)
		}
		f.cols[c] = vals
	}

	ip := models.IndicatorMeta{Name: "ip", Frequency: models.FreqMonthly, Schedules: map[time.Time]models.ReleaseSchedule{}}
	cons := models.IndicatorMeta{Name: "cons", Frequency: models.FreqQuarterly, Schedules: map[time.Time]models.ReleaseSchedule{}}
	for _, q := range f.index {
		ip.Schedules[q] = models.ReleaseSchedule{Current: [3]models.Checkpoint{2, 3, 3}, Lag: [3]models.Checkpoint{1, 1, 2}}
		cons.Schedules[q] = models.ReleaseSchedule{Current: [3]models.Checkpoint{3}, Lag: [3]models.Checkpoint{1}}
	}
	f.meta = models.MetaSet{"ip": ip, "cons": cons}
	return f
}

func (f *fixture) assembler(t *testing.T, opts Options, l *logger.Logger) *Assembler {
	p, err := models.NewPanel(f.index, f.cols)
	require.NoError(t, err)
	a, err := New(p, f.meta, "gdp", opts, l)
	require.NoError(t, err)
	return a
}

func (f *fixture) fold(test int) models.Fold {
	return models.Fold{Train: f.index[:test], Test: f.index[test]}
}

func TestReleasedInSecondMonthScenario(t *testing.T) {
	f := newFixture()
	a := f.assembler(t, Options{}, nil)
	fold := f.fold(15)

	p1, err := a.Assemble(fold, 1)
	require.NoError(t, err)
	assert.NotContains(t, p1.Columns, "ip_m1")
	assert.Contains(t, p1.Columns, "ip_m1_lag1")
	assert.Contains(t, p1.Columns, "gdp_lag1")
	assert.NotContains(t, p1.Columns, "gdp")
	assert.NotContains(t, p1.Columns, "unknown")

	p3, err := a.Assemble(fold, 3)
	require.NoError(t, err)
	assert.Contains(t, p3.Columns, "ip_m1")
	assert.Contains(t, p3.Columns, "ip_m3")
	assert.Contains(t, p3.Columns, "cons")
}

func TestInformationGrowsMonotonically(t *testing.T) {
	f := newFixture()
	a := f.assembler(t, Options{}, nil)
	panel, err := models.NewPanel(f.index, f.cols)
	require.NoError(t, err)

	for test := 8; test < len(f.index); test++ {
		fold := f.fold(test)
		var prev map[string]bool
		for cp := models.Checkpoint(1); cp <= 3; cp++ {
			ds, err := a.Assemble(fold, cp)
			require.NoError(t, err)

			current := map[string]bool{}
			for _, c := range ds.Columns {
				ref := models.ParseColumn(c)
				if ref.IsLag() {
					assert.True(t, panel.Has(c))
					continue
				}
				rel := f.meta[ref.Base].CurrentRelease(fold.Test, ref.SubPeriod)
				assert.False(t, rel > cp, "%s released at %s, visible at %s", c, rel, cp)
				current[c] = true
			}
			for c := range prev {
				assert.True(t, current[c], "%s vanished at %s", c, cp)
			}
			prev = current
		}
	}
}

func TestUnavailableSentinelNeverReleased(t *testing.T) {
	f := newFixture()
	q := f.index[12]
	ip := f.meta["ip"]
	ip.Schedules[q] = models.ReleaseSchedule{Lag: [3]models.Checkpoint{1, 1, 1}}
	f.meta["ip"] = ip
	a := f.assembler(t, Options{}, nil)

	ds, err := a.Assemble(f.fold(12), 3)
	require.NoError(t, err)
	for _, c := range []string{"ip_m1", "ip_m2", "ip_m3"} {
		assert.NotContains(t, ds.Columns, c)
	}
	assert.Contains(t, ds.Columns, "ip_m3_lag1")
}

func TestStrictLagRelease(t *testing.T) {
	f := newFixture()
	fold := f.fold(10)

	loose, err := f.assembler(t, Options{}, nil).Assemble(fold, 1)
	require.NoError(t, err)
	assert.Contains(t, loose.Columns, "ip_m3_lag1")

	strict, err := f.assembler(t, Options{StrictLagRelease: true}, nil).Assemble(fold, 1)
	require.NoError(t, err)
	assert.NotContains(t, strict.Columns, "ip_m3_lag1")
	assert.Contains(t, strict.Columns, "ip_m2_lag1")
}

func TestCompleteCaseRows(t *testing.T) {
	f := newFixture()
	f.cols["ip_m2_lag1"][3] = math.NaN()
	f.cols["gdp"][5] = math.NaN()
	a := f.assembler(t, Options{}, nil)
	fold := f.fold(10)

	ds, err := a.Assemble(fold, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, ds.Rows())
	for _, col := range ds.X {
		require.Len(t, col, ds.Rows())
		for _, v := range col {
			assert.False(t, math.IsNaN(v))
		}
	}
	assert.True(t, ds.HasTestY)
	assert.Equal(t, f.cols["gdp"][10], ds.TestY)

	cons, err := a.AssembleIndicator(fold, 3, "cons")
	require.NoError(t, err)
	assert.Equal(t, 9, cons.Rows(), "gaps in other indicators do not cost rows")
	assert.Equal(t, []string{"gdp_lag1", "cons", "cons_lag1"}, cons.Columns)

	bench, err := a.AssembleIndicator(fold, 3, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"gdp_lag1"}, bench.Columns)
}

func TestMissingTestValueDropsColumn(t *testing.T) {
	f := newFixture()
	f.cols["ip_m1"][10] = math.NaN()
	l := logger.NewNop()
	l.AddCollector(&logger.CollectionConfig{})
	a := f.assembler(t, Options{}, l)

	ds, err := a.Assemble(f.fold(10), 3)
	require.NoError(t, err)
	assert.NotContains(t, ds.Columns, "ip_m1")
	assert.Contains(t, ds.Columns, "ip_m2")

	summary := l.Collector().Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, models.WarnMissingTestValue, summary[0].Fields["kind"])
}

func TestIndicatorColumnsByRecency(t *testing.T) {
	f := newFixture()
	a := f.assembler(t, Options{}, nil)

	p1, err := a.Assemble(f.fold(10), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip_m3_lag1", "ip_m2_lag1", "ip_m1_lag1"}, IndicatorColumns(p1, "ip"))

	p2, err := a.Assemble(f.fold(10), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ip_m1", "ip_m3_lag1", "ip_m2_lag1", "ip_m1_lag1"}, IndicatorColumns(p2, "ip"))
}

func TestNewRejectsMissingTarget(t *testing.T) {
	f := newFixture()
	p, err := models.NewPanel(f.index, f.cols)
	require.NoError(t, err)
	_, err = New(p, f.meta, "gnp", Options{}, nil)
	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
