package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func md(t *testing.T, s string) MonthDay {
	v, err := ParseMonthDay(s)
	require.NoError(t, err)
	return v
}

func testCalendar(t *testing.T) *Calendar {
	c, err := New([]Window{
		{Label: 3, Start: md(t, "3-6"), End: md(t, "4-30")},
		{Label: 1, Start: md(t, "1-1"), End: md(t, "2-5")},
		{Label: 2, Start: md(t, "2-6"), End: md(t, "3-5")},
	})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadWindows(t *testing.T) {
	_, err := New(nil)
	var cfgErr *models.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New([]Window{{Label: 1, Start: MonthDay{2, 1}, End: MonthDay{1, 1}}})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New([]Window{
		{Label: 1, Start: MonthDay{1, 1}, End: MonthDay{2, 10}},
		{Label: 2, Start: MonthDay{2, 5}, End: MonthDay{3, 1}},
	})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New([]Window{{Label: 2, Start: MonthDay{1, 1}, End: MonthDay{2, 10}}})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestParseMonthDay(t *testing.T) {
	v, err := ParseMonthDay("4-15")
	require.NoError(t, err)
	assert.Equal(t, MonthDay{Month: 4, Day: 15}, v)

	for _, bad := range []string{"", "4", "13-1", "a-b", "1-32"} {
		_, err := ParseMonthDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestClassify(t *testing.T) {
	c := testCalendar(t)
	q := date(2020, 4, 1)

	cases := []struct {
		on   time.Time
		want models.Checkpoint
		ok   bool
	}{
		{date(2020, 3, 20), 1, true},  // before the quarter
		{date(2020, 4, 1), 1, true},   // first window start
		{date(2020, 5, 5), 1, true},   // first window end
		{date(2020, 5, 6), 2, true},   // second window start
		{date(2020, 6, 30), 3, true},  // third window
		{date(2020, 7, 30), 3, true},  // month after the quarter, still in p3
		{date(2020, 8, 1), models.CheckpointUnavailable, false},
	}
	for _, tc := range cases {
		got, ok := c.Classify(q, tc.on)
		assert.Equal(t, tc.ok, ok, tc.on)
		assert.Equal(t, tc.want, got, tc.on)
	}
	assert.Equal(t, []models.Checkpoint{1, 2, 3}, c.Checkpoints())
}

func TestBuildMetaMonthlyReleasedInSecondMonth(t *testing.T) {
	c := testCalendar(t)
	q := date(2020, 4, 1)
	prev := date(2020, 1, 1)

	releases := []models.ReleaseRecord{
		{Indicator: "ip", Quarter: q, SubPeriod: 1, ReleasedOn: date(2020, 5, 10)},
		{Indicator: "ip", Quarter: q, SubPeriod: 2, ReleasedOn: date(2020, 6, 10)},
		{Indicator: "ip", Quarter: q, SubPeriod: 3, ReleasedOn: date(2020, 7, 10)},
		{Indicator: "ip", Quarter: prev, SubPeriod: 1, ReleasedOn: date(2020, 2, 10)},
		{Indicator: "ip", Quarter: prev, SubPeriod: 2, ReleasedOn: date(2020, 3, 10)},
		{Indicator: "ip", Quarter: prev, SubPeriod: 3, ReleasedOn: date(2020, 4, 10)},
		{Indicator: "cons", Quarter: q, ReleasedOn: date(2020, 7, 28)},
	}
	specs := []IndicatorSpec{
		{Name: "ip", Frequency: models.FreqMonthly, Transform: "diff"},
		{Name: "cons", Frequency: models.FreqQuarterly},
	}

	meta, warnings := c.BuildMeta(specs, releases, []time.Time{q})

	ip := meta["ip"]
	assert.Equal(t, "diff", ip.Transform)
	assert.Equal(t, models.Checkpoint(2), ip.CurrentRelease(q, 1))
	assert.Equal(t, models.Checkpoint(3), ip.CurrentRelease(q, 2))
	assert.Equal(t, models.Checkpoint(3), ip.CurrentRelease(q, 3))
	assert.Equal(t, models.Checkpoint(1), ip.LagRelease(q, 3))

	cons := meta["cons"]
	assert.Equal(t, models.Checkpoint(3), cons.CurrentRelease(q, 0))
	assert.Equal(t, models.CheckpointUnavailable, cons.LagRelease(q, 0))

	require.Len(t, warnings, 0)
}

func TestBuildMetaMarksDataGapsUnavailable(t *testing.T) {
	c := testCalendar(t)
	q := date(2020, 4, 1)
	releases := []models.ReleaseRecord{
		{Indicator: "ip", Quarter: q, SubPeriod: 1, ReleasedOn: date(2020, 4, 20)},
	}

	meta, warnings := c.BuildMeta([]IndicatorSpec{{Name: "ip", Frequency: models.FreqMonthly}}, releases, []time.Time{q})

	assert.Equal(t, models.Checkpoint(1), meta["ip"].CurrentRelease(q, 1))
	assert.Equal(t, models.CheckpointUnavailable, meta["ip"].CurrentRelease(q, 2))
	assert.False(t, meta["ip"].CurrentRelease(q, 2).AvailableBy(3))
	require.Len(t, warnings, 2)
	assert.Equal(t, models.WarnMissingRelease, warnings[0].Kind)

	// a quarter never seen by BuildMeta is unavailable everywhere
	assert.Equal(t, models.CheckpointUnavailable, meta["ip"].CurrentRelease(date(2021, 1, 1), 1))
}
