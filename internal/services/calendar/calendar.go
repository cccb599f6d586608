package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/util"
)

// MonthDay is a position in a quarter's information calendar. Month counts from
// the quarter's first month (1), so 4 is the first month after the quarter ends.
type MonthDay struct {
	Month int
	Day   int
}

// ParseMonthDay parses "M-D", e.g. "4-15".
func ParseMonthDay(s string) (MonthDay, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return MonthDay{}, fmt.Errorf("month-day %q: want M-D", s)
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil {
		return MonthDay{}, fmt.Errorf("month-day %q: %w", s, err)
	}
	d, err := strconv.Atoi(parts[1])
	if err != nil {
		return MonthDay{}, fmt.Errorf("month-day %q: %w", s, err)
	}
	md := MonthDay{Month: m, Day: d}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return MonthDay{}, fmt.Errorf("month-day %q out of range", s)
	}
	return md, nil
}

func (md MonthDay) ord() int { return md.Month*100 + md.Day }

func (md MonthDay) String() string { return fmt.Sprintf("%d-%d", md.Month, md.Day) }

// Window is the span of one checkpoint, both ends inclusive.
type Window struct {
	Label models.Checkpoint
	Start MonthDay
	End   MonthDay
}

// Calendar classifies dates into the ordered checkpoints of a quarter.
type Calendar struct {
	windows []Window
}

// New validates the windows: labels p1..pN without gaps, each window well formed
// and strictly after the previous one.
func New(windows []Window) (*Calendar, error) {
	if len(windows) == 0 {
		return nil, models.NewConfigurationError("calendar.windows", "at least one window is required")
	}
	ws := append([]Window(nil), windows...)
	sort.Slice(ws, func(i, j int) bool { return ws[i].Label < ws[j].Label })

	for i, w := range ws {
		if w.Label != models.Checkpoint(i+1) {
			return nil, models.NewConfigurationError("calendar.windows", "labels must be p1..p%d, got %s", len(ws), w.Label)
		}
		if w.End.ord() < w.Start.ord() {
			return nil, models.NewConfigurationError("calendar.windows", "%s ends (%s) before it starts (%s)", w.Label, w.End, w.Start)
		}
		if i > 0 && w.Start.ord() <= ws[i-1].End.ord() {
			return nil, models.NewConfigurationError("calendar.windows", "%s overlaps %s", w.Label, ws[i-1].Label)
		}
	}
	return &Calendar{windows: ws}, nil
}

// Checkpoints returns p1..pN.
func (c *Calendar) Checkpoints() []models.Checkpoint {
	out := make([]models.Checkpoint, len(c.windows))
	for i, w := range c.windows {
		out[i] = w.Label
	}
	return out
}

// Classify returns the checkpoint by which a value released on date is known,
// seen from the quarter containing base. Dates before the first window resolve
// to the earliest checkpoint, dates between two windows to the next one. Dates
// after the last window are outside the quarter's calendar and report false.
func (c *Calendar) Classify(base, date time.Time) (models.Checkpoint, bool) {
	q := util.QuarterStart(base)
	d := util.NormalizeDate(date)
	if d.Before(q) {
		return c.windows[0].Label, true
	}
	pos := MonthDay{Month: util.MonthsBetween(q, d) + 1, Day: d.Day()}.ord()
	for _, w := range c.windows {
		if pos <= w.End.ord() {
			return w.Label, true
		}
	}
	return models.CheckpointUnavailable, false
}

// IndicatorSpec is the static description of an indicator.
type IndicatorSpec struct {
	Name      string
	Frequency models.Frequency
	Transform string
}

// Releases indexes release dates by indicator, quarter start and sub-period.
type Releases map[string]map[time.Time]map[int]time.Time

// IndexReleases builds the lookup used by Schedule. Quarterly records may use sub-period 0 or 1.
func IndexReleases(releases []models.ReleaseRecord) Releases {
	idx := make(Releases)
	for _, r := range releases {
		q := util.QuarterStart(r.Quarter)
		if idx[r.Indicator] == nil {
			idx[r.Indicator] = make(map[time.Time]map[int]time.Time)
		}
		if idx[r.Indicator][q] == nil {
			idx[r.Indicator][q] = make(map[int]time.Time)
		}
		sub := r.SubPeriod
		if sub <= 0 {
			sub = 1
		}
		idx[r.Indicator][q][sub] = util.NormalizeDate(r.ReleasedOn)
	}
	return idx
}

func (idx Releases) lookup(indicator string, q time.Time, sub int) (time.Time, bool) {
	t, ok := idx[indicator][util.QuarterStart(q)][sub]
	return t, ok
}

// Schedule builds the release schedule of one indicator for target quarter q.
// A sub-period without a known release date is CheckpointUnavailable and
// reported as a warning.
func (c *Calendar) Schedule(spec IndicatorSpec, q time.Time, idx Releases) (models.ReleaseSchedule, []models.DataQualityWarning) {
	var (
		sched    models.ReleaseSchedule
		warnings []models.DataQualityWarning
	)
	prev := util.AddQuarters(q, -1)
	for sub := 1; sub <= spec.Frequency.SubPeriods(); sub++ {
		slot := sub - 1
		if t, ok := idx.lookup(spec.Name, q, sub); ok {
			sched.Current[slot], _ = c.Classify(q, t)
		} else {
			warnings = append(warnings, models.DataQualityWarning{
				Kind:    models.WarnMissingRelease,
				Subject: spec.Name,
				Detail:  fmt.Sprintf("%s sub-period %d", util.QuarterLabel(q), sub),
			})
		}
		if t, ok := idx.lookup(spec.Name, prev, sub); ok {
			sched.Lag[slot], _ = c.Classify(q, t)
		}
	}
	return sched, warnings
}

// BuildMeta builds the metadata of every indicator for the given target quarters.
func (c *Calendar) BuildMeta(specs []IndicatorSpec, releases []models.ReleaseRecord, quarters []time.Time) (models.MetaSet, []models.DataQualityWarning) {
	idx := IndexReleases(releases)
	meta := make(models.MetaSet, len(specs))
	var warnings []models.DataQualityWarning

	for _, spec := range specs {
		m := models.IndicatorMeta{
			Name:      spec.Name,
			Frequency: spec.Frequency,
			Transform: spec.Transform,
			Schedules: make(map[time.Time]models.ReleaseSchedule, len(quarters)),
		}
		for _, q := range quarters {
			sched, w := c.Schedule(spec, q, idx)
			m.Schedules[util.QuarterStart(q)] = sched
			warnings = append(warnings, w...)
		}
		meta[spec.Name] = m
	}
	return meta, warnings
}
