package models

import (
	"time"

	"Nowcast/pkg/util"
)

// ReleaseSchedule holds, for one target quarter, the checkpoint at which each
// sub-period value of the quarter (Current) and of the preceding quarter (Lag)
// becomes observable. Quarterly indicators only use index 0.
type ReleaseSchedule struct {
	Current [3]Checkpoint `json:"current"`
	Lag     [3]Checkpoint `json:"lag"`
}

// IndicatorMeta is the read-only description of one base indicator.
type IndicatorMeta struct {
	Name      string
	Frequency Frequency
	Transform string
	// Schedules is keyed by quarter start date.
	Schedules map[time.Time]ReleaseSchedule
}

// Schedule returns the release schedule for the quarter containing q.
// A quarter without a known schedule is entirely unavailable.
func (m IndicatorMeta) Schedule(q time.Time) ReleaseSchedule {
	return m.Schedules[util.QuarterStart(q)]
}

// CurrentRelease returns the checkpoint at which the current-quarter value of a
// sub-period (0 for quarterly) is released for target quarter q.
func (m IndicatorMeta) CurrentRelease(q time.Time, subPeriod int) Checkpoint {
	return m.Schedule(q).Current[slot(subPeriod)]
}

// LagRelease returns the checkpoint at which the previous quarter's value of a
// sub-period is released, seen from target quarter q.
func (m IndicatorMeta) LagRelease(q time.Time, subPeriod int) Checkpoint {
	return m.Schedule(q).Lag[slot(subPeriod)]
}

func slot(subPeriod int) int {
	if subPeriod <= 0 || subPeriod > 3 {
		return 0
	}
	return subPeriod - 1
}

// MetaSet maps a base indicator name to its metadata.
type MetaSet map[string]IndicatorMeta

// ReleaseRecord is one historical publication date of an indicator's sub-period value.
type ReleaseRecord struct {
	Indicator  string    `json:"indicator"`
	Quarter    time.Time `json:"quarter"`
	SubPeriod  int       `json:"sub_period"`
	ReleasedOn time.Time `json:"released_on"`
}
