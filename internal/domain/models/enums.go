package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Frequency is the native sampling frequency of an indicator.
type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
)

// IsValid reports whether f is a supported frequency.
func (f Frequency) IsValid() bool {
	switch f {
	case FreqDaily, FreqMonthly, FreqQuarterly:
		return true
	default:
		return false
	}
}

// SubPeriods returns how many within-quarter sub-periods carry a separate release.
// Daily indicators arrive aggregated to months by the upstream pipeline.
func (f Frequency) SubPeriods() int {
	if f == FreqQuarterly {
		return 1
	}
	return 3
}

// Checkpoint is a point of the quarter's information calendar, p1 < p2 < ... < pN.
type Checkpoint int

// CheckpointUnavailable marks a release that is not known for a quarter.
// It is never "at or before" any checkpoint.
const CheckpointUnavailable Checkpoint = 0

// Released reports whether c is a real checkpoint.
func (c Checkpoint) Released() bool { return c > 0 }

// AvailableBy reports whether a value released at c is observable at checkpoint at.
func (c Checkpoint) AvailableBy(at Checkpoint) bool {
	return c.Released() && c <= at
}

func (c Checkpoint) String() string {
	if !c.Released() {
		return "unavailable"
	}
	return "p" + strconv.Itoa(int(c))
}

// ParseCheckpoint parses "p3" (case-insensitive) into a checkpoint.
func ParseCheckpoint(s string) (Checkpoint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "unavailable" {
		return CheckpointUnavailable, nil
	}
	if !strings.HasPrefix(s, "p") {
		return CheckpointUnavailable, fmt.Errorf("invalid checkpoint %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n <= 0 {
		return CheckpointUnavailable, fmt.Errorf("invalid checkpoint %q", s)
	}
	return Checkpoint(n), nil
}

func (c Checkpoint) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Checkpoint) UnmarshalText(b []byte) error {
	v, err := ParseCheckpoint(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Criterion is an information criterion used to rank fitted specifications.
type Criterion string

const (
	CritBIC   Criterion = "bic"
	CritAIC   Criterion = "aic"
	CritAdjR2 Criterion = "adjr2"
)

// Criteria lists every criterion in a stable order.
var Criteria = []Criterion{CritBIC, CritAIC, CritAdjR2}

// IsValid reports whether c is a supported criterion.
func (c Criterion) IsValid() bool {
	switch c {
	case CritBIC, CritAIC, CritAdjR2:
		return true
	default:
		return false
	}
}

// Better reports whether score a beats score b. Lower BIC/AIC wins, higher adjusted R² wins.
func (c Criterion) Better(a, b float64) bool {
	if c == CritAdjR2 {
		return a > b
	}
	return a < b
}

// PoolStrategy names a way of combining per-indicator forecasts.
type PoolStrategy string

const (
	PoolAverage PoolStrategy = "average"
	PoolMedian  PoolStrategy = "median"
	PoolMSFE    PoolStrategy = "msfe"
)

// PoolStrategies lists every pooling strategy in a stable order.
var PoolStrategies = []PoolStrategy{PoolAverage, PoolMedian, PoolMSFE}
