package models

import (
	"time"

	"Nowcast/pkg/util"
)

// Fold is one expanding-window backtest step: every quarter from the backtest
// start up to (excluding) Test trains the model that nowcasts Test.
type Fold struct {
	Train []time.Time `json:"train"`
	Test  time.Time   `json:"test"`
}

// ID returns the canonical fold identifier, the test quarter's civil date.
func (f Fold) ID() time.Time { return util.NormalizeDate(f.Test) }

// Label formats the fold as its test quarter ("2020Q1").
func (f Fold) Label() string { return util.QuarterLabel(f.Test) }
