package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RaggedEdgeDataset is the information set of one (fold, checkpoint) pair.
// X is column-major: X[j][i] is column Columns[j] at training row i.
type RaggedEdgeDataset struct {
	Fold       Fold
	Checkpoint Checkpoint
	Target     string
	Columns    []string
	X          [][]float64
	Y          []float64
	TestX      []float64
	TestY      float64
	HasTestY   bool
}

// Rows returns the number of complete-case training rows.
func (d RaggedEdgeDataset) Rows() int { return len(d.Y) }

// ColumnIndex returns the position of a column.
func (d RaggedEdgeDataset) ColumnIndex(name string) (int, bool) {
	for j, c := range d.Columns {
		if c == name {
			return j, true
		}
	}
	return 0, false
}

// Subset returns a dataset restricted to the named columns, in the given order.
func (d RaggedEdgeDataset) Subset(names []string) (RaggedEdgeDataset, error) {
	out := d
	out.Columns = make([]string, 0, len(names))
	out.X = make([][]float64, 0, len(names))
	out.TestX = make([]float64, 0, len(names))
	for _, n := range names {
		j, ok := d.ColumnIndex(n)
		if !ok {
			return RaggedEdgeDataset{}, fmt.Errorf("column %s not in dataset", n)
		}
		out.Columns = append(out.Columns, n)
		out.X = append(out.X, d.X[j])
		out.TestX = append(out.TestX, d.TestX[j])
	}
	return out, nil
}

// TargetLagColumns returns the dataset's lags of the target, ordered by lag.
func (d RaggedEdgeDataset) TargetLagColumns() []string {
	var out []string
	for _, c := range d.Columns {
		ref := ParseColumn(c)
		if ref.Base == d.Target && ref.IsLag() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return ParseColumn(out[a]).Lag < ParseColumn(out[b]).Lag })
	return out
}

// CandidateColumns returns every indicator column, i.e. all columns except the target's lags.
func (d RaggedEdgeDataset) CandidateColumns() []string {
	var out []string
	for _, c := range d.Columns {
		if ParseColumn(c).Base != d.Target {
			out = append(out, c)
		}
	}
	return out
}

// SelectionResult is the outcome of one variable-selection fit.
type SelectionResult struct {
	Columns      []string           `json:"columns"`
	Coefficients map[string]float64 `json:"coefficients"`
	Penalty      float64            `json:"penalty"`
	Dropped      []string           `json:"dropped,omitempty"`
}

// Indicators returns the distinct base indicators of the selected columns, in selection order.
func (r SelectionResult) Indicators() []string {
	seen := make(map[string]bool, len(r.Columns))
	var out []string
	for _, c := range r.Columns {
		b := ParseColumn(c).Base
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

// ModelSpec picks the first TargetLags target lags and the indicator columns at the
// given recency positions (0 = most recent observation).
type ModelSpec struct {
	TargetLags    int   `json:"target_lags"`
	IndicatorLags []int `json:"indicator_lags"`
}

// Contiguous reports whether the indicator lags form a block 0..k without holes.
func (s ModelSpec) Contiguous() bool {
	for i, l := range s.IndicatorLags {
		if l != i {
			return false
		}
	}
	return true
}

// Depth returns the deepest indicator position used, plus one.
func (s ModelSpec) Depth() int {
	d := 0
	for _, l := range s.IndicatorLags {
		if l+1 > d {
			d = l + 1
		}
	}
	return d
}

func (s ModelSpec) String() string {
	parts := make([]string, len(s.IndicatorLags))
	for i, l := range s.IndicatorLags {
		parts[i] = strconv.Itoa(l)
	}
	return fmt.Sprintf("ar%d+x(%s)", s.TargetLags, strings.Join(parts, ","))
}
