package models

import (
	"sort"
	"time"
)

// ResultPoint is one pooled nowcast.
type ResultPoint struct {
	Date         time.Time          `json:"date"`
	Actual       float64            `json:"actual"`
	HasActual    bool               `json:"has_actual"`
	Predicted    float64            `json:"predicted"`
	Benchmark    float64            `json:"benchmark_predicted"`
	HasBenchmark bool               `json:"has_benchmark"`
	SquaredError float64            `json:"squared_error"`
	Weights      map[string]float64 `json:"weights,omitempty"`
}

// Results is keyed pooling strategy → selection branch → criterion → checkpoint.
type Results map[PoolStrategy]map[string]map[Criterion]map[Checkpoint][]ResultPoint

// Add appends a point to its series.
func (r Results) Add(pool PoolStrategy, branch string, crit Criterion, cp Checkpoint, p ResultPoint) {
	if r[pool] == nil {
		r[pool] = make(map[string]map[Criterion]map[Checkpoint][]ResultPoint)
	}
	if r[pool][branch] == nil {
		r[pool][branch] = make(map[Criterion]map[Checkpoint][]ResultPoint)
	}
	if r[pool][branch][crit] == nil {
		r[pool][branch][crit] = make(map[Checkpoint][]ResultPoint)
	}
	r[pool][branch][crit][cp] = append(r[pool][branch][crit][cp], p)
}

// Series returns the time-ordered points of one series.
func (r Results) Series(pool PoolStrategy, branch string, crit Criterion, cp Checkpoint) []ResultPoint {
	return r[pool][branch][crit][cp]
}

// SelectionRow records which base indicators a branch selected for one fold and checkpoint.
type SelectionRow struct {
	Fold       time.Time  `json:"fold"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Branch     string     `json:"branch"`
	Indicators []string   `json:"indicators"`
}

// SelectionMatrix is the per (fold, checkpoint, branch) selected-variables indicator matrix.
type SelectionMatrix struct {
	Rows []SelectionRow `json:"rows"`
}

// Add records one selection.
func (m *SelectionMatrix) Add(row SelectionRow) {
	m.Rows = append(m.Rows, row)
}

// Indicators returns every indicator selected at least once, sorted.
func (m *SelectionMatrix) Indicators() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range m.Rows {
		for _, ind := range r.Indicators {
			if !seen[ind] {
				seen[ind] = true
				out = append(out, ind)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Matrix returns, per row, a 0/1 flag for every indicator of Indicators().
func (m *SelectionMatrix) Matrix() ([]string, [][]int) {
	cols := m.Indicators()
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	out := make([][]int, len(m.Rows))
	for i, r := range m.Rows {
		out[i] = make([]int, len(cols))
		for _, ind := range r.Indicators {
			out[i][pos[ind]] = 1
		}
	}
	return cols, out
}

// PublishedPoint is a flattened result point as shipped to downstream consumers.
type PublishedPoint struct {
	Pool       PoolStrategy `json:"pool"`
	Branch     string       `json:"branch"`
	Criterion  Criterion    `json:"criterion"`
	Checkpoint Checkpoint   `json:"checkpoint"`
	ResultPoint
}

// Flatten returns every point of r in a deterministic order.
func (r Results) Flatten() []PublishedPoint {
	var out []PublishedPoint
	for _, pool := range PoolStrategies {
		branches := make([]string, 0, len(r[pool]))
		for b := range r[pool] {
			branches = append(branches, b)
		}
		sort.Strings(branches)
		for _, b := range branches {
			for _, crit := range Criteria {
				cps := make([]Checkpoint, 0, len(r[pool][b][crit]))
				for cp := range r[pool][b][crit] {
					cps = append(cps, cp)
				}
				sort.Slice(cps, func(i, j int) bool { return cps[i] < cps[j] })
				for _, cp := range cps {
					for _, p := range r[pool][b][crit][cp] {
						out = append(out, PublishedPoint{Pool: pool, Branch: b, Criterion: crit, Checkpoint: cp, ResultPoint: p})
					}
				}
			}
		}
	}
	return out
}
