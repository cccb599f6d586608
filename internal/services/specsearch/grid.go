package specsearch

import "Nowcast/internal/domain/models"

// GridParams bounds the lag-count grid of one indicator frequency.
type GridParams struct {
	MaxTargetLags    int
	MinIndicatorLags int
	MaxIndicatorLags int
	// AllowGaps admits indicator blocks with holes. Off in every shipped grid.
	AllowGaps bool
}

// DefaultMonthlyGrid covers up to two quarters of monthly observations.
var DefaultMonthlyGrid = GridParams{MaxTargetLags: 2, MinIndicatorLags: 1, MaxIndicatorLags: 6}

// DefaultQuarterlyGrid covers up to a year of quarterly observations.
var DefaultQuarterlyGrid = GridParams{MaxTargetLags: 2, MinIndicatorLags: 1, MaxIndicatorLags: 4}

// GenerateGrid enumerates specifications: target lags 0..MaxTargetLags crossed
// with indicator blocks of MinIndicatorLags..MaxIndicatorLags positions. Without
// gaps a block of size k is exactly positions 0..k-1. The order is deterministic.
func GenerateGrid(p GridParams) []models.ModelSpec {
	if p.MinIndicatorLags < 0 {
		p.MinIndicatorLags = 0
	}
	var blocks [][]int
	if p.AllowGaps {
		blocks = subsets(p.MaxIndicatorLags, p.MinIndicatorLags)
	} else {
		for k := p.MinIndicatorLags; k <= p.MaxIndicatorLags; k++ {
			b := make([]int, k)
			for i := range b {
				b[i] = i
			}
			blocks = append(blocks, b)
		}
	}

	out := make([]models.ModelSpec, 0, (p.MaxTargetLags+1)*len(blocks))
	for t := 0; t <= p.MaxTargetLags; t++ {
		for _, b := range blocks {
			out = append(out, models.ModelSpec{TargetLags: t, IndicatorLags: append([]int(nil), b...)})
		}
	}
	return out
}

// subsets returns every increasing subset of 0..n-1 with at least min elements,
// ordered by size and then lexicographically.
func subsets(n, min int) [][]int {
	var out [][]int
	for size := min; size <= n; size++ {
		var rec func(start int, cur []int)
		rec = func(start int, cur []int) {
			if len(cur) == size {
				out = append(out, append([]int(nil), cur...))
				return
			}
			for i := start; i < n; i++ {
				rec(i+1, append(cur, i))
			}
		}
		rec(0, nil)
	}
	return out
}

// BenchmarkGrid is the autoregressive benchmark: 1..maxTargetLags target lags, no indicator.
func BenchmarkGrid(maxTargetLags int) []models.ModelSpec {
	out := make([]models.ModelSpec, 0, maxTargetLags)
	for t := 1; t <= maxTargetLags; t++ {
		out = append(out, models.ModelSpec{TargetLags: t})
	}
	return out
}
