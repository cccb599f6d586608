package usecase

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"Nowcast/internal/domain/models"
)

// SummaryRow is the accuracy of one pooled series.
type SummaryRow struct {
	Pool       models.PoolStrategy
	Branch     string
	Criterion  models.Criterion
	Checkpoint models.Checkpoint
	N          int
	RMSE       float64
	// BenchmarkRMSE and Relative use only points that carry a benchmark.
	BenchmarkRMSE float64
	Relative      float64
}

// Summary computes RMSE and RMSE relative to the benchmark for every series
// with at least one actual value.
func (rep *Report) Summary() []SummaryRow {
	var out []SummaryRow
	for pool, branches := range rep.Results {
		for branch, crits := range branches {
			for crit, cps := range crits {
				for cp, pts := range cps {
					row := SummaryRow{Pool: pool, Branch: branch, Criterion: crit, Checkpoint: cp}
					var se, seModel, seBench float64
					nb := 0
					for _, p := range pts {
						if !p.HasActual {
							continue
						}
						row.N++
						se += p.SquaredError
						if p.HasBenchmark {
							d := p.Actual - p.Benchmark
							seBench += d * d
							seModel += p.SquaredError
							nb++
						}
					}
					if row.N == 0 {
						continue
					}
					row.RMSE = math.Sqrt(se / float64(row.N))
					row.BenchmarkRMSE, row.Relative = math.NaN(), math.NaN()
					if nb > 0 {
						row.BenchmarkRMSE = math.Sqrt(seBench / float64(nb))
						if row.BenchmarkRMSE > 0 {
							row.Relative = math.Sqrt(seModel/float64(nb)) / row.BenchmarkRMSE
						}
					}
					out = append(out, row)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pool != b.Pool {
			return a.Pool < b.Pool
		}
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if a.Criterion != b.Criterion {
			return a.Criterion < b.Criterion
		}
		return a.Checkpoint < b.Checkpoint
	})
	return out
}

// WriteSummary prints the summary as an aligned table.
func WriteSummary(w io.Writer, rows []SummaryRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tBRANCH\tCRITERION\tCHECKPOINT\tN\tRMSE\tBENCH_RMSE\tRELATIVE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.4f\t%.4f\t%.3f\n",
			r.Pool, r.Branch, r.Criterion, r.Checkpoint, r.N, r.RMSE, r.BenchmarkRMSE, r.Relative)
	}
	return tw.Flush()
}
