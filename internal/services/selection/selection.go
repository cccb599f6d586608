package selection

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/logger"
)

// Kind tags a selection strategy.
type Kind string

const (
	KindElasticNetCV    Kind = "elastic_net_cv"
	KindElasticNetFixed Kind = "elastic_net_fixed"
	KindAdaptiveLasso   Kind = "adaptive_lasso"
	KindHardThreshold   Kind = "hard_threshold"
)

// Rule decides which penalized coefficients count as selected.
type Rule string

const (
	RuleNonZero       Rule = "nonzero"
	RuleSoftThreshold Rule = "soft_threshold"
)

// ErrInsufficientData reports a training set too short for the strategy.
var ErrInsufficientData = errors.New("selection: not enough rows")

// Params holds the knobs of every kind; each strategy reads the ones it needs.
type Params struct {
	Alpha             float64 // fixed penalty, elastic_net_fixed only
	L1Ratio           float64
	NAlphas           int
	AlphaMinRatio     float64
	CVSplits          int
	MaxIter           int
	Tol               float64
	Rule              Rule
	ThresholdDivisor  float64
	Gamma             float64
	RidgeAlpha        float64
	TopK              int // 0 = use SignificanceLevel
	SignificanceLevel float64
	TargetLagControls int
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{
		L1Ratio:           0.5,
		NAlphas:           50,
		AlphaMinRatio:     1e-3,
		CVSplits:          5,
		MaxIter:           1000,
		Tol:               1e-4,
		Rule:              RuleNonZero,
		ThresholdDivisor:  10,
		Gamma:             1,
		RidgeAlpha:        1,
		SignificanceLevel: 0.95,
		TargetLagControls: 1,
	}
}

// Input is a training set for selection. X holds the candidate columns,
// Controls the target's own lag history.
type Input struct {
	Columns  []string
	X        [][]float64
	Y        []float64
	Controls [][]float64
}

// NewInput splits a dataset into indicator candidates and target-lag controls.
func NewInput(ds models.RaggedEdgeDataset) Input {
	in := Input{Y: ds.Y}
	for _, c := range ds.CandidateColumns() {
		j, _ := ds.ColumnIndex(c)
		in.Columns = append(in.Columns, c)
		in.X = append(in.X, ds.X[j])
	}
	for _, c := range ds.TargetLagColumns() {
		j, _ := ds.ColumnIndex(c)
		in.Controls = append(in.Controls, ds.X[j])
	}
	return in
}

// Strategy chooses a subset of candidate columns and their coefficients.
type Strategy interface {
	Kind() Kind
	Fit(in Input) (models.SelectionResult, error)
}

// New dispatches on kind.
func New(kind Kind, p Params, l *logger.Logger) (Strategy, error) {
	switch kind {
	case KindElasticNetCV:
		return &ElasticNetCV{p: p, l: l}, nil
	case KindElasticNetFixed:
		if p.Alpha <= 0 {
			return nil, models.NewConfigurationError("params.alpha", "elastic_net_fixed needs a positive alpha")
		}
		return &ElasticNetFixed{p: p, l: l}, nil
	case KindAdaptiveLasso:
		return &AdaptiveLasso{p: p, l: l}, nil
	case KindHardThreshold:
		return &HardThreshold{p: p, l: l}, nil
	default:
		return nil, models.NewConfigurationError("branches.kind", "unknown selection kind %q", kind)
	}
}

// clean drops constant, all-missing and non-finite columns, logging each removal.
func clean(in Input, l *logger.Logger) (Input, []string) {
	out := Input{Y: in.Y, Controls: in.Controls}
	var dropped []string
	for j, name := range in.Columns {
		kind := columnProblem(in.X[j])
		if kind == "" {
			out.Columns = append(out.Columns, name)
			out.X = append(out.X, in.X[j])
			continue
		}
		dropped = append(dropped, name)
		if l != nil {
			w := models.DataQualityWarning{Kind: kind, Subject: name}
			l.Warn(w.Error(), logger.String("kind", kind), logger.String("column", name))
		}
	}
	return out, dropped
}

func columnProblem(col []float64) string {
	finite := 0
	for _, v := range col {
		if math.IsNaN(v) {
			continue
		}
		if math.IsInf(v, 0) {
			return models.WarnNonFiniteColumn
		}
		finite++
	}
	switch {
	case finite == 0:
		return models.WarnEmptyColumn
	case finite < len(col):
		return models.WarnNonFiniteColumn
	}
	for _, v := range col[1:] {
		if v != col[0] {
			return ""
		}
	}
	return models.WarnConstantColumn
}

func emptySelection(dropped []string, l *logger.Logger, kind Kind) models.SelectionResult {
	if l != nil {
		w := models.DataQualityWarning{Kind: models.WarnEmptySelection, Subject: string(kind), Detail: "no usable columns"}
		l.Warn(w.Error(), logger.String("kind", w.Kind), logger.String("strategy", string(kind)))
	}
	return models.SelectionResult{Coefficients: map[string]float64{}, Dropped: dropped}
}

// applyRule turns a coefficient vector into a result, keeping the caller's column order.
func applyRule(cols []string, coef []float64, rule Rule, divisor, penalty float64, dropped []string) models.SelectionResult {
	res := models.SelectionResult{Coefficients: map[string]float64{}, Penalty: penalty, Dropped: dropped}
	cut := 0.0
	if rule == RuleSoftThreshold {
		maxAbs := 0.0
		for _, b := range coef {
			maxAbs = math.Max(maxAbs, math.Abs(b))
		}
		cut = maxAbs / divisor
	}
	for j, b := range coef {
		if b == 0 || math.Abs(b) < cut {
			continue
		}
		res.Columns = append(res.Columns, cols[j])
		res.Coefficients[cols[j]] = b
	}
	return res
}

// scaler standardizes columns to zero mean and unit population variance.
// Constant columns keep scale 1 so they standardize to zero.
type scaler struct {
	mean []float64
	sd   []float64
}

func fitScaler(X [][]float64, rows []int) scaler {
	s := scaler{mean: make([]float64, len(X)), sd: make([]float64, len(X))}
	v := make([]float64, len(rows))
	for j, col := range X {
		for k, i := range rows {
			v[k] = col[i]
		}
		m, sd := stat.PopMeanStdDev(v, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.mean[j], s.sd[j] = m, sd
	}
	return s
}

func (s scaler) transform(X [][]float64, rows []int) [][]float64 {
	Z := make([][]float64, len(X))
	for j, col := range X {
		Z[j] = make([]float64, len(rows))
		for k, i := range rows {
			Z[j][k] = (col[i] - s.mean[j]) / s.sd[j]
		}
	}
	return Z
}

func centered(y []float64, rows []int) ([]float64, float64) {
	m := 0.0
	for _, i := range rows {
		m += y[i]
	}
	m /= float64(len(rows))
	out := make([]float64, len(rows))
	for k, i := range rows {
		out[k] = y[i] - m
	}
	return out, m
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func wrapKind(kind Kind, err error) error {
	return fmt.Errorf("%s: %w", kind, err)
}
