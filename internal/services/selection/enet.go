package selection

import (
	"math"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/logger"
)

// pathFn fits a penalty path on standardized predictors and centered target and
// returns one coefficient vector (standardized scale) per alpha.
type pathFn func(Z [][]float64, y []float64, alphas []float64) [][]float64

// softThreshold is S(z, g) = sign(z)·max(|z|-g, 0).
func softThreshold(z, g float64) float64 {
	switch {
	case z > g:
		return z - g
	case z < -g:
		return z + g
	default:
		return 0
	}
}

// coordinateDescent minimizes 1/(2n)·||y-Zb||² + α·ρ·||b||₁ + α·(1-ρ)/2·||b||²
// in place, starting from b.
func coordinateDescent(Z [][]float64, y []float64, b []float64, alpha, l1 float64, maxIter int, tol float64) {
	n := float64(len(y))
	r := append([]float64(nil), y...)
	for j, col := range Z {
		if b[j] == 0 {
			continue
		}
		for i, v := range col {
			r[i] -= v * b[j]
		}
	}
	norm := make([]float64, len(Z))
	for j, col := range Z {
		for _, v := range col {
			norm[j] += v * v
		}
		norm[j] /= n
	}

	for iter := 0; iter < maxIter; iter++ {
		maxDelta, maxB := 0.0, 0.0
		for j, col := range Z {
			if norm[j] == 0 {
				b[j] = 0
				continue
			}
			old := b[j]
			rho := 0.0
			for i, v := range col {
				rho += v * r[i]
			}
			rho = rho/n + norm[j]*old
			nb := softThreshold(rho, alpha*l1) / (norm[j] + alpha*(1-l1))
			if d := nb - old; d != 0 {
				for i, v := range col {
					r[i] -= v * d
				}
				maxDelta = math.Max(maxDelta, math.Abs(d))
			}
			b[j] = nb
			maxB = math.Max(maxB, math.Abs(nb))
		}
		if maxDelta <= tol*math.Max(maxB, 1) {
			return
		}
	}
}

// enetPath fits alphas in the given (decreasing) order with warm starts.
func enetPath(Z [][]float64, y []float64, alphas []float64, l1 float64, maxIter int, tol float64) [][]float64 {
	out := make([][]float64, len(alphas))
	b := make([]float64, len(Z))
	for k, a := range alphas {
		coordinateDescent(Z, y, b, a, l1, maxIter, tol)
		out[k] = append([]float64(nil), b...)
	}
	return out
}

// alphaGrid returns n log-spaced penalties from the smallest alpha that zeroes
// every coefficient down to ratio times that value.
func alphaGrid(Z [][]float64, y []float64, l1 float64, n int, ratio float64) []float64 {
	rows := float64(len(y))
	maxAbs := 0.0
	for _, col := range Z {
		dot := 0.0
		for i, v := range col {
			dot += v * y[i]
		}
		maxAbs = math.Max(maxAbs, math.Abs(dot))
	}
	amax := maxAbs / (rows * math.Max(l1, 1e-3))
	if amax == 0 {
		amax = 1
	}
	if n < 2 {
		return []float64{amax}
	}
	out := make([]float64, n)
	step := math.Log(ratio) / float64(n-1)
	for k := range out {
		out[k] = amax * math.Exp(step*float64(k))
	}
	return out
}

// crossValidate returns the alpha with the lowest mean out-of-sample squared
// error over time-ordered expanding splits. Scaling is refit on each training part.
func crossValidate(in Input, alphas []float64, splits int, fit pathFn) (float64, []float64, error) {
	folds, err := TimeSeriesSplit(len(in.Y), splits)
	if err != nil {
		return 0, nil, err
	}
	mse := make([]float64, len(alphas))
	for _, f := range folds {
		sc := fitScaler(in.X, f.Train)
		yc, ym := centered(in.Y, f.Train)
		coefs := fit(sc.transform(in.X, f.Train), yc, alphas)
		Ztest := sc.transform(in.X, f.Test)
		for k, b := range coefs {
			for t, i := range f.Test {
				pred := ym
				for j := range b {
					pred += b[j] * Ztest[j][t]
				}
				d := in.Y[i] - pred
				mse[k] += d * d / float64(len(f.Test)*len(folds))
			}
		}
	}
	best := 0
	for k := range mse {
		if mse[k] < mse[best] {
			best = k
		}
	}
	return alphas[best], mse, nil
}

// ElasticNetCV picks the penalty by time-ordered cross-validation.
type ElasticNetCV struct {
	p Params
	l *logger.Logger
}

func (s *ElasticNetCV) Kind() Kind { return KindElasticNetCV }

func (s *ElasticNetCV) Fit(in Input) (models.SelectionResult, error) {
	in, dropped := clean(in, s.l)
	if len(in.Columns) == 0 {
		return emptySelection(dropped, s.l, s.Kind()), nil
	}
	path := func(Z [][]float64, y []float64, alphas []float64) [][]float64 {
		return enetPath(Z, y, alphas, s.p.L1Ratio, s.p.MaxIter, s.p.Tol)
	}

	rows := allRows(len(in.Y))
	Z := fitScaler(in.X, rows).transform(in.X, rows)
	yc, _ := centered(in.Y, rows)
	alphas := alphaGrid(Z, yc, s.p.L1Ratio, s.p.NAlphas, s.p.AlphaMinRatio)

	alpha, _, err := crossValidate(in, alphas, s.p.CVSplits, path)
	if err != nil {
		return models.SelectionResult{}, wrapKind(s.Kind(), err)
	}
	coef := path(Z, yc, []float64{alpha})[0]
	return applyRule(in.Columns, coef, s.p.Rule, s.p.ThresholdDivisor, alpha, dropped), nil
}

// ElasticNetFixed fits a single, supplied penalty.
type ElasticNetFixed struct {
	p Params
	l *logger.Logger
}

func (s *ElasticNetFixed) Kind() Kind { return KindElasticNetFixed }

func (s *ElasticNetFixed) Fit(in Input) (models.SelectionResult, error) {
	in, dropped := clean(in, s.l)
	if len(in.Columns) == 0 {
		return emptySelection(dropped, s.l, s.Kind()), nil
	}
	if len(in.Y) < 2 {
		return models.SelectionResult{}, wrapKind(s.Kind(), ErrInsufficientData)
	}
	rows := allRows(len(in.Y))
	Z := fitScaler(in.X, rows).transform(in.X, rows)
	yc, _ := centered(in.Y, rows)
	coef := enetPath(Z, yc, []float64{s.p.Alpha}, s.p.L1Ratio, s.p.MaxIter, s.p.Tol)[0]
	return applyRule(in.Columns, coef, s.p.Rule, s.p.ThresholdDivisor, s.p.Alpha, dropped), nil
}
