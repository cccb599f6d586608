package selection

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/logger"
)

// AdaptiveLasso rescales each standardized predictor by |β_ridge|^γ from a
// first-stage ridge fit, then runs a lasso whose penalty is chosen by the same
// time-ordered cross-validation as ElasticNetCV. Columns with a zero ridge
// weight cannot enter.
type AdaptiveLasso struct {
	p Params
	l *logger.Logger
}

func (s *AdaptiveLasso) Kind() Kind { return KindAdaptiveLasso }

// ridge solves (Z'Z + λI)b = Z'y.
func ridge(Z [][]float64, y []float64, lambda float64) ([]float64, bool) {
	p := len(Z)
	a := mat.NewSymDense(p, nil)
	rhs := mat.NewVecDense(p, nil)
	for j := 0; j < p; j++ {
		for k := j; k < p; k++ {
			dot := 0.0
			for i := range y {
				dot += Z[j][i] * Z[k][i]
			}
			if j == k {
				dot += lambda
			}
			a.SetSym(j, k, dot)
		}
		dot := 0.0
		for i, v := range y {
			dot += Z[j][i] * v
		}
		rhs.SetVec(j, dot)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, false
	}
	var b mat.VecDense
	if err := chol.SolveVecTo(&b, rhs); err != nil {
		return nil, false
	}
	out := make([]float64, p)
	for j := range out {
		out[j] = b.AtVec(j)
	}
	return out, true
}

func (s *AdaptiveLasso) weights(Z [][]float64, y []float64) []float64 {
	beta, ok := ridge(Z, y, s.p.RidgeAlpha)
	w := make([]float64, len(Z))
	if !ok {
		for j := range w {
			w[j] = 1
		}
		return w
	}
	for j, b := range beta {
		w[j] = math.Pow(math.Abs(b), s.p.Gamma)
	}
	return w
}

func weighted(Z [][]float64, w []float64) [][]float64 {
	out := make([][]float64, len(Z))
	for j, col := range Z {
		out[j] = make([]float64, len(col))
		for i, v := range col {
			out[j][i] = v * w[j]
		}
	}
	return out
}

func (s *AdaptiveLasso) path(Z [][]float64, y []float64, alphas []float64) [][]float64 {
	w := s.weights(Z, y)
	coefs := enetPath(weighted(Z, w), y, alphas, 1, s.p.MaxIter, s.p.Tol)
	for _, b := range coefs {
		for j := range b {
			b[j] *= w[j]
		}
	}
	return coefs
}

func (s *AdaptiveLasso) Fit(in Input) (models.SelectionResult, error) {
	in, dropped := clean(in, s.l)
	if len(in.Columns) == 0 {
		return emptySelection(dropped, s.l, s.Kind()), nil
	}

	rows := allRows(len(in.Y))
	Z := fitScaler(in.X, rows).transform(in.X, rows)
	yc, _ := centered(in.Y, rows)
	alphas := alphaGrid(weighted(Z, s.weights(Z, yc)), yc, 1, s.p.NAlphas, s.p.AlphaMinRatio)

	alpha, _, err := crossValidate(in, alphas, s.p.CVSplits, s.path)
	if err != nil {
		return models.SelectionResult{}, wrapKind(s.Kind(), err)
	}
	coef := s.path(Z, yc, []float64{alpha})[0]
	return applyRule(in.Columns, coef, s.p.Rule, s.p.ThresholdDivisor, alpha, dropped), nil
}
