package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrSingular reports a rank-deficient or ill-conditioned design matrix.
	ErrSingular = errors.New("regression: singular design matrix")
	// ErrTooFewRows reports a regression with no residual degrees of freedom.
	ErrTooFewRows = errors.New("regression: not enough observations")
)

// maxCond bounds the condition number of an acceptable design matrix.
const maxCond = 1e12

// minRSS floors the residual sum of squares so that log-likelihood based
// criteria stay finite on exact fits.
const minRSS = 1e-300

// OLS is an ordinary least squares fit with an intercept.
type OLS struct {
	Params []float64 // intercept first, then one per regressor
	StdErr []float64
	RSS    float64
	TSS    float64
	N      int
	K      int // number of parameters, intercept included

	covUnscaled *mat.SymDense // (X'X)^-1
}

// Fit regresses y on the given columns plus an intercept. cols is column-major.
func Fit(cols [][]float64, y []float64) (*OLS, error) {
	n := len(y)
	k := len(cols) + 1
	if n <= k {
		return nil, fmt.Errorf("%w: %d rows for %d parameters", ErrTooFewRows, n, k)
	}

	x := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j, col := range cols {
		if len(col) != n {
			return nil, fmt.Errorf("regression: column %d has %d rows, want %d", j, len(col), n)
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("regression: column %d row %d is not finite", j, i)
			}
			x.Set(i, j+1, v)
		}
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(x)
	if c := qr.Cond(); math.IsInf(c, 0) || math.IsNaN(c) || c > maxCond {
		return nil, ErrSingular
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrSingular
	}
	cov := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)

	mean := stat.Mean(y, nil)

	r := &OLS{
		Params:      make([]float64, k),
		StdErr:      make([]float64, k),
		N:           n,
		K:           k,
		covUnscaled: cov,
	}
	for i := 0; i < n; i++ {
		e := y[i] - fitted.AtVec(i)
		r.RSS += e * e
		d := y[i] - mean
		r.TSS += d * d
	}
	s2 := r.Sigma2()
	for j := 0; j < k; j++ {
		r.Params[j] = beta.AtVec(j)
		r.StdErr[j] = math.Sqrt(s2 * cov.At(j, j))
	}
	return r, nil
}

// DoF returns the residual degrees of freedom.
func (r *OLS) DoF() int { return r.N - r.K }

// Sigma2 is the unbiased residual variance.
func (r *OLS) Sigma2() float64 { return r.RSS / float64(r.DoF()) }

// TStat returns the t statistic of parameter j (0 = intercept).
func (r *OLS) TStat(j int) float64 {
	if r.StdErr[j] == 0 {
		return math.Inf(1)
	}
	return r.Params[j] / r.StdErr[j]
}

// PValue returns the two-sided p-value of parameter j.
func (r *OLS) PValue(j int) float64 {
	t := math.Abs(r.TStat(j))
	if math.IsInf(t, 1) {
		return 0
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(r.DoF())}
	return 2 * dist.Survival(t)
}

// R2 is the coefficient of determination.
func (r *OLS) R2() float64 {
	if r.TSS == 0 {
		return 0
	}
	return 1 - r.RSS/r.TSS
}

// AdjR2 is R² adjusted for the number of parameters.
func (r *OLS) AdjR2() float64 {
	return 1 - (1-r.R2())*float64(r.N-1)/float64(r.DoF())
}

func (r *OLS) logRSS() float64 {
	return math.Log(math.Max(r.RSS, minRSS) / float64(r.N))
}

// AIC = n·ln(RSS/n) + 2k.
func (r *OLS) AIC() float64 {
	return float64(r.N)*r.logRSS() + 2*float64(r.K)
}

// BIC = n·ln(RSS/n) + k·ln(n).
func (r *OLS) BIC() float64 {
	return float64(r.N)*r.logRSS() + float64(r.K)*math.Log(float64(r.N))
}

// Predict returns the point forecast for one row of regressors (intercept excluded)
// and its (1-alpha) prediction interval.
func (r *OLS) Predict(x []float64, alpha float64) (point, lower, upper float64, err error) {
	if len(x) != r.K-1 {
		return 0, 0, 0, fmt.Errorf("regression: predict with %d regressors, want %d", len(x), r.K-1)
	}
	row := make([]float64, r.K)
	row[0] = 1
	copy(row[1:], x)

	for j, v := range row {
		point += r.Params[j] * v
	}

	xv := mat.NewVecDense(r.K, row)
	q := mat.Inner(xv, r.covUnscaled, xv)
	se := math.Sqrt(r.Sigma2() * (1 + q))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(r.DoF())}
	half := dist.Quantile(1-alpha/2) * se
	return point, point - half, point + half, nil
}
