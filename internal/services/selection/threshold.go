package selection

import (
	"math"
	"sort"

	"Nowcast/internal/domain/models"
	"Nowcast/internal/services/regression"
	"Nowcast/pkg/logger"
)

// HardThreshold regresses the target on each candidate in turn, controlling for
// the target's own lags, and keeps the top-k candidates by |t| or, without k,
// every candidate whose two-sided p-value is below 1 - SignificanceLevel.
type HardThreshold struct {
	p Params
	l *logger.Logger
}

func (s *HardThreshold) Kind() Kind { return KindHardThreshold }

type candidateScore struct {
	pos    int
	coef   float64
	tstat  float64
	pvalue float64
}

func (s *HardThreshold) Fit(in Input) (models.SelectionResult, error) {
	in, dropped := clean(in, s.l)
	if len(in.Columns) == 0 {
		return emptySelection(dropped, s.l, s.Kind()), nil
	}

	controls := in.Controls
	if len(controls) > s.p.TargetLagControls {
		controls = controls[:s.p.TargetLagControls]
	}
	if len(in.Y) <= len(controls)+2 {
		return models.SelectionResult{}, wrapKind(s.Kind(), ErrInsufficientData)
	}

	rows := allRows(len(in.Y))
	Z := fitScaler(in.X, rows).transform(in.X, rows)

	scores := make([]candidateScore, 0, len(Z))
	for j, z := range Z {
		cols := append(append([][]float64(nil), controls...), z)
		fit, err := regression.Fit(cols, in.Y)
		if err != nil {
			if s.l != nil {
				s.l.Debug("hard threshold regression failed", logger.String("column", in.Columns[j]), logger.Error(err))
			}
			continue
		}
		last := fit.K - 1
		scores = append(scores, candidateScore{
			pos:    j,
			coef:   fit.Params[last],
			tstat:  fit.TStat(last),
			pvalue: fit.PValue(last),
		})
	}

	keep := thresholdSelect(scores, s.p.TopK, s.p.SignificanceLevel)
	res := models.SelectionResult{Coefficients: map[string]float64{}, Dropped: dropped}
	for _, c := range keep {
		res.Columns = append(res.Columns, in.Columns[c.pos])
		res.Coefficients[in.Columns[c.pos]] = c.coef
	}
	return res, nil
}

// thresholdSelect ranks by |t| and applies top-k or the p-value cut. The
// result keeps the caller's column order.
func thresholdSelect(scores []candidateScore, topK int, significance float64) []candidateScore {
	ranked := append([]candidateScore(nil), scores...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].tstat) > math.Abs(ranked[j].tstat)
	})

	var keep []candidateScore
	if topK > 0 {
		if topK > len(ranked) {
			topK = len(ranked)
		}
		keep = ranked[:topK]
	} else {
		for _, c := range ranked {
			if c.pvalue < 1-significance {
				keep = append(keep, c)
			}
		}
	}
	sort.Slice(keep, func(i, j int) bool { return keep[i].pos < keep[j].pos })
	return keep
}
