package folds

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Nowcast/internal/domain/models"
	"Nowcast/pkg/util"
)

func quarters(from time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = util.AddQuarters(from, i)
	}
	return out
}

func TestGenerateExpandingWindow(t *testing.T) {
	idx := quarters(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 12)

	fs, err := Generate(idx, Bounds{BacktestStart: idx[1], EvaluationStart: idx[8]})
	require.NoError(t, err)
	require.Len(t, fs, 4)

	for k, f := range fs {
		assert.Equal(t, idx[8+k], f.Test)
		assert.Equal(t, idx[1], f.Train[0], "window never slides")
		assert.Len(t, f.Train, 7+k, "window grows by one per fold")
		for i := 1; i < len(f.Train); i++ {
			assert.True(t, f.Train[i].After(f.Train[i-1]))
		}
		assert.True(t, f.Train[len(f.Train)-1].Before(f.Test))
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	idx := quarters(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 20)
	b := Bounds{BacktestStart: idx[0], EvaluationStart: idx[10], End: idx[18]}

	a, err := Generate(idx, b)
	require.NoError(t, err)
	c, err := Generate(idx, b)
	require.NoError(t, err)

	ja, _ := json.Marshal(a)
	jc, _ := json.Marshal(c)
	assert.Equal(t, ja, jc)
	assert.Len(t, a, 9)
}

func TestGenerateTimestampTolerance(t *testing.T) {
	idx := quarters(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 6)
	noon := idx[3].Add(12 * time.Hour)

	fs, err := Generate(idx, Bounds{BacktestStart: idx[0], EvaluationStart: noon})
	require.NoError(t, err)
	assert.Len(t, fs, 3)
	assert.Equal(t, idx[3], fs[0].ID())
}

func TestGenerateConfigurationErrors(t *testing.T) {
	idx := quarters(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), 8)
	missing := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := map[string]Bounds{
		"start missing":      {BacktestStart: missing, EvaluationStart: idx[4]},
		"evaluation missing": {BacktestStart: idx[0], EvaluationStart: missing},
		"end missing":        {BacktestStart: idx[0], EvaluationStart: idx[4], End: missing},
		"misordered":         {BacktestStart: idx[5], EvaluationStart: idx[4]},
		"end before eval":    {BacktestStart: idx[0], EvaluationStart: idx[4], End: idx[3]},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Generate(idx, b)
			var cfgErr *models.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}

	_, err := Generate(nil, Bounds{})
	assert.Error(t, err)
}
