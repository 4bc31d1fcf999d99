package leadlag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LagScope/internal/domain/models"
)

// leaderFollower returns price series where "LEAD" moves k buckets before
// "FOLLOW" and "NOISE" is unrelated.
func leaderFollower(T, k int) []models.AlignedSeries {
	r := noise(21, T+k)
	lead := pricesFrom(r[k:])
	follow := pricesFrom(r[:T])
	other := pricesFrom(noise(99, T))
	return []models.AlignedSeries{
		{Label: "FOLLOW", Values: follow},
		{Label: "LEAD", Values: lead},
		{Label: "NOISE", Values: other},
	}
}

func TestAnalyze_FewerThanTwoSeries(t *testing.T) {
	for _, in := range [][]models.AlignedSeries{nil, {{Label: "X", Values: models.Values{1, 2}}}} {
		rep, err := Analyze(in, Config{IntervalLabel: "5m"})
		require.NoError(t, err)
		assert.NotNil(t, rep.Rows)
		assert.Empty(t, rep.Rows)
		assert.Equal(t, "5m", rep.IntervalLabel)
	}
}

func TestAnalyze_GlobalLabelsLeader(t *testing.T) {
	series := leaderFollower(80, 3)
	rep, err := Analyze(series, Config{Transform: TransformLog, Mode: ModeGlobal})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 3)
	require.Len(t, rep.Processed, 3)

	top := rep.Rows[0]
	assert.Equal(t, "LEAD", top.AssetA)
	assert.Equal(t, "FOLLOW", top.AssetB)
	assert.Equal(t, 3, top.Lag)
	assert.Equal(t, models.DirectionLeads, top.Direction)
	assert.InDelta(t, 1.0, top.Correlation, 1e-6)
	assert.Equal(t, 100.0, top.ConfidencePct)

	for i := 1; i < len(rep.Rows); i++ {
		assert.GreaterOrEqual(t, rep.Rows[i-1].ConfidencePct, rep.Rows[i].ConfidencePct)
	}
	for _, row := range rep.Rows {
		assert.GreaterOrEqual(t, row.Lag, 0)
	}
}

func TestAnalyze_WindowedLabelsLeader(t *testing.T) {
	series := leaderFollower(200, 2)
	rep, err := Analyze(series[:2], Config{Transform: TransformLog, Mode: ModeWindowed, Workers: 1})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	row := rep.Rows[0]
	assert.Equal(t, "LEAD", row.AssetA)
	assert.Equal(t, 2, row.Lag)
	assert.Greater(t, row.ConfidencePct, 50.0)
	assert.Equal(t, "windowed", rep.Mode)
}

func TestAnalyze_DeterministicAcrossWorkers(t *testing.T) {
	series := leaderFollower(120, 4)
	series = append(series, models.AlignedSeries{Label: "NOISE2", Values: pricesFrom(noise(5, 120))})

	one, err := Analyze(series, Config{Workers: 1, Residualize: true})
	require.NoError(t, err)
	many, err := Analyze(series, Config{Workers: 8, Residualize: true})
	require.NoError(t, err)
	require.Len(t, one.Rows, 6)
	for i := range one.Rows {
		assert.Equal(t, one.Rows[i].AssetA, many.Rows[i].AssetA)
		assert.Equal(t, one.Rows[i].AssetB, many.Rows[i].AssetB)
		assert.Equal(t, one.Rows[i].Lag, many.Rows[i].Lag)
	}
	assert.True(t, one.Residualized)
	assert.Equal(t, "pct_prev", one.Transform)
}

func TestAnalyze_UndeterminedPair(t *testing.T) {
	nulls := models.NullValues(30)
	rep, err := Analyze([]models.AlignedSeries{
		{Label: "A", Values: nulls},
		{Label: "B", Values: pricesFrom(noise(1, 29))},
	}, Config{})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 1)
	assert.Equal(t, models.DirectionUndetermined, rep.Rows[0].Direction)
	assert.Equal(t, 0.0, rep.Rows[0].ConfidencePct)
	assert.True(t, models.IsNull(rep.Rows[0].Correlation))
}

func TestAnalyze_Errors(t *testing.T) {
	in := []models.AlignedSeries{{Label: "A", Values: models.Values{1, 2}}, {Label: "B", Values: models.Values{1}}}
	_, err := Analyze(in, Config{})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Analyze(nil, Config{Mode: "bayes"})
	assert.ErrorIs(t, err, ErrUnknownMode)

	_, err = Analyze(nil, Config{Transform: "diff"})
	assert.ErrorIs(t, err, ErrUnknownTransform)
}

func TestSortRows_TieBreaks(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		mode Mode
		rows []models.LagResult
		want []string
	}{
		{
			name: "global confidence then abs r",
			mode: ModeGlobal,
			rows: []models.LagResult{
				{AssetA: "low", ConfidencePct: 60, Correlation: 0.9},
				{AssetA: "weak", ConfidencePct: 95, Correlation: 0.3, Lag: 1},
				{AssetA: "strong-neg", ConfidencePct: 95, Correlation: -0.8, Lag: 4},
				{AssetA: "nan", ConfidencePct: 95, Correlation: nan},
				{AssetA: "mid", ConfidencePct: 95, Correlation: 0.5, Lag: 2},
			},
			want: []string{"strong-neg", "mid", "weak", "nan", "low"},
		},
		{
			name: "windowed confidence then lag",
			mode: ModeWindowed,
			rows: []models.LagResult{
				{AssetA: "lag5", ConfidencePct: 70, Lag: 5, Correlation: 0.99},
				{AssetA: "lag1", ConfidencePct: 70, Lag: 1, Correlation: 0.1},
				{AssetA: "top", ConfidencePct: 80, Lag: 9},
				{AssetA: "lag3", ConfidencePct: 70, Lag: 3, Correlation: 0.5},
			},
			want: []string{"top", "lag1", "lag3", "lag5"},
		},
		{
			name: "full ties keep input order",
			mode: ModeGlobal,
			rows: []models.LagResult{
				{AssetA: "first", ConfidencePct: 50, Correlation: 0.4},
				{AssetA: "second", ConfidencePct: 50, Correlation: -0.4},
			},
			want: []string{"first", "second"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sortRows(tt.rows, tt.mode)
			got := make([]string, len(tt.rows))
			for i, r := range tt.rows {
				got[i] = r.AssetA
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
