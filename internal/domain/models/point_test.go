package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesNullBoundary(t *testing.T) {
	b, err := json.Marshal(Values{1.5, math.NaN(), math.Inf(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5,null,null]`, string(b))

	var v Values
	require.NoError(t, json.Unmarshal([]byte(`[null,2]`), &v))
	require.Len(t, v, 2)
	assert.True(t, IsNull(v[0]))
	assert.Equal(t, 2.0, v[1])
}

func TestRawPointJSON(t *testing.T) {
	var p RawPoint
	require.NoError(t, json.Unmarshal([]byte(`{"t":1700000000000,"v":null}`), &p))
	assert.Equal(t, int64(1700000000000), p.Timestamp)
	assert.True(t, IsNull(p.Value))

	b, err := json.Marshal(RawPoint{Timestamp: 5, Value: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":5,"v":42}`, string(b))
}

func TestLagResultNullCorrelation(t *testing.T) {
	b, err := json.Marshal(LagResult{AssetA: "A", AssetB: "B", Correlation: math.NaN(), PValue: math.NaN(), Direction: DirectionUndetermined})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"correlation":null`)
	assert.NotContains(t, string(b), "pValue")
}

func TestAssetLabel(t *testing.T) {
	a := Asset{Kind: AssetEquity, Symbol: "SPY", Name: "SPDR S&P 500"}
	assert.Equal(t, "SPY", a.Key())
	assert.Equal(t, "SPY • SPDR S&P 500", a.Label())
}
