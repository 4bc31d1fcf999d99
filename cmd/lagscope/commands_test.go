package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LagScope/internal/domain/models"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestGridCommand(t *testing.T) {
	out, err := run(t, "", "grid", "--range", "12h", "--interval", "1h", "--now", "2024-01-01T12:00:00Z")
	require.NoError(t, err)

	var g models.Grid
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Len(t, g.Timestamps, 13)
	assert.Equal(t, "12h", g.Range)
}

func leaderInput(t *testing.T) string {
	t.Helper()
	end := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	step := time.Hour.Milliseconds()
	n := 120
	start := end - int64(n-1)*step
	lead := make([]models.RawPoint, n)
	follow := make([]models.RawPoint, n)
	for i := 0; i < n; i++ {
		ts := start + int64(i)*step
		lead[i] = models.RawPoint{Timestamp: ts, Value: 100 + 10*math.Sin(float64(i)*0.7) + float64(i%3)}
		j := i - 2
		if j < 0 {
			j = 0
		}
		follow[i] = models.RawPoint{Timestamp: ts, Value: 100 + 10*math.Sin(float64(j)*0.7) + float64(j%3)}
	}
	b, err := json.Marshal(analyzeInput{Series: []models.PointSeries{
		{Label: "FOLLOW", Points: follow},
		{Asset: models.Asset{Kind: models.AssetCrypto, ID: "lead", Symbol: "LEAD"}, Points: lead},
	}})
	require.NoError(t, err)
	return string(b)
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := run(t, leaderInput(t), "analyze", "--range", "7d", "--interval", "1h", "--transform", "log")
	require.NoError(t, err)

	var got models.AnalysisRun
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Report.Rows, 1)
	row := got.Report.Rows[0]
	assert.Equal(t, "LEAD", row.AssetA)
	assert.Equal(t, "FOLLOW", row.AssetB)
	assert.Equal(t, 2, row.Lag)
	assert.Equal(t, "1h", got.Report.IntervalLabel)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), got.Dataset.Grid.Timestamps[len(got.Dataset.Grid.Timestamps)-1],
		"offline grid ends at the newest point")
}

func TestAnalyzeCommandCSV(t *testing.T) {
	out, err := run(t, leaderInput(t), "analyze", "--range", "7d", "--interval", "1h", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Währung A (führt);Währung B")
	assert.Contains(t, out, "LEAD;FOLLOW;")
}

func TestAnalyzeCommandErrors(t *testing.T) {
	_, err := run(t, "{not json", "analyze")
	assert.Error(t, err)

	_, err = run(t, leaderInput(t), "analyze", "--format", "pdf")
	assert.Error(t, err)

	_, err = run(t, leaderInput(t), "analyze", "--align", "cubic")
	assert.Error(t, err)
}

func TestAnalyzeCommandOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadlag.xlsx")
	out, err := run(t, leaderInput(t), "analyze", "--range", "7d", "--interval", "1h", "--format", "xlsx", "--output", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")), "xlsx is a zip archive")

	_, err = run(t, leaderInput(t), "analyze", "--output", filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.ErrorContains(t, err, "create output")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteRunPropagatesWriteErrors(t *testing.T) {
	for _, format := range []string{"json", "csv", "xlsx"} {
		err := writeRun(failingWriter{}, format, models.AnalysisRun{})
		assert.Error(t, err, format)
	}
}
