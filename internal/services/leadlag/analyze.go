// Package leadlag turns aligned price series into pairwise lead/lag verdicts.
package leadlag

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"LagScope/internal/domain/models"
)

// Mode selects the lag estimator.
type Mode string

const (
	// ModeGlobal scans the whole series once and rates the best lag by its
	// Fisher significance.
	ModeGlobal Mode = "global"
	// ModeWindowed votes across sliding windows and rates the winning lag by
	// its win rate.
	ModeWindowed Mode = "windowed"
)

var ErrUnknownMode = errors.New("leadlag: unknown mode")

func DefaultMode() Mode { return ModeGlobal }

func Modes() []Mode { return []Mode{ModeGlobal, ModeWindowed} }

// ParseMode maps "" to the default and rejects unknown names.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return DefaultMode(), nil
	case ModeGlobal, ModeWindowed:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Config selects the analysis pipeline.
type Config struct {
	Transform     Transform
	Residualize   bool
	Mode          Mode
	IntervalLabel string
	// Workers bounds concurrent pair scans; <= 0 means GOMAXPROCS.
	Workers int
}

// Analyze transforms every series, optionally residualizes them and rates
// every unordered pair. Fewer than two series yield an empty report.
func Analyze(series []models.AlignedSeries, cfg Config) (models.AnalysisReport, error) {
	tr, err := ParseTransform(string(cfg.Transform))
	if err != nil {
		return models.AnalysisReport{}, err
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return models.AnalysisReport{}, err
	}
	report := models.AnalysisReport{
		IntervalLabel: cfg.IntervalLabel,
		Mode:          string(mode),
		Transform:     string(tr),
		Residualized:  cfg.Residualize,
		Rows:          []models.LagResult{},
	}
	if len(series) < 2 {
		return report, nil
	}
	T := len(series[0].Values)
	for _, s := range series[1:] {
		if len(s.Values) != T {
			return models.AnalysisReport{}, fmt.Errorf("%w: %q has %d values, want %d", ErrLengthMismatch, s.Label, len(s.Values), T)
		}
	}

	processed := make([][]float64, len(series))
	for i, s := range series {
		v, err := tr.Apply(s.Values)
		if err != nil {
			return models.AnalysisReport{}, err
		}
		processed[i] = v
	}
	if cfg.Residualize {
		resid, err := Residualize(processed)
		if err != nil {
			return models.AnalysisReport{}, fmt.Errorf("residualize: %w", err)
		}
		for i := range resid {
			processed[i] = resid[i]
		}
	}
	report.Processed = make([]models.AlignedSeries, len(series))
	for i, s := range series {
		report.Processed[i] = models.AlignedSeries{Label: s.Label, Values: processed[i]}
	}

	type pair struct{ i, j int }
	pairs := make([]pair, 0, len(series)*(len(series)-1)/2)
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	rows := make([]models.LagResult, len(pairs))
	var g errgroup.Group
	g.SetLimit(workers)
	for k, p := range pairs {
		g.Go(func() error {
			row, err := ratePair(mode, series[p.i].Label, series[p.j].Label, processed[p.i], processed[p.j])
			if err != nil {
				return err
			}
			rows[k] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.AnalysisReport{}, err
	}

	sortRows(rows, mode)
	report.Rows = rows
	return report, nil
}

func ratePair(mode Mode, labelA, labelB string, a, b []float64) (models.LagResult, error) {
	undetermined := models.LagResult{
		AssetA:      labelA,
		AssetB:      labelB,
		Correlation: math.NaN(),
		Direction:   models.DirectionUndetermined,
		PValue:      1,
	}
	switch mode {
	case ModeWindowed:
		v, err := VoteLag(a, b)
		if err != nil {
			return models.LagResult{}, err
		}
		if v.Decided == 0 {
			undetermined.PValue = math.NaN()
			return undetermined, nil
		}
		row := orient(labelA, labelB, v.Lag)
		row.Correlation = v.MeanR
		row.SampleSize = v.Decided
		row.PValue = math.NaN()
		row.ConfidencePct = v.ConfidencePct
		return row, nil
	default:
		s, err := ScanLag(a, b, ScanOptions{})
		if err != nil {
			return models.LagResult{}, err
		}
		if !s.Found {
			return undetermined, nil
		}
		p := FisherPValue(s.R, s.N)
		row := orient(labelA, labelB, s.Lag)
		row.Correlation = s.R
		row.SampleSize = s.N
		row.PValue = p
		row.ConfidencePct = ConfidencePct(p)
		return row, nil
	}
}

// orient puts the leader in AssetA and makes Lag non-negative.
func orient(labelA, labelB string, lag int) models.LagResult {
	switch {
	case lag > 0:
		return models.LagResult{AssetA: labelA, AssetB: labelB, Lag: lag, Direction: models.DirectionLeads}
	case lag < 0:
		return models.LagResult{AssetA: labelB, AssetB: labelA, Lag: -lag, Direction: models.DirectionLeads}
	default:
		return models.LagResult{AssetA: labelA, AssetB: labelB, Direction: models.DirectionSynchronous}
	}
}

func sortRows(rows []models.LagResult, mode Mode) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ConfidencePct != b.ConfidencePct {
			return a.ConfidencePct > b.ConfidencePct
		}
		if mode == ModeWindowed {
			return a.Lag < b.Lag
		}
		return absR(a.Correlation) > absR(b.Correlation)
	})
}

func absR(r float64) float64 {
	if !models.IsFinite(r) {
		return -1
	}
	return math.Abs(r)
}
