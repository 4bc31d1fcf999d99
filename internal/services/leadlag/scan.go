package leadlag

import (
	"fmt"
	"math"

	"LagScope/internal/domain/models"
)

const (
	globalMaxLagCap = 20
	globalMinN      = 5
)

// ScanOptions bounds a lag scan. Zero values select the global policy:
// MaxLag = clamp(T/4, 1, 20), MinN = 5, lag 0 included.
type ScanOptions struct {
	MaxLag      int
	MinN        int
	ExcludeZero bool
}

// LagScan is the best lag found between two series. Found is false when no
// lag had enough paired samples or a finite correlation.
type LagScan struct {
	Lag   int
	R     float64
	N     int
	Found bool
}

// ScanLag correlates a[t] with b[t+lag] for every candidate lag and keeps the
// first maximum of |r|. A positive lag means a leads b.
func ScanLag(a, b []float64, opts ScanOptions) (LagScan, error) {
	if len(a) != len(b) {
		return LagScan{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	T := len(a)
	maxLag := opts.MaxLag
	if maxLag <= 0 {
		maxLag = GlobalMaxLag(T)
	}
	minN := opts.MinN
	if minN <= 0 {
		minN = globalMinN
	}

	best := LagScan{R: math.NaN()}
	var xs, ys []float64
	for lag := -maxLag; lag <= maxLag; lag++ {
		if lag == 0 && opts.ExcludeZero {
			continue
		}
		xs, ys = pairsAt(a, b, 0, T-1, lag, xs[:0], ys[:0])
		if len(xs) < minN {
			continue
		}
		r := pearson(xs, ys)
		if !models.IsFinite(r) {
			continue
		}
		if !best.Found || math.Abs(r) > math.Abs(best.R) {
			best = LagScan{Lag: lag, R: r, N: len(xs), Found: true}
		}
	}
	return best, nil
}

// GlobalMaxLag is clamp(floor(T/4), 1, 20).
func GlobalMaxLag(T int) int {
	l := T / 4
	if l < 1 {
		return 1
	}
	if l > globalMaxLagCap {
		return globalMaxLagCap
	}
	return l
}

// pairsAt appends the finite pairs (a[s], b[s+lag]) for s in [lo, hi].
func pairsAt(a, b []float64, lo, hi, lag int, xs, ys []float64) ([]float64, []float64) {
	if lo < 0 {
		lo = 0
	}
	for s := lo; s <= hi && s < len(a); s++ {
		k := s + lag
		if k < 0 || k >= len(b) {
			continue
		}
		if models.IsFinite(a[s]) && models.IsFinite(b[k]) {
			xs = append(xs, a[s])
			ys = append(ys, b[k])
		}
	}
	return xs, ys
}
