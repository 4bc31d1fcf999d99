package leadlag

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"LagScope/internal/domain/models"
)

var ErrLengthMismatch = errors.New("leadlag: series lengths differ")

const (
	madToSigma   = 1.4826
	minBetaPairs = 5
)

// Residualize removes a single median market factor from every series.
// Each series is scaled by 1.4826*MAD (sample std as fallback), the factor is
// the per-bucket median across scaled series, and the residual is
// scaled - beta*factor with beta the OLS slope on the factor.
func Residualize(series [][]float64) ([]models.Values, error) {
	if len(series) == 0 {
		return nil, nil
	}
	T := len(series[0])
	for i, s := range series {
		if len(s) != T {
			return nil, fmt.Errorf("%w: series %d has %d values, want %d", ErrLengthMismatch, i, len(s), T)
		}
	}

	normalized := make([]models.Values, len(series))
	for i, s := range series {
		scale := robustScale(s)
		n := make(models.Values, T)
		for t, v := range s {
			n[t] = v / scale
		}
		normalized[i] = n
	}

	factor := marketFactor(normalized, T)

	out := make([]models.Values, len(series))
	for i, n := range normalized {
		beta := factorBeta(n, factor)
		r := make(models.Values, T)
		for t, v := range n {
			if models.IsFinite(v) && models.IsFinite(factor[t]) {
				r[t] = v - beta*factor[t]
			} else {
				r[t] = v
			}
		}
		out[i] = r
	}
	return out, nil
}

func robustScale(s []float64) float64 {
	vals := finiteValues(s)
	scale := madToSigma * mad(vals)
	if !models.IsFinite(scale) || scale == 0 {
		scale = sampleStd(vals)
	}
	if !models.IsFinite(scale) || scale == 0 {
		return 1
	}
	return scale
}

func marketFactor(normalized []models.Values, T int) models.Values {
	factor := models.NullValues(T)
	buf := make([]float64, 0, len(normalized))
	for t := 0; t < T; t++ {
		buf = buf[:0]
		for _, n := range normalized {
			if models.IsFinite(n[t]) {
				buf = append(buf, n[t])
			}
		}
		if len(buf) > 0 {
			factor[t] = median(buf)
		}
	}
	return factor
}

func factorBeta(n, factor models.Values) float64 {
	xs := make([]float64, 0, len(n))
	ys := make([]float64, 0, len(n))
	for t := range n {
		if models.IsFinite(n[t]) && models.IsFinite(factor[t]) {
			xs = append(xs, factor[t])
			ys = append(ys, n[t])
		}
	}
	if len(xs) < minBetaPairs {
		return 0
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}
