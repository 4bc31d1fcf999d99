package leadlag

import (
	"math"

	"LagScope/internal/domain/models"
)

// FisherPValue is the two-sided p-value of a Pearson r over n pairs via the
// Fisher z-transform. Non-finite r or n < 5 give p = 1.
func FisherPValue(r float64, n int) float64 {
	if !models.IsFinite(r) || n < globalMinN {
		return 1
	}
	z := math.Atanh(r) * math.Sqrt(math.Max(1, float64(n-3)))
	p := 2 * (1 - normalCDF(math.Abs(z)))
	return clamp(p, 0, 1)
}

// ConfidencePct maps a p-value to a percentage with one decimal, in [0, 100].
func ConfidencePct(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return clamp(math.Round((1-p)*1000)/10, 0, 100)
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + erf(z/math.Sqrt2))
}

// erf is Abramowitz & Stegun 7.1.26 (|error| <= 1.5e-7).
func erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	if math.IsInf(x, 1) {
		return sign
	}
	t := 1 / (1 + p*x)
	y := 1 - ((((a5*t+a4)*t+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}
