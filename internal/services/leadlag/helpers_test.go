package leadlag

import (
	"math"
	"math/rand"
)

func noise(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// shifted returns b with b[t] = a[t-k]; the first k entries are NaN.
func shifted(a []float64, k int) []float64 {
	out := make([]float64, len(a))
	for t := range out {
		if t-k < 0 {
			out[t] = math.NaN()
			continue
		}
		out[t] = a[t-k]
	}
	return out
}

// pricesFrom compounds log returns into a price path starting at 100.
func pricesFrom(returns []float64) []float64 {
	out := make([]float64, len(returns)+1)
	out[0] = 100
	for i, r := range returns {
		out[i+1] = out[i] * math.Exp(r*0.01)
	}
	return out
}
