package util

import (
	"math"
	"strconv"
	"strings"
)

// ParseFloatOrNaN parses a provider number; empty or malformed input is NaN.
func ParseFloatOrNaN(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
