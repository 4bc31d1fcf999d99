package leadlag

import (
	"errors"
	"fmt"
	"math"

	"LagScope/internal/domain/models"
)

// Transform selects how prices become returns.
type Transform string

const (
	// TransformLog is ln(p[i]/p[i-1]).
	TransformLog Transform = "log"
	// TransformPctBase is the bucket change relative to the first price, in percent.
	TransformPctBase Transform = "pct_base"
	// TransformPctPrev is the bucket change relative to the previous price, in percent.
	TransformPctPrev Transform = "pct_prev"
)

var ErrUnknownTransform = errors.New("leadlag: unknown transform")

func DefaultTransform() Transform { return TransformPctPrev }

func Transforms() []Transform { return []Transform{TransformLog, TransformPctBase, TransformPctPrev} }

// ParseTransform maps "" to the default and rejects unknown names.
func ParseTransform(s string) (Transform, error) {
	switch Transform(s) {
	case "":
		return DefaultTransform(), nil
	case TransformLog, TransformPctBase, TransformPctPrev:
		return Transform(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransform, s)
	}
}

// Apply runs the transform over prices. The output has the same length and
// nulls propagate strictly.
func (tr Transform) Apply(prices []float64) (models.Values, error) {
	switch tr {
	case TransformLog:
		return LogReturns(prices), nil
	case TransformPctBase:
		return PctFromBase(prices), nil
	case TransformPctPrev:
		return PctFromPrev(prices), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, tr)
	}
}

// LogReturns: r[0] is null; r[i] needs both prices finite and strictly positive.
func LogReturns(prices []float64) models.Values {
	out := models.NullValues(len(prices))
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if models.IsFinite(prev) && models.IsFinite(cur) && prev > 0 && cur > 0 {
			out[i] = math.Log(cur / prev)
		}
	}
	return out
}

// PctFromBase divides every bucket change by the first defined price.
func PctFromBase(prices []float64) models.Values {
	out := models.NullValues(len(prices))
	first := firstFinite(prices)
	if first < 0 || prices[first] == 0 {
		return out
	}
	base := prices[first]
	out[first] = 0
	for i := first + 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if models.IsFinite(prev) && models.IsFinite(cur) {
			out[i] = (cur - prev) / base * 100
		}
	}
	return out
}

// PctFromPrev is the simple percent change between consecutive buckets.
func PctFromPrev(prices []float64) models.Values {
	out := models.NullValues(len(prices))
	first := firstFinite(prices)
	if first < 0 {
		return out
	}
	out[first] = 0
	for i := first + 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if models.IsFinite(prev) && prev != 0 && models.IsFinite(cur) {
			out[i] = (cur - prev) / prev * 100
		}
	}
	return out
}

func firstFinite(xs []float64) int {
	for i, x := range xs {
		if models.IsFinite(x) {
			return i
		}
	}
	return -1
}
