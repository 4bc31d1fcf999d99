package resample

import (
	"errors"
	"fmt"
	"sort"

	"LagScope/internal/domain/models"
)

// AlignPolicy selects how raw points are resolved onto grid buckets.
type AlignPolicy string

const (
	// AlignNearest snaps each bucket to the closest raw point.
	AlignNearest AlignPolicy = "nearest"
	// AlignLinear interpolates between neighbours and carries the last point
	// forward for at most one interval.
	AlignLinear AlignPolicy = "linear"
)

var ErrUnknownPolicy = errors.New("resample: unknown align policy")

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() AlignPolicy { return AlignLinear }

// Policies lists the supported policies.
func Policies() []AlignPolicy { return []AlignPolicy{AlignNearest, AlignLinear} }

// ParsePolicy maps "" to the default and rejects unknown names.
func ParsePolicy(s string) (AlignPolicy, error) {
	switch AlignPolicy(s) {
	case "":
		return DefaultPolicy(), nil
	case AlignNearest, AlignLinear:
		return AlignPolicy(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Align resolves every series onto grid. Output series always have one value
// per bucket; buckets without a reliable price are null.
func Align(grid models.Grid, series []models.PointSeries, policy AlignPolicy) ([]models.AlignedSeries, error) {
	var resolve func([]models.RawPoint, []int64, int64) models.Values
	switch policy {
	case AlignNearest:
		resolve = alignNearest
	case AlignLinear:
		resolve = alignLinear
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	out := make([]models.AlignedSeries, 0, len(series))
	for _, s := range series {
		label := s.Label
		if label == "" {
			label = s.Asset.Label()
		}
		out = append(out, models.AlignedSeries{
			Label:  label,
			Values: resolve(sortedCopy(s.Points), grid.Timestamps, grid.IntervalMs),
		})
	}
	return out, nil
}

func sortedCopy(points []models.RawPoint) []models.RawPoint {
	cp := make([]models.RawPoint, len(points))
	copy(cp, points)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Timestamp < cp[j].Timestamp })
	return cp
}

func alignNearest(points []models.RawPoint, grid []int64, _ int64) models.Values {
	out := models.NullValues(len(grid))
	if len(points) == 0 {
		return out
	}
	for i, t := range grid {
		best := 0
		bestDist := absDiff(points[0].Timestamp, t)
		for k := 1; k < len(points); k++ {
			if d := absDiff(points[k].Timestamp, t); d < bestDist {
				best, bestDist = k, d
			}
		}
		out[i] = points[best].Value
	}
	return out
}

func alignLinear(points []models.RawPoint, grid []int64, intervalMs int64) models.Values {
	out := models.NullValues(len(grid))
	if len(points) == 0 {
		return out
	}
	// next is the index of the first point with timestamp > t.
	next := 0
	for i, t := range grid {
		for next < len(points) && points[next].Timestamp <= t {
			next++
		}
		if next == 0 {
			continue
		}
		prev := points[next-1]
		if next < len(points) && points[next].Timestamp > prev.Timestamp {
			nx := points[next]
			frac := float64(t-prev.Timestamp) / float64(nx.Timestamp-prev.Timestamp)
			out[i] = prev.Value + frac*(nx.Value-prev.Value)
			continue
		}
		if t-prev.Timestamp <= intervalMs {
			out[i] = prev.Value
		}
	}
	return out
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
