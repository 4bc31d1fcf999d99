// Package resample builds uniform bucket grids and maps irregular provider
// series onto them.
package resample

import (
	"errors"
	"fmt"
	"time"

	"LagScope/internal/domain/models"
	"LagScope/internal/domain/repository"
)

var (
	ErrInvalidInterval = errors.New("resample: interval must be positive")
	ErrTooManyBuckets  = errors.New("resample: too many buckets")
)

// BuildGrid returns every multiple of the interval in [now-span, now].
// Unknown selectors fall back to the defaults (1d / 5m).
func BuildGrid(rangeKey, intervalKey string, now time.Time) (models.Grid, error) {
	r := repository.NormalizeRange(rangeKey)
	iv := repository.NormalizeInterval(intervalKey)
	to := now.UnixMilli()
	g, err := NewGrid(to-r.Span().Milliseconds(), to, iv.Millis())
	if err != nil {
		return models.Grid{}, err
	}
	g.Range = string(r)
	g.Interval = string(iv)
	return g, nil
}

// CountBuckets is len(BuildGrid(...).Timestamps) without allocating the grid.
func CountBuckets(rangeKey, intervalKey string, now time.Time) int64 {
	r := repository.NormalizeRange(rangeKey)
	iv := repository.NormalizeInterval(intervalKey)
	to := now.UnixMilli()
	first, last := bounds(to-r.Span().Milliseconds(), to, iv.Millis())
	return (last-first)/iv.Millis() + 1
}

// NewGrid returns the multiples of intervalMs within [fromMs, toMs]. When the
// window holds no multiple the grid is the single bucket floor(toMs).
// The first bucket is ceil-anchored, unlike a floor-anchored start, so no
// bucket precedes fromMs.
func NewGrid(fromMs, toMs, intervalMs int64) (models.Grid, error) {
	if intervalMs <= 0 {
		return models.Grid{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, intervalMs)
	}
	first, last := bounds(fromMs, toMs, intervalMs)
	n := (last-first)/intervalMs + 1
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = first + int64(i)*intervalMs
	}
	return models.Grid{Timestamps: ts, IntervalMs: intervalMs}, nil
}

func bounds(fromMs, toMs, intervalMs int64) (first, last int64) {
	last = floorDiv(toMs, intervalMs) * intervalMs
	first = ceilDiv(fromMs, intervalMs) * intervalMs
	if first > last {
		first = last
	}
	return first, last
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}
