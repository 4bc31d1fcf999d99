package repository

import "time"

// Range is a semantic look-back span selector.
type Range string

// Interval is a bucket width selector.
type Interval string

const (
	Range12h Range = "12h"
	Range1d  Range = "1d"
	Range7d  Range = "7d"
	Range14d Range = "14d"
	Range30d Range = "30d"
	RangeMax Range = "max"
)

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

const day = 24 * time.Hour

var rangeSpans = map[Range]time.Duration{
	Range12h: 12 * time.Hour,
	Range1d:  day,
	Range7d:  7 * day,
	Range14d: 14 * day,
	Range30d: 30 * day,
	RangeMax: 3650 * day,
}

var intervalWidths = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  day,
	Interval1w:  7 * day,
}

// Ranges lists the supported range selectors in display order.
func Ranges() []Range {
	return []Range{Range12h, Range1d, Range7d, Range14d, Range30d, RangeMax}
}

// Intervals lists the supported interval selectors in display order.
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d, Interval1w}
}

// IsValidRange returns true if r is a supported range.
func IsValidRange(r Range) bool {
	_, ok := rangeSpans[r]
	return ok
}

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	_, ok := intervalWidths[iv]
	return ok
}

// DefaultRange returns the default range.
func DefaultRange() Range { return Range1d }

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return Interval5m }

// NormalizeRange converts raw string to a valid range (or default).
func NormalizeRange(s string) Range {
	r := Range(s)
	if IsValidRange(r) {
		return r
	}
	return DefaultRange()
}

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// Span returns the look-back duration of r. Unknown ranges use the default.
func (r Range) Span() time.Duration {
	return rangeSpans[NormalizeRange(string(r))]
}

// Width returns the bucket width of iv. Unknown intervals use the default.
func (iv Interval) Width() time.Duration {
	return intervalWidths[NormalizeInterval(string(iv))]
}

// Millis returns the bucket width in milliseconds.
func (iv Interval) Millis() int64 { return iv.Width().Milliseconds() }

// Intraday reports whether iv is finer than a day.
func (iv Interval) Intraday() bool { return iv.Width() < day }
