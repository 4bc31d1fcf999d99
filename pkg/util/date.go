package util

import (
	"strconv"
	"time"
)

// unix values above this are taken as milliseconds
const millisThreshold = 100_000_000_000

// ISOMillis is the layout of JavaScript's Date.toISOString.
const ISOMillis = "2006-01-02T15:04:05.000Z"

// ParseTime tries RFC3339, RFC3339Nano, unix seconds and unix millis.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts >= millisThreshold {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseDateTimeIn parses "2006-01-02" or "2006-01-02 15:04:05" in loc.
func ParseDateTimeIn(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatMillisISO renders unix millis as a UTC ISO-8601 string with millis.
func FormatMillisISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(ISOMillis)
}
