package window

import (
	"fmt"
	"time"
)

const (
	// BucketLayout is the offset-naive form stored in timestamp-without-timezone columns.
	BucketLayout = "2006-01-02 15:04:05"
	// DayLayout is the date-only form passed to the daily aggregation.
	DayLayout = "2006-01-02"
)

// PreviousHour returns the start of the last fully completed hour in UTC.
func PreviousHour(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(-time.Hour)
}

// FormatBucket serializes a bucket start as YYYY-MM-DD HH:MM:SS in UTC, without offset.
func FormatBucket(t time.Time) string {
	return t.UTC().Format(BucketLayout)
}

// ParseBucket parses a serialized bucket start as UTC.
// The value must sit on an hour boundary.
func ParseBucket(s string) (time.Time, error) {
	t, err := time.ParseInLocation(BucketLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid bucket %q: expected %s", s, "YYYY-MM-DD HH:00:00")
	}
	if !t.Equal(t.Truncate(time.Hour)) {
		return time.Time{}, fmt.Errorf("invalid bucket %q: not on an hour boundary", s)
	}
	return t, nil
}

// Today returns the current UTC calendar date at midnight.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDay serializes a date as YYYY-MM-DD in UTC.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD date as UTC midnight.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}
