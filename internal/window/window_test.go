package window

import (
	"testing"
	"time"
)

func TestPreviousHour(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"mid hour", time.Date(2024, 1, 15, 9, 47, 0, 0, time.UTC), "2024-01-15 08:00:00"},
		{"leap month rollover", time.Date(2024, 3, 1, 0, 15, 0, 0, time.UTC), "2024-02-29 23:00:00"},
		{"year rollover", time.Date(2025, 1, 1, 0, 10, 0, 0, time.UTC), "2024-12-31 23:00:00"},
		{"exact boundary", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), "2024-06-01 11:00:00"},
		{"sub-second", time.Date(2024, 6, 1, 12, 59, 59, 999999999, time.UTC), "2024-06-01 11:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBucket(PreviousHour(tt.now))
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPreviousHourIgnoresLocalZone(t *testing.T) {
	// 09:47 at UTC-03:00 is 12:47 UTC.
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2024, 1, 15, 9, 47, 0, 0, loc)

	got := FormatBucket(PreviousHour(now))
	if got != "2024-01-15 11:00:00" {
		t.Errorf("expected UTC bucket 2024-01-15 11:00:00, got %q", got)
	}
}

func TestParseBucket(t *testing.T) {
	b, err := ParseBucket("2024-02-29 23:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatBucket(b) != "2024-02-29 23:00:00" {
		t.Errorf("round trip mismatch: %q", FormatBucket(b))
	}

	if _, err := ParseBucket("2024-02-29 23:30:00"); err == nil {
		t.Error("expected error for bucket off the hour boundary")
	}
	if _, err := ParseBucket("2024-02-29T23:00:00Z"); err == nil {
		t.Error("expected error for offset-aware timestamp")
	}
}

func TestTodayAndDay(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2024, 3, 31, 22, 30, 0, 0, loc)

	if got := FormatDay(Today(now)); got != "2024-04-01" {
		t.Errorf("expected 2024-04-01, got %q", got)
	}

	d, err := ParseDay("2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FormatDay(d) != "2024-02-29" {
		t.Errorf("round trip mismatch: %q", FormatDay(d))
	}
	if _, err := ParseDay("2024-02-30"); err == nil {
		t.Error("expected error for invalid date")
	}
}
