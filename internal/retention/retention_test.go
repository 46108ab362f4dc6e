package retention

import (
	"testing"
	"time"

	"snapvault/internal/timebucket"
)

func TestParsePreserve(t *testing.T) {
	p, err := ParsePreserve("1y 4q 12m 52w 30d 24h 60M 60s")
	if err != nil {
		t.Fatalf("ParsePreserve: %v", err)
	}
	want := RetentionParams{Years: 1, Quarters: 4, Months: 12, Weeks: 52, Days: 30, Hours: 24, Minutes: 60, Seconds: 60}
	if p != want {
		t.Fatalf("got %+v, want %+v", p, want)
	}
}

func TestParsePreserveCaseSignificant(t *testing.T) {
	p, err := ParsePreserve("5m 5M")
	if err != nil {
		t.Fatalf("ParsePreserve: %v", err)
	}
	if p.Months != 5 || p.Minutes != 5 {
		t.Fatalf("case-insensitive unit confusion: %+v", p)
	}
}

func TestParsePreserveRejectsMalformed(t *testing.T) {
	if _, err := ParsePreserve("nope"); err == nil {
		t.Fatal("expected error for malformed token")
	}
	if _, err := ParsePreserve("5z"); err == nil {
		t.Fatal("expected error for unknown unit")
	}
}

func TestRetentionPolicyDailyWindow(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	policy := NewRetentionPolicy(RetentionParams{Days: 3}, now, loc)

	today := time.Date(2024, time.June, 10, 8, 0, 0, 0, loc).Unix()
	yesterday := time.Date(2024, time.June, 9, 8, 0, 0, 0, loc).Unix()
	twoDaysAgo := time.Date(2024, time.June, 8, 8, 0, 0, 0, loc).Unix()
	fourDaysAgo := time.Date(2024, time.June, 6, 8, 0, 0, 0, loc).Unix()

	for _, tc := range []struct {
		name string
		ts   int64
		want bool
	}{
		{"today", today, true},
		{"yesterday", yesterday, true},
		{"two days ago", twoDaysAgo, true},
		{"four days ago", fourDaysAgo, false},
	} {
		if got := policy.ShouldPreserve(tc.ts); got != tc.want {
			t.Errorf("%s: ShouldPreserve = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetentionPolicyZeroCountDisablesTimeframe(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	policy := NewRetentionPolicy(RetentionParams{Days: 0, Years: 1}, now, loc)
	if policy.enabled[timebucket.Day] {
		t.Fatal("zero count must not enable the day timeframe")
	}
	if !policy.enabled[timebucket.Year] {
		t.Fatal("nonzero count must enable the year timeframe")
	}
}

func TestRetentionPolicyBucketsForReturnsDescendingOrder(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	policy := NewRetentionPolicy(RetentionParams{Years: 2, Months: 6, Days: 30}, now, loc)
	buckets := policy.BucketsFor(now)
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}
	if buckets[0].Timeframe != timebucket.Year || buckets[1].Timeframe != timebucket.Month || buckets[2].Timeframe != timebucket.Day {
		t.Fatalf("unexpected order: %+v", buckets)
	}
}

func TestRetentionPolicyMonthlyCountAcrossYearBoundary(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.February, 15, 0, 0, 0, 0, loc).Unix()
	policy := NewRetentionPolicy(RetentionParams{Months: 3}, now, loc)
	december := time.Date(2023, time.December, 20, 0, 0, 0, 0, loc).Unix()
	november := time.Date(2023, time.November, 20, 0, 0, 0, 0, loc).Unix()
	if !policy.ShouldPreserve(december) {
		t.Fatal("december should be within the 3-month window from february")
	}
	if policy.ShouldPreserve(november) {
		t.Fatal("november should be outside the 3-month window from february")
	}
}
