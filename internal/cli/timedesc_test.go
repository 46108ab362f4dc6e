package cli

import (
	"testing"
	"time"

	"snapvault/internal/model"
	"snapvault/internal/timebucket"
)

func TestDescribeBucketLabelsCalendarUnits(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		tf   timebucket.Timeframe
		t    int64
		want string
	}{
		{timebucket.Year, time.Date(2007, 6, 1, 0, 0, 0, 0, loc).Unix(), "2007 yearly"},
		{timebucket.Month, time.Date(2006, 12, 15, 0, 0, 0, 0, loc).Unix(), "2006-12 monthly"},
		{timebucket.Day, time.Date(2024, 3, 4, 0, 0, 0, 0, loc).Unix(), "2024-03-04 daily"},
	}
	for _, c := range cases {
		b := timebucket.BucketOf(c.t, c.tf, loc)
		got := describeBucket(b, loc)
		if got != c.want {
			t.Errorf("describeBucket(%v) = %q, want %q", c.tf, got, c.want)
		}
	}
}

func TestDescribePreserveReportsStructuralReasonsWithoutBuckets(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		meta model.KeepMeta
		want string
	}{
		{model.KeepMeta{Reasons: model.ReasonMostRecent}, "<most recent>"},
		{model.KeepMeta{Reasons: model.ReasonSendAncestor}, "<ancestor>"},
		{model.KeepMeta{}, "<not keeping>"},
	}
	for _, c := range cases {
		got := describePreserve(c.meta, loc)
		if got != c.want {
			t.Errorf("describePreserve(%+v) = %q, want %q", c.meta, got, c.want)
		}
	}
}

func TestDescribePreservePicksCoarsestBucket(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, loc).Unix()
	year := timebucket.BucketOf(now, timebucket.Year, loc)
	month := timebucket.BucketOf(now, timebucket.Month, loc)

	meta := model.KeepMeta{
		Reasons: model.ReasonPreserved,
		TimeBuckets: map[timebucket.TimeBucket]struct{}{
			year:  {},
			month: {},
		},
	}

	got := describePreserve(meta, loc)
	want := describeBucket(year, loc)
	if got != want {
		t.Errorf("describePreserve picked %q, want the yearly bucket %q", got, want)
	}
}
