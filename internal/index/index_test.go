package index

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"snapvault/internal/model"
	"snapvault/internal/timebucket"
)

func snap(ctransid int64, ctime int64, id string) model.SnapshotInfo {
	return model.SnapshotInfo{
		UUID:     uuid.MustParse(id),
		Ctransid: ctransid,
		Ctime:    ctime,
	}
}

func TestNominalPicksLowestCtransid(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, time.June, 10, 0, 0, 0, 0, loc).Unix()
	items := []model.SnapshotInfo{
		snap(300, day+1000, "00000000-0000-0000-0000-000000000003"),
		snap(100, day+2000, "00000000-0000-0000-0000-000000000001"),
		snap(200, day+3000, "00000000-0000-0000-0000-000000000002"),
	}
	idx := New(items, map[timebucket.Timeframe]bool{timebucket.Day: true}, loc)
	b := timebucket.BucketOf(day, timebucket.Day, loc)
	got, ok := idx.Nominal(b)
	if !ok {
		t.Fatal("expected a nominal item")
	}
	if got.Ctransid != 100 {
		t.Fatalf("nominal ctransid = %d, want 100", got.Ctransid)
	}
}

func TestMostRecentPicksHighestCtransid(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, time.June, 10, 0, 0, 0, 0, loc).Unix()
	items := []model.SnapshotInfo{
		snap(300, day+1000, "00000000-0000-0000-0000-000000000003"),
		snap(100, day+2000, "00000000-0000-0000-0000-000000000001"),
		snap(200, day+3000, "00000000-0000-0000-0000-000000000002"),
	}
	idx := New(items, map[timebucket.Timeframe]bool{timebucket.Day: true}, loc)
	b := timebucket.BucketOf(day, timebucket.Day, loc)
	got, ok := idx.MostRecent(b)
	if !ok {
		t.Fatal("expected a most-recent item")
	}
	if got.Ctransid != 300 {
		t.Fatalf("most-recent ctransid = %d, want 300", got.Ctransid)
	}
}

func TestNominalTieBreaksByUUID(t *testing.T) {
	loc := time.UTC
	day := time.Date(2024, time.June, 10, 0, 0, 0, 0, loc).Unix()
	items := []model.SnapshotInfo{
		snap(100, day+1000, "00000000-0000-0000-0000-000000000009"),
		snap(100, day+2000, "00000000-0000-0000-0000-000000000001"),
	}
	idx := New(items, map[timebucket.Timeframe]bool{timebucket.Day: true}, loc)
	b := timebucket.BucketOf(day, timebucket.Day, loc)
	got, _ := idx.Nominal(b)
	if got.UUID.String() != "00000000-0000-0000-0000-000000000001" {
		t.Fatalf("tie-break chose %v, want the lexicographically smaller uuid", got.UUID)
	}
}

func TestGetEmptyBucket(t *testing.T) {
	loc := time.UTC
	idx := New([]model.SnapshotInfo{}, map[timebucket.Timeframe]bool{timebucket.Day: true}, loc)
	b := timebucket.BucketOf(time.Now().Unix(), timebucket.Day, loc)
	if items := idx.Get(b); len(items) != 0 {
		t.Fatalf("expected empty bucket, got %d items", len(items))
	}
	if _, ok := idx.Nominal(b); ok {
		t.Fatal("expected no nominal item in an empty bucket")
	}
}
