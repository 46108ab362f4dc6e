// Package index provides bucket-indexed lookups over a homogeneous
// collection of snapshots or backups, used by the resolver to find the
// nominal (lowest ctransid, uuid tie-break) and most-recent (highest
// ctransid) item in a given time bucket without re-scanning the whole set
// per query.
package index

import (
	"bytes"
	"time"

	"snapvault/internal/model"
	"snapvault/internal/timebucket"
)

// Keyed is the minimal surface Index needs from an item. model.SnapshotInfo
// and model.BackupInfo both satisfy it.
type Keyed interface {
	KeyUUID() model.UUID16
	KeyCtime() int64
	KeyCtransid() int64
}

// Index groups items of type T by every bucket (of every enabled
// timeframe) their ctime falls in.
type Index[T Keyed] struct {
	byBucket map[timebucket.TimeBucket][]T
	enabled  map[timebucket.Timeframe]bool
	loc      *time.Location
}

// New builds an Index over items, bucketing by the given enabled timeframes
// in loc.
func New[T Keyed](items []T, enabled map[timebucket.Timeframe]bool, loc *time.Location) *Index[T] {
	idx := &Index[T]{
		byBucket: map[timebucket.TimeBucket][]T{},
		enabled:  enabled,
		loc:      loc,
	}
	for _, it := range items {
		for _, b := range timebucket.BucketsOverlapping(it.KeyCtime(), enabled, loc) {
			idx.byBucket[b] = append(idx.byBucket[b], it)
		}
	}
	return idx
}

// Get returns every indexed item whose ctime falls in bucket b.
func (idx *Index[T]) Get(b timebucket.TimeBucket) []T {
	return idx.byBucket[b]
}

// Nominal returns the item in bucket b with the lowest ctransid, breaking
// ties by the lexicographically smaller uuid so the choice is
// deterministic regardless of input order.
func (idx *Index[T]) Nominal(b timebucket.TimeBucket) (T, bool) {
	items := idx.byBucket[b]
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	best := items[0]
	for _, it := range items[1:] {
		if uuidLess(it, best) {
			best = it
		}
	}
	return best, true
}

// MostRecent returns the item in bucket b with the highest ctransid,
// breaking ties by the lexicographically smaller uuid.
func (idx *Index[T]) MostRecent(b timebucket.TimeBucket) (T, bool) {
	items := idx.byBucket[b]
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	best := items[0]
	for _, it := range items[1:] {
		if uuidGreater(it, best) {
			best = it
		}
	}
	return best, true
}

// AllBuckets returns every bucket this index has at least one item in.
func (idx *Index[T]) AllBuckets() []timebucket.TimeBucket {
	out := make([]timebucket.TimeBucket, 0, len(idx.byBucket))
	for b := range idx.byBucket {
		out = append(out, b)
	}
	return out
}

// uuidLess implements the nominal tie-break: lower ctransid wins; on equal
// ctransid, the lexicographically smaller uuid wins.
func uuidLess(a, b Keyed) bool {
	if a.KeyCtransid() != b.KeyCtransid() {
		return a.KeyCtransid() < b.KeyCtransid()
	}
	au, bu := a.KeyUUID(), b.KeyUUID()
	return bytes.Compare(au[:], bu[:]) < 0
}

// uuidGreater implements the most-recent tie-break: higher ctransid wins;
// on equal ctransid, the lexicographically smaller uuid wins (same
// deterministic tie-break rule applied in the opposite ctransid direction).
func uuidGreater(a, b Keyed) bool {
	if a.KeyCtransid() != b.KeyCtransid() {
		return a.KeyCtransid() > b.KeyCtransid()
	}
	au, bu := a.KeyUUID(), b.KeyUUID()
	return bytes.Compare(au[:], bu[:]) < 0
}
