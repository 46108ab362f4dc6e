package cli

import (
	"fmt"
	"sort"
	"time"

	"snapvault/internal/model"
	"snapvault/internal/timebucket"
)

// describePreserve renders why an item is kept, the way a btrfs2s3 plan row
// labels its preserve column: a Preserved item shows the coarsest time
// bucket it owes its keep to ("2007 yearly", "2006-12 monthly"), and an item
// kept only for structural reasons shows that reason instead of a time span.
func describePreserve(meta model.KeepMeta, loc *time.Location) string {
	switch {
	case meta.Reasons&model.ReasonPreserved != 0:
		return describeEarliestBucket(meta.TimeBuckets, loc)
	case meta.Reasons&model.ReasonMostRecent != 0:
		return "<most recent>"
	case meta.Reasons&model.ReasonSendAncestor != 0:
		return "<ancestor>"
	case meta.Reasons != 0:
		return "<keep>"
	default:
		return "<not keeping>"
	}
}

// describeEarliestBucket picks the widest (coarsest) preserved bucket,
// tie-broken by earliest start, and renders it. A yearly bucket spans more
// time than a monthly one, so this is the bucket most informative to the
// reader about why the item survived.
func describeEarliestBucket(buckets map[timebucket.TimeBucket]struct{}, loc *time.Location) string {
	if len(buckets) == 0 {
		return "<keep>"
	}
	list := make([]timebucket.TimeBucket, 0, len(buckets))
	for b := range buckets {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		wi, wj := list[i].Start-list[i].End, list[j].Start-list[j].End
		if wi != wj {
			return wi < wj
		}
		return list[i].Start < list[j].Start
	})
	return describeBucket(list[0], loc)
}

// describeBucket renders a single calendar-aligned bucket as a short human
// label, keyed off its own Timeframe rather than re-deriving alignment by
// comparing spans.
func describeBucket(b timebucket.TimeBucket, loc *time.Location) string {
	start := time.Unix(b.Start, 0).In(loc)
	switch b.Timeframe {
	case timebucket.Year:
		return fmt.Sprintf("%04d yearly", start.Year())
	case timebucket.Quarter:
		q := (int(start.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d quarterly", start.Year(), q)
	case timebucket.Month:
		return fmt.Sprintf("%04d-%02d monthly", start.Year(), int(start.Month()))
	case timebucket.Week:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d weekly", y, w)
	case timebucket.Day:
		return fmt.Sprintf("%04d-%02d-%02d daily", start.Year(), int(start.Month()), start.Day())
	case timebucket.Hour:
		return fmt.Sprintf("%04d-%02d-%02dT%02d hourly", start.Year(), int(start.Month()), start.Day(), start.Hour())
	case timebucket.Minute:
		return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d minutely", start.Year(), int(start.Month()), start.Day(), start.Hour(), start.Minute())
	case timebucket.Second:
		return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d secondly", start.Year(), int(start.Month()), start.Day(), start.Hour(), start.Minute(), start.Second())
	default:
		end := time.Unix(b.End, 0).In(loc)
		return fmt.Sprintf("%s/%s", start.Format("2006-01-02T15:04:05"), end.Format("2006-01-02T15:04:05"))
	}
}
