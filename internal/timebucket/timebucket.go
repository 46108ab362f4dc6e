// Package timebucket maps a timestamp to the grid-aligned calendar buckets
// that contain it, in a fixed time zone. Bucket boundaries are computed from
// the zone's wall-clock fields and then converted back to Unix seconds, so
// buckets stay contiguous and non-overlapping on the timeline even across a
// DST transition that skips or repeats a wall-clock reading.
package timebucket

import "time"

type Timeframe int

const (
	Year Timeframe = iota
	Quarter
	Month
	Week
	Day
	Hour
	Minute
	Second
)

func (t Timeframe) String() string {
	switch t {
	case Year:
		return "year"
	case Quarter:
		return "quarter"
	case Month:
		return "month"
	case Week:
		return "week"
	case Day:
		return "day"
	case Hour:
		return "hour"
	case Minute:
		return "minute"
	case Second:
		return "second"
	default:
		return "unknown"
	}
}

// DescendingOrder is the fixed year→second order that §4.1/§4.3 require:
// send-parent search and buckets_overlapping both iterate in this order, and
// the order is load-bearing (a yearly bucket is visited before a monthly
// one, so monthly backups hang off yearly ones).
var DescendingOrder = []Timeframe{Year, Quarter, Month, Week, Day, Hour, Minute, Second}

// TimeBucket is a half-open interval [Start, End) in Unix seconds, tagged
// with the timeframe it was computed for. Equality is structural, so it is
// usable directly as a map key.
type TimeBucket struct {
	Timeframe Timeframe
	Start     int64
	End       int64
}

// BucketOf returns the bucket of the given timeframe containing t, computed
// in loc.
func BucketOf(t int64, tf Timeframe, loc *time.Location) TimeBucket {
	tt := time.Unix(t, 0).In(loc)
	y, mo, d := tt.Date()
	hh, mm, ss := tt.Clock()

	var start, end time.Time
	switch tf {
	case Year:
		start = time.Date(y, 1, 1, 0, 0, 0, 0, loc)
		end = time.Date(y+1, 1, 1, 0, 0, 0, 0, loc)
	case Quarter:
		qStart := time.Month(((int(mo)-1)/3)*3 + 1)
		start = time.Date(y, qStart, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 3, 0)
	case Month:
		start = time.Date(y, mo, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case Week:
		// ISO week: Monday–Sunday.
		offset := (int(tt.Weekday()) + 6) % 7
		midnight := time.Date(y, mo, d, 0, 0, 0, 0, loc)
		start = midnight.AddDate(0, 0, -offset)
		end = start.AddDate(0, 0, 7)
	case Day:
		start = time.Date(y, mo, d, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	case Hour:
		start = time.Date(y, mo, d, hh, 0, 0, 0, loc)
		end = start.Add(time.Hour)
	case Minute:
		start = time.Date(y, mo, d, hh, mm, 0, 0, loc)
		end = start.Add(time.Minute)
	case Second:
		start = time.Date(y, mo, d, hh, mm, ss, 0, loc)
		end = start.Add(time.Second)
	default:
		panic("timebucket: unknown timeframe")
	}
	return TimeBucket{Timeframe: tf, Start: start.Unix(), End: end.Unix()}
}

// BucketsOverlapping yields, for each enabled timeframe and in
// DescendingOrder, the bucket of that timeframe containing t.
func BucketsOverlapping(t int64, enabled map[Timeframe]bool, loc *time.Location) []TimeBucket {
	out := make([]TimeBucket, 0, len(DescendingOrder))
	for _, tf := range DescendingOrder {
		if !enabled[tf] {
			continue
		}
		out = append(out, BucketOf(t, tf, loc))
	}
	return out
}

// Contains reports whether t falls in the bucket's half-open interval.
func (b TimeBucket) Contains(t int64) bool {
	return t >= b.Start && t < b.End
}
