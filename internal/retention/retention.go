// Package retention turns a GFS-style preserve policy into the concrete set
// of time buckets a pass should keep, fixed once at construction so a single
// pass sees one consistent "now" throughout.
package retention

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"snapvault/internal/timebucket"
)

// RetentionParams is how many of each bucket, counting back from now, to
// preserve. Zero means that timeframe is not preserved at all.
type RetentionParams struct {
	Years   int
	Quarters int
	Months  int
	Weeks   int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

func (p RetentionParams) countFor(tf timebucket.Timeframe) int {
	switch tf {
	case timebucket.Year:
		return p.Years
	case timebucket.Quarter:
		return p.Quarters
	case timebucket.Month:
		return p.Months
	case timebucket.Week:
		return p.Weeks
	case timebucket.Day:
		return p.Days
	case timebucket.Hour:
		return p.Hours
	case timebucket.Minute:
		return p.Minutes
	case timebucket.Second:
		return p.Seconds
	default:
		return 0
	}
}

// RetentionPolicy is the precomputed set of buckets a pass preserves,
// evaluated once against a fixed now and location. It is pure and
// reusable for the remainder of the pass; a later pass rebuilds its own
// policy against its own now and location rather than mutating this one.
type RetentionPolicy struct {
	now      int64
	loc      *time.Location
	params   RetentionParams
	buckets  map[timebucket.TimeBucket]struct{}
	enabled  map[timebucket.Timeframe]bool
}

// NewRetentionPolicy precomputes the preserved-bucket set for params,
// counting back from now in loc.
func NewRetentionPolicy(params RetentionParams, now int64, loc *time.Location) *RetentionPolicy {
	enabled := map[timebucket.Timeframe]bool{}
	buckets := map[timebucket.TimeBucket]struct{}{}

	for _, tf := range timebucket.DescendingOrder {
		n := params.countFor(tf)
		if n <= 0 {
			continue
		}
		enabled[tf] = true
		cur := timebucket.BucketOf(now, tf, loc)
		for i := 0; i < n; i++ {
			buckets[cur] = struct{}{}
			cur = shiftBack(cur, tf, loc)
		}
	}

	return &RetentionPolicy{
		now:     now,
		loc:     loc,
		params:  params,
		buckets: buckets,
		enabled: enabled,
	}
}

// shiftBack returns the bucket of the same timeframe immediately preceding
// b, computed from b.Start minus one second so the shift is exact even
// across irregular month/quarter/year lengths and DST.
func shiftBack(b timebucket.TimeBucket, tf timebucket.Timeframe, loc *time.Location) timebucket.TimeBucket {
	prev := b.Start - 1
	return timebucket.BucketOf(prev, tf, loc)
}

// ShouldPreserve reports whether t falls in any bucket this policy
// preserves.
func (p *RetentionPolicy) ShouldPreserve(t int64) bool {
	for _, tf := range timebucket.DescendingOrder {
		if !p.enabled[tf] {
			continue
		}
		b := timebucket.BucketOf(t, tf, p.loc)
		if _, ok := p.buckets[b]; ok {
			return true
		}
	}
	return false
}

// BucketsFor returns, in DescendingOrder, the bucket of every enabled
// timeframe that contains t — used by the send-parent search, which needs
// every candidate bucket regardless of whether it happens to be preserved.
func (p *RetentionPolicy) BucketsFor(t int64) []timebucket.TimeBucket {
	return timebucket.BucketsOverlapping(t, p.enabled, p.loc)
}

func (p *RetentionPolicy) Now() int64              { return p.now }
func (p *RetentionPolicy) Location() *time.Location { return p.loc }
func (p *RetentionPolicy) Params() RetentionParams  { return p.params }

// PreservedBuckets returns every bucket this policy preserves, across all
// enabled timeframes, in no particular order.
func (p *RetentionPolicy) PreservedBuckets() []timebucket.TimeBucket {
	out := make([]timebucket.TimeBucket, 0, len(p.buckets))
	for b := range p.buckets {
		out = append(out, b)
	}
	return out
}

// Enabled returns a copy of the set of timeframes this policy preserves at
// least one bucket of.
func (p *RetentionPolicy) Enabled() map[timebucket.Timeframe]bool {
	out := make(map[timebucket.Timeframe]bool, len(p.enabled))
	for k, v := range p.enabled {
		out[k] = v
	}
	return out
}

// ParsePreserve parses tokens like "1y 4q 12m 52w 30d 24h 60M 60s" into
// RetentionParams. Letter case is significant: lowercase m is months,
// uppercase M is minutes.
func ParsePreserve(s string) (RetentionParams, error) {
	var p RetentionParams
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return p, fmt.Errorf("retention: empty preserve string")
	}
	for _, f := range fields {
		if len(f) < 2 {
			return p, fmt.Errorf("retention: malformed token %q", f)
		}
		unit := f[len(f)-1:]
		numPart := f[:len(f)-1]
		n, err := strconv.Atoi(numPart)
		if err != nil {
			return p, fmt.Errorf("retention: malformed count in token %q: %w", f, err)
		}
		if n < 0 {
			return p, fmt.Errorf("retention: negative count in token %q", f)
		}
		switch unit {
		case "y":
			p.Years = n
		case "q":
			p.Quarters = n
		case "m":
			p.Months = n
		case "w":
			p.Weeks = n
		case "d":
			p.Days = n
		case "h":
			p.Hours = n
		case "M":
			p.Minutes = n
		case "s":
			p.Seconds = n
		default:
			return p, fmt.Errorf("retention: unknown unit %q in token %q", unit, f)
		}
	}
	return p, nil
}
