package model

import "snapvault/internal/timebucket"

// KeepReasons is a bit set of reasons a snapshot or backup is kept.
type KeepReasons uint8

const (
	ReasonPreserved KeepReasons = 1 << iota
	ReasonMostRecent
	ReasonSendAncestor
)

// KeepFlags is a bit set of auxiliary facts recorded alongside a keep
// decision; it never by itself implies the item is kept.
type KeepFlags uint8

const (
	FlagNew KeepFlags = 1 << iota
	FlagReplacingNewer
	FlagNoSnapshot
	FlagSnapshotIsNewer
)

// KeepMeta is a monoid: marking the same uuid more than once unions reasons,
// flags, buckets and other_uuids. The zero value means "not kept".
type KeepMeta struct {
	Reasons     KeepReasons
	Flags       KeepFlags
	TimeBuckets map[timebucket.TimeBucket]struct{}
	OtherUUIDs  map[UUID16]struct{}
}

func (m KeepMeta) Kept() bool { return m.Reasons != 0 }

func (m KeepMeta) Merge(other KeepMeta) KeepMeta {
	out := KeepMeta{
		Reasons: m.Reasons | other.Reasons,
		Flags:   m.Flags | other.Flags,
	}
	out.TimeBuckets = unionBuckets(m.TimeBuckets, other.TimeBuckets)
	out.OtherUUIDs = unionUUIDs(m.OtherUUIDs, other.OtherUUIDs)
	return out
}

func unionBuckets(a, b map[timebucket.TimeBucket]struct{}) map[timebucket.TimeBucket]struct{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[timebucket.TimeBucket]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func unionUUIDs(a, b map[UUID16]struct{}) map[UUID16]struct{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[UUID16]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
