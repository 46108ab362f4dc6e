// Package model holds the data types shared by every planner component:
// snapshot and backup metadata, the small capability interfaces the planner
// is parameterized over, and the keep-reason bookkeeping the resolver
// produces.
package model

import "github.com/google/uuid"

// UUID16 is an opaque 16-byte identity, used for both snapshot and backup
// uuids and for subvolume parent uuids.
type UUID16 = uuid.UUID

// ZeroUUID is the nil UUID. A BackupInfo whose SendParentUUID is ZeroUUID is
// a full backup.
var ZeroUUID UUID16

// SnapshotFlags is a bit set of on-disk subvolume flags. Only the read-only
// bit is meaningful to the planner.
type SnapshotFlags uint32

const (
	FlagReadOnly SnapshotFlags = 1 << iota
)

// SnapshotInfo is the immutable metadata of a read-only snapshot.
type SnapshotInfo struct {
	ID         int64
	UUID       UUID16
	ParentUUID UUID16
	Ctransid   int64
	Ctime      int64
	Flags      SnapshotFlags
}

func (s SnapshotInfo) ReadOnly() bool { return s.Flags&FlagReadOnly != 0 }

func (s SnapshotInfo) KeyUUID() UUID16    { return s.UUID }
func (s SnapshotInfo) KeyCtime() int64    { return s.Ctime }
func (s SnapshotInfo) KeyCtransid() int64 { return s.Ctransid }

// BackupInfo is the immutable metadata describing a backup artifact.
type BackupInfo struct {
	UUID           UUID16
	ParentUUID     UUID16
	SendParentUUID UUID16
	Ctransid       int64
	Ctime          int64
}

func (b BackupInfo) Full() bool { return b.SendParentUUID == ZeroUUID }

func (b BackupInfo) KeyUUID() UUID16    { return b.UUID }
func (b BackupInfo) KeyCtime() int64    { return b.Ctime }
func (b BackupInfo) KeyCtransid() int64 { return b.Ctransid }

// Source is a live writable subvolume being protected, identified the way
// the planner needs to recognize its own snapshots.
type Source struct {
	Name     string
	Path     string
	UUID     UUID16
	Ctransid int64
}
