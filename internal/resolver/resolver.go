// Package resolver implements the pure three-pass decision algorithm that
// turns one source's snapshots, every remote's backups, and a retention
// policy into keep/discard metadata. It touches neither the filesystem nor
// the network: every input is a plain slice, every output a map, so the
// planner can exercise it against fakes and the tests can exercise it
// directly.
package resolver

import (
	"fmt"

	"snapvault/internal/index"
	"snapvault/internal/model"
	"snapvault/internal/retention"
	"snapvault/internal/timebucket"
)

// Result is the output of Resolve: per-uuid keep metadata for the source's
// snapshots and for each remote's backups, plus any non-fatal warnings
// raised while walking a broken ancestry chain.
type Result struct {
	Snapshots map[model.UUID16]model.KeepMeta
	Backups   map[model.BackupKey]model.KeepMeta
	Warnings  []string
}

func newResult() *Result {
	return &Result{
		Snapshots: map[model.UUID16]model.KeepMeta{},
		Backups:   map[model.BackupKey]model.KeepMeta{},
	}
}

func (r *Result) markSnapshot(id model.UUID16, meta model.KeepMeta) {
	r.Snapshots[id] = r.Snapshots[id].Merge(meta)
}

func (r *Result) markBackup(key model.BackupKey, meta model.KeepMeta) {
	r.Backups[key] = r.Backups[key].Merge(meta)
}

// Resolve runs all three passes over one source's snapshots against every
// remote's backups under policy, and returns the merged keep decisions.
func Resolve(
	policy *retention.RetentionPolicy,
	snapshots []model.SnapshotInfo,
	backupsByRemote map[string][]model.BackupInfo,
) *Result {
	r := newResult()
	loc := policy.Location()
	enabled := policy.Enabled()

	snapIdx := index.New(snapshots, enabled, loc)
	backupIdx := make(map[string]*index.Index[model.BackupInfo], len(backupsByRemote))
	for remoteID, backups := range backupsByRemote {
		backupIdx[remoteID] = index.New(backups, enabled, loc)
	}

	snapByUUID := make(map[model.UUID16]model.SnapshotInfo, len(snapshots))
	for _, s := range snapshots {
		snapByUUID[s.UUID] = s
	}

	passA(r, policy, snapIdx, backupIdx)
	passB(r, snapshots, backupsByRemote)
	passC(r, policy, snapIdx, snapByUUID, backupsByRemote)

	return r
}

// passA preserves the nominal (lowest ctransid) snapshot and, per remote,
// the nominal backup of each bucket the policy preserves.
//
//	snapshot  backup   outcome
//	  Y         Y       same uuid: both kept, consistent.
//	  Y         Y       different uuid, snapshot ctransid < backup's:
//	                    an older snapshot than the backup is nominal for
//	                    this bucket; snapshot is kept and flagged new (needs
//	                    a backup), the newer backup is flagged as being
//	                    replaced and gets no keep reason here.
//	  Y         Y       different uuid, snapshot ctransid > backup's:
//	                    the backup predates every snapshot left in this
//	                    bucket; both are kept and the snapshot is flagged
//	                    as the newer of the two.
//	  Y         N       snapshot kept, flagged new: no backup exists yet.
//	  N         Y       backup kept, flagged no-snapshot: its source
//	                    snapshot is gone but the backup is still the only
//	                    copy for this bucket.
//	  N         N       nothing to do.
func passA(
	r *Result,
	policy *retention.RetentionPolicy,
	snapIdx *index.Index[model.SnapshotInfo],
	backupIdx map[string]*index.Index[model.BackupInfo],
) {
	for _, bucket := range policy.PreservedBuckets() {
		snap, haveSnap := snapIdx.Nominal(bucket)

		for remoteID, idx := range backupIdx {
			backup, haveBackup := idx.Nominal(bucket)

			switch {
			case haveSnap && haveBackup && snap.UUID == backup.UUID:
				r.markSnapshot(snap.UUID, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					TimeBuckets: bucketSet(bucket),
				})
				r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: backup.UUID}, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					TimeBuckets: bucketSet(bucket),
				})

			case haveSnap && haveBackup && snap.Ctransid < backup.Ctransid:
				r.markSnapshot(snap.UUID, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					Flags:       model.FlagNew,
					TimeBuckets: bucketSet(bucket),
				})
				r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: backup.UUID}, model.KeepMeta{
					Flags:       model.FlagReplacingNewer,
					TimeBuckets: bucketSet(bucket),
				})

			case haveSnap && haveBackup && snap.Ctransid > backup.Ctransid:
				r.markSnapshot(snap.UUID, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					Flags:       model.FlagSnapshotIsNewer,
					TimeBuckets: bucketSet(bucket),
				})
				r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: backup.UUID}, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					TimeBuckets: bucketSet(bucket),
				})

			case haveSnap && !haveBackup:
				r.markSnapshot(snap.UUID, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					Flags:       model.FlagNew,
					TimeBuckets: bucketSet(bucket),
				})

			case !haveSnap && haveBackup:
				r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: backup.UUID}, model.KeepMeta{
					Reasons:     model.ReasonPreserved,
					Flags:       model.FlagNoSnapshot,
					TimeBuckets: bucketSet(bucket),
				})
			}
		}
	}
}

// passB keeps the single most recent snapshot overall, and the single most
// recent backup on each remote overall, regardless of whether their bucket
// is preserved — the current generation is always kept so there is always
// a live send-parent candidate and a current remote copy.
func passB(r *Result, snapshots []model.SnapshotInfo, backupsByRemote map[string][]model.BackupInfo) {
	if best, ok := mostRecentSnapshot(snapshots); ok {
		r.markSnapshot(best.UUID, model.KeepMeta{Reasons: model.ReasonMostRecent})
	}
	for remoteID, backups := range backupsByRemote {
		if best, ok := mostRecentBackup(backups); ok {
			r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: best.UUID}, model.KeepMeta{Reasons: model.ReasonMostRecent})
		}
	}
}

func mostRecentSnapshot(snapshots []model.SnapshotInfo) (model.SnapshotInfo, bool) {
	var best model.SnapshotInfo
	found := false
	for _, s := range snapshots {
		if !found || s.Ctransid > best.Ctransid {
			best = s
			found = true
		}
	}
	return best, found
}

func mostRecentBackup(backups []model.BackupInfo) (model.BackupInfo, bool) {
	var best model.BackupInfo
	found := false
	for _, b := range backups {
		if !found || b.Ctransid > best.Ctransid {
			best = b
			found = true
		}
	}
	return best, found
}

// passC closes each remote's kept-backup set under ancestry: every backup
// already marked kept pulls in its send_parent chain, transitively, as
// ReasonSendAncestor, unioning keep metadata along the way so a later
// action compiler can see why an ancestor is being kept. When an ancestor
// has no backup on this remote but its snapshot still exists locally, a
// new backup of it is synthesized (flagged New) rather than treating the
// chain as broken — the planner picks its send-parent the same way it
// does for any other snapshot flagged New. Only when neither a backup nor a snapshot for
// the referenced uuid exists does the chain end in a warning.
func passC(
	r *Result,
	policy *retention.RetentionPolicy,
	snapIdx *index.Index[model.SnapshotInfo],
	snapByUUID map[model.UUID16]model.SnapshotInfo,
	backupsByRemote map[string][]model.BackupInfo,
) {
	for remoteID, backups := range backupsByRemote {
		byUUID := make(map[model.UUID16]model.BackupInfo, len(backups))
		for _, b := range backups {
			byUUID[b.UUID] = b
		}

		// Snapshot the set of currently-kept keys for this remote before
		// mutating it, so passC's own insertions don't get re-walked as if
		// they were already-kept roots (ancestors of ancestors are still
		// reached, just via the recursive walk below, not by re-iterating
		// r.Backups).
		roots := make([]model.UUID16, 0)
		for key := range r.Backups {
			if key.RemoteID == remoteID && r.Backups[key].Kept() {
				roots = append(roots, key.UUID)
			}
		}

		for _, rootUUID := range roots {
			cur, ok := byUUID[rootUUID]
			if !ok {
				continue
			}
			visited := map[model.UUID16]struct{}{cur.UUID: {}}
			walkAncestry(r, remoteID, cur, policy, snapIdx, snapByUUID, byUUID, visited)
		}
	}
}

func walkAncestry(
	r *Result,
	remoteID string,
	cur model.BackupInfo,
	policy *retention.RetentionPolicy,
	snapIdx *index.Index[model.SnapshotInfo],
	snapByUUID map[model.UUID16]model.SnapshotInfo,
	byUUID map[model.UUID16]model.BackupInfo,
	visited map[model.UUID16]struct{},
) {
	if cur.Full() {
		return
	}
	parentUUID := cur.SendParentUUID

	if parent, ok := byUUID[parentUUID]; ok {
		if _, seen := visited[parent.UUID]; seen {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"remote %s: send parent chain from %s cycles back to %s",
				remoteID, cur.UUID, parent.UUID))
			return
		}
		visited[parent.UUID] = struct{}{}

		r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: parent.UUID}, model.KeepMeta{
			Reasons:    model.ReasonSendAncestor,
			OtherUUIDs: map[model.UUID16]struct{}{cur.UUID: {}},
		})

		walkAncestry(r, remoteID, parent, policy, snapIdx, snapByUUID, byUUID, visited)
		return
	}

	snap, ok := snapByUUID[parentUUID]
	if !ok {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"remote %s: backup %s references missing send parent %s",
			remoteID, cur.UUID, parentUUID))
		return
	}
	if _, seen := visited[snap.UUID]; seen {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"remote %s: send parent chain from %s cycles back to %s",
			remoteID, cur.UUID, snap.UUID))
		return
	}
	visited[snap.UUID] = struct{}{}

	r.markSnapshot(snap.UUID, model.KeepMeta{
		Reasons: model.ReasonSendAncestor,
		Flags:   model.FlagNew,
	})

	parent, found := findSendParent(snap, snapIdx, policy)
	if !found {
		return
	}
	if existing, ok := byUUID[parent.UUID]; ok {
		if _, seen := visited[existing.UUID]; seen {
			return
		}
		visited[existing.UUID] = struct{}{}
		r.markBackup(model.BackupKey{RemoteID: remoteID, UUID: existing.UUID}, model.KeepMeta{
			Reasons:    model.ReasonSendAncestor,
			OtherUUIDs: map[model.UUID16]struct{}{snap.UUID: {}},
		})
		walkAncestry(r, remoteID, existing, policy, snapIdx, snapByUUID, byUUID, visited)
		return
	}
	synthetic := model.BackupInfo{UUID: snap.UUID, Ctransid: snap.Ctransid, Ctime: snap.Ctime, SendParentUUID: parent.UUID}
	walkAncestry(r, remoteID, synthetic, policy, snapIdx, snapByUUID, byUUID, visited)
}

// findSendParent determines the send-parent a fresh backup of s would use:
// the first nominal snapshot, searched from the coarsest enabled bucket
// down, that is not s itself. Absent a match, the backup must be full.
func findSendParent(s model.SnapshotInfo, snapIdx *index.Index[model.SnapshotInfo], policy *retention.RetentionPolicy) (model.SnapshotInfo, bool) {
	for _, bucket := range policy.BucketsFor(s.Ctime) {
		nominal, ok := snapIdx.Nominal(bucket)
		if !ok || nominal.UUID == s.UUID {
			continue
		}
		return nominal, true
	}
	return model.SnapshotInfo{}, false
}

func bucketSet(b timebucket.TimeBucket) map[timebucket.TimeBucket]struct{} {
	return map[timebucket.TimeBucket]struct{}{b: {}}
}
