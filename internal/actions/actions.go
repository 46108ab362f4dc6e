// Package actions compiles an Assessment into the four ordered vectors of
// work a pass must perform: rename, upload, destroy, delete. Vector order
// is deliberate and the executor relies on it: a canonical name is
// computed and applied before any upload that might open a snapshot by
// name; a new upload may depend on a send-parent the same pass is about to
// destroy, so uploads run before destroys; a local destroy that fails
// should never orphan a remote object, so destroys run before deletes.
package actions

import (
	"sort"
	"time"

	"snapvault/internal/backupkey"
	"snapvault/internal/model"
)

type RenameSnapshot struct {
	Store   model.SnapshotStore
	ID      int64
	NewName string
}

type UploadBackup struct {
	Source       model.SnapshotStore
	SnapshotID   int64
	SendParentID *int64
	Remote       model.Remote
	Key          string
}

type DestroySnapshot struct {
	Store model.SnapshotStore
	ID    int64
}

type DeleteBackup struct {
	Remote model.Remote
	Key    string
}

// Plan is the four action vectors in the order the executor must run them.
type Plan struct {
	Renames  []RenameSnapshot
	Uploads  []UploadBackup
	Destroys []DestroySnapshot
	Deletes  []DeleteBackup
}

// Compile turns an Assessment into a Plan, in loc for canonical naming.
// remotes is the full set of configured remotes a flagged-new snapshot
// must be uploaded to.
func Compile(a *model.Assessment, remotes []model.Remote, loc *time.Location) *Plan {
	plan := &Plan{}

	type renameItem struct {
		path string
		act  RenameSnapshot
	}
	var renames []renameItem

	type uploadItem struct {
		path string
		act  UploadBackup
	}
	var uploads []uploadItem

	type destroyItem struct {
		path string
		act  DestroySnapshot
	}
	var destroys []destroyItem

	for _, snap := range a.Snapshots {
		if snap.Info.UUID == model.ZeroUUID {
			// Proposed, not-yet-created snapshot: nothing to rename,
			// destroy, or directly reference by path yet.
			continue
		}
		path := snap.Source.PathOf(snap.Info.ID)

		if !snap.Meta.Kept() {
			destroys = append(destroys, destroyItem{
				path: path,
				act:  DestroySnapshot{Store: snap.Source, ID: snap.Info.ID},
			})
			continue
		}

		canonical := model.CanonicalSnapshotName(snap.SourceName, snap.Info, loc)
		if cur, err := snap.Source.CurrentName(snap.Info.ID); err != nil || cur != canonical {
			renames = append(renames, renameItem{
				path: path,
				act:  RenameSnapshot{Store: snap.Source, ID: snap.Info.ID, NewName: canonical},
			})
		}

		if snap.Meta.Flags&model.FlagNew != 0 {
			var sendParentID *int64
			if snap.SendParent != nil {
				id := snap.SendParent.ID
				sendParentID = &id
			}
			for _, remote := range remotes {
				bkey := model.BackupKey{RemoteID: remote.ID, UUID: snap.Info.UUID}
				if existing, ok := a.Backups[bkey]; ok && existing.Meta.Kept() {
					continue
				}
				info := model.BackupInfo{
					UUID:     snap.Info.UUID,
					Ctransid: snap.Info.Ctransid,
					Ctime:    snap.Info.Ctime,
				}
				if snap.SendParent != nil {
					info.SendParentUUID = snap.SendParent.UUID
				}
				uploads = append(uploads, uploadItem{
					path: path,
					act: UploadBackup{
						Source:       snap.Source,
						SnapshotID:   snap.Info.ID,
						SendParentID: sendParentID,
						Remote:       remote,
						Key:          backupkey.Encode(snap.SourceName, info),
					},
				})
			}
		}
	}

	var deletes []DeleteBackup
	for _, backup := range a.Backups {
		if !backup.Meta.Kept() {
			deletes = append(deletes, DeleteBackup{Remote: backup.Remote, Key: backup.ObjectKey})
		}
	}

	sort.Slice(renames, func(i, j int) bool { return renames[i].path < renames[j].path })
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].path < uploads[j].path })
	sort.Slice(destroys, func(i, j int) bool { return destroys[i].path < destroys[j].path })
	sort.Slice(deletes, func(i, j int) bool {
		if deletes[i].Remote.ID != deletes[j].Remote.ID {
			return deletes[i].Remote.ID < deletes[j].Remote.ID
		}
		return deletes[i].Key < deletes[j].Key
	})

	for _, r := range renames {
		plan.Renames = append(plan.Renames, r.act)
	}
	for _, u := range uploads {
		plan.Uploads = append(plan.Uploads, u.act)
	}
	for _, d := range destroys {
		plan.Destroys = append(plan.Destroys, d.act)
	}
	plan.Deletes = deletes

	return plan
}
