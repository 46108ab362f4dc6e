// Package planner orchestrates one assessment pass: it reads every source's
// snapshots and every remote's backups, proposes a new snapshot where the
// current generation is missing, runs the resolver, and assembles the
// result into an Assessment the action compiler can turn into work.
package planner

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"snapvault/internal/backupkey"
	"snapvault/internal/index"
	"snapvault/internal/model"
	"snapvault/internal/resolver"
	"snapvault/internal/retention"
)

// ConfigTuple is one source paired with its local store, its upload
// targets, and the retention policy that governs it — the unit of work the
// planner iterates over.
type ConfigTuple struct {
	Source        model.Source
	SnapshotStore model.SnapshotStore
	Remotes       []model.Remote
	Policy        *retention.RetentionPolicy
}

// Planner runs assessment passes over a set of configured tuples.
type Planner struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Planner {
	return &Planner{logger: logger.With().Str("component", "planner").Logger()}
}

// Assess runs one assessment pass across every tuple and merges the result
// into a single Assessment. A source whose current-generation snapshot is
// missing gets a new read-only snapshot created through its SnapshotStore
// before the resolver runs; DestroyProposed removes it again if the pass
// is declined.
func (p *Planner) Assess(tuples []ConfigTuple, now int64) (*model.Assessment, []string, error) {
	out := model.NewAssessment()
	var warnings []string

	for _, tuple := range tuples {
		snaps, err := tuple.SnapshotStore.List()
		if err != nil {
			return nil, nil, fmt.Errorf("planner: listing snapshots for %s: %w", tuple.Source.Name, err)
		}

		if noCurrentGeneration(snaps, tuple.Source) {
			created, err := tuple.SnapshotStore.CreateSnapshot(tuple.Source, now)
			if err != nil {
				return nil, nil, fmt.Errorf("planner: creating snapshot for %s: %w", tuple.Source.Name, err)
			}
			snaps = append(snaps, created)
		}

		backupsByRemote := make(map[string][]model.BackupInfo, len(tuple.Remotes))
		remoteByID := make(map[string]model.Remote, len(tuple.Remotes))
		objectKeyByRemoteUUID := make(map[string]map[model.UUID16]string, len(tuple.Remotes))
		prefix := tuple.Source.Name

		for _, remote := range tuple.Remotes {
			remoteByID[remote.ID] = remote
			objects, err := remote.Store.List(prefix + ".")
			if err != nil {
				return nil, nil, fmt.Errorf("planner: listing backups on %s for %s: %w", remote.ID, tuple.Source.Name, err)
			}
			infos := make([]model.BackupInfo, 0, len(objects))
			keys := make(map[model.UUID16]string, len(objects))
			for _, obj := range objects {
				info, err := backupkey.Decode(obj.Key)
				if err != nil {
					// Malformed key: not this planner's object, silently
					// skipped rather than treated as an error.
					continue
				}
				infos = append(infos, info)
				keys[info.UUID] = obj.Key
			}
			backupsByRemote[remote.ID] = infos
			objectKeyByRemoteUUID[remote.ID] = keys
		}

		res := resolver.Resolve(tuple.Policy, snaps, backupsByRemote)
		warnings = append(warnings, res.Warnings...)

		snapByUUID := make(map[model.UUID16]model.SnapshotInfo, len(snaps))
		for _, s := range snaps {
			snapByUUID[s.UUID] = s
		}

		for id, meta := range res.Snapshots {
			info, ok := snapByUUID[id]
			if !ok {
				continue
			}
			assessed := &model.AssessedSnapshot{
				Source:     tuple.SnapshotStore,
				SourceName: tuple.Source.Name,
				Info:       info,
				Meta:       meta,
			}
			if meta.Flags&model.FlagNew != 0 {
				assessed.SendParent = findSendParent(info, snaps, tuple.Policy)
			}
			out.Snapshots[id] = assessed
		}

		for key, meta := range res.Backups {
			remote := remoteByID[key.RemoteID]
			var info model.BackupInfo
			for _, candidates := range backupsByRemote[key.RemoteID] {
				if candidates.UUID == key.UUID {
					info = candidates
					break
				}
			}
			out.Backups[model.BackupKey{RemoteID: key.RemoteID, UUID: key.UUID}] = &model.AssessedBackup{
				RemoteID:   key.RemoteID,
				Remote:     remote,
				SourceName: tuple.Source.Name,
				ObjectKey:  objectKeyByRemoteUUID[key.RemoteID][key.UUID],
				Info:       info,
				Meta:       meta,
			}
		}
	}

	return out, warnings, nil
}

// findSendParent walks s's buckets from the coarsest enabled timeframe
// down to the finest, and returns the first nominal snapshot found in any
// of them that isn't s itself. If the search never finds one before
// reaching s, the backup must be sent in full.
func findSendParent(s model.SnapshotInfo, all []model.SnapshotInfo, policy *retention.RetentionPolicy) *model.SnapshotInfo {
	idx := index.New(all, policy.Enabled(), policy.Location())
	for _, bucket := range policy.BucketsFor(s.Ctime) {
		nominal, ok := idx.Nominal(bucket)
		if !ok {
			continue
		}
		if nominal.UUID == s.UUID {
			continue
		}
		found := nominal
		return &found
	}
	return nil
}

// noCurrentGeneration reports whether any listed snapshot already reflects
// the source's current ctransid — if not, a fresh snapshot is proposed.
func noCurrentGeneration(snaps []model.SnapshotInfo, source model.Source) bool {
	for _, s := range snaps {
		if s.ParentUUID == source.UUID && s.Ctransid >= source.Ctransid {
			return false
		}
	}
	return true
}

// DestroyProposed destroys every snapshot of sourceName in the assessment
// that is flagged New and still carries its transient proposed name (see
// model.ProposedSnapshotName), i.e. one created by a pass and not renamed
// since, regardless of whether the resolver ended up keeping it. Existing
// snapshots that are flagged New only because they still need a backup
// keep their canonical name and are left alone. Used when a pass is
// aborted after the snapshot side effect of Assess but before the rest of
// the plan is applied.
func DestroyProposed(a *model.Assessment, sourceName string) error {
	for id, s := range a.Snapshots {
		if s.SourceName != sourceName || s.Meta.Flags&model.FlagNew == 0 {
			continue
		}
		if name, err := s.Source.CurrentName(s.Info.ID); err != nil || !strings.HasPrefix(name, sourceName+".NEW.") {
			continue
		}
		if err := s.Source.DestroySnapshot(s.Info.ID); err != nil {
			return fmt.Errorf("planner: destroy proposed snapshot %d: %w", s.Info.ID, err)
		}
		delete(a.Snapshots, id)
	}
	return nil
}
