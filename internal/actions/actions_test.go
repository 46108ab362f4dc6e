package actions

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"snapvault/internal/model"
)

type noopStore struct{ name string }

func (n *noopStore) Name() string                        { return n.name }
func (n *noopStore) List() ([]model.SnapshotInfo, error) { return nil, nil }
func (n *noopStore) PathOf(id int64) string              { return fmt.Sprintf("%s/%d", n.name, id) }
func (n *noopStore) CurrentName(id int64) (string, error) { return "", nil }
func (n *noopStore) CreateSnapshot(source model.Source, now int64) (model.SnapshotInfo, error) {
	return model.SnapshotInfo{}, nil
}
func (n *noopStore) RenameSnapshot(id int64, newName string) error { return nil }
func (n *noopStore) DestroySnapshot(id int64) error                { return nil }
func (n *noopStore) Send(id int64, sendParentID *int64) (io.ReadCloser, error) {
	return nil, nil
}
func (n *noopStore) VerifyUnchanged(id int64) error { return nil }
func (n *noopStore) Close() error                   { return nil }

func TestCompileSortsSnapshotsIntoRenameUploadAndDestroyVectors(t *testing.T) {
	loc := time.UTC
	store := &noopStore{name: "root"}
	remote := model.Remote{ID: "r1"}

	keptUUID := uuid.New()
	staleUUID := uuid.New()

	a := model.NewAssessment()
	a.Snapshots[keptUUID] = &model.AssessedSnapshot{
		Source:     store,
		SourceName: "root",
		Info:       model.SnapshotInfo{ID: 1, UUID: keptUUID, Ctransid: 10, Ctime: 1000},
		Meta:       model.KeepMeta{Reasons: model.ReasonPreserved, Flags: model.FlagNew},
	}
	a.Snapshots[staleUUID] = &model.AssessedSnapshot{
		Source:     store,
		SourceName: "root",
		Info:       model.SnapshotInfo{ID: 2, UUID: staleUUID, Ctransid: 5, Ctime: 500},
		Meta:       model.KeepMeta{}, // not kept
	}

	plan := Compile(a, []model.Remote{remote}, loc)

	if len(plan.Renames) != 1 {
		t.Fatalf("expected 1 rename, got %d", len(plan.Renames))
	}
	if len(plan.Uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(plan.Uploads))
	}
	if len(plan.Destroys) != 1 {
		t.Fatalf("expected 1 destroy, got %d", len(plan.Destroys))
	}
	if plan.Destroys[0].ID != 2 {
		t.Fatalf("expected destroy of stale snapshot, got id %d", plan.Destroys[0].ID)
	}
}

func TestCompileSkipsProposedSnapshot(t *testing.T) {
	store := &noopStore{name: "root"}
	a := model.NewAssessment()
	a.Snapshots[model.ZeroUUID] = &model.AssessedSnapshot{
		Source:     store,
		SourceName: "root",
		Info:       model.SnapshotInfo{UUID: model.ZeroUUID},
		Meta:       model.KeepMeta{Reasons: model.ReasonPreserved, Flags: model.FlagNew},
	}
	plan := Compile(a, nil, time.UTC)
	if len(plan.Renames) != 0 || len(plan.Uploads) != 0 {
		t.Fatalf("expected no actions for a not-yet-created snapshot, got %+v", plan)
	}
}

func TestCompileDeletesUnkeptBackups(t *testing.T) {
	remote := model.Remote{ID: "r1"}
	a := model.NewAssessment()
	bu := uuid.New()
	a.Backups[model.BackupKey{RemoteID: "r1", UUID: bu}] = &model.AssessedBackup{
		RemoteID:  "r1",
		Remote:    remote,
		ObjectKey: "root.data.u" + bu.String(),
		Meta:      model.KeepMeta{},
	}
	plan := Compile(a, nil, time.UTC)
	if len(plan.Deletes) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(plan.Deletes))
	}
}
