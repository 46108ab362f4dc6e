package planner

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapvault/internal/backupkey"
	"snapvault/internal/model"
	"snapvault/internal/retention"
)

type fakeStore struct {
	name    string
	snaps   []model.SnapshotInfo
	nextID  int64
	created []model.SnapshotInfo
}

func (f *fakeStore) Name() string                        { return f.name }
func (f *fakeStore) List() ([]model.SnapshotInfo, error) { return f.snaps, nil }
func (f *fakeStore) PathOf(id int64) string              { return "" }
func (f *fakeStore) CurrentName(id int64) (string, error) { return "", nil }
func (f *fakeStore) CreateSnapshot(source model.Source, now int64) (model.SnapshotInfo, error) {
	f.nextID++
	info := model.SnapshotInfo{
		ID:         f.nextID,
		UUID:       uuid.New(),
		ParentUUID: source.UUID,
		Ctransid:   source.Ctransid,
		Ctime:      now,
		Flags:      model.FlagReadOnly,
	}
	f.created = append(f.created, info)
	return info, nil
}
func (f *fakeStore) RenameSnapshot(id int64, newName string) error { return nil }
func (f *fakeStore) DestroySnapshot(id int64) error                { return nil }
func (f *fakeStore) Send(id int64, sendParentID *int64) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeStore) VerifyUnchanged(id int64) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

type fakeObjectStore struct {
	objects []model.ObjectStat
}

func (f *fakeObjectStore) Name() string { return "fake" }
func (f *fakeObjectStore) List(prefix string) ([]model.ObjectStat, error) {
	var out []model.ObjectStat
	for _, o := range f.objects {
		if len(o.Key) >= len(prefix) && o.Key[:len(prefix)] == prefix {
			out = append(out, o)
		}
	}
	return out, nil
}
func (f *fakeObjectStore) Put(key string, r io.Reader, size int64) error { return nil }
func (f *fakeObjectStore) PutMultipart(key string, r io.Reader) error    { return nil }
func (f *fakeObjectStore) Delete(key string) error                      { return nil }

func TestAssessProposesSnapshotWhenNoneCurrent(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	source := model.Source{Name: "root", UUID: uuid.New(), Ctransid: 500}

	tuple := ConfigTuple{
		Source:        source,
		SnapshotStore: &fakeStore{name: "root", snaps: nil},
		Remotes:       []model.Remote{{ID: "r1", Store: &fakeObjectStore{}}},
		Policy:        retention.NewRetentionPolicy(retention.RetentionParams{Days: 1}, now, loc),
	}

	store := tuple.SnapshotStore.(*fakeStore)

	p := New(zerolog.Nop())
	assessment, _, err := p.Assess([]ConfigTuple{tuple}, now)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected the planner to create exactly one snapshot, created %d", len(store.created))
	}
	proposed, ok := assessment.Snapshots[store.created[0].UUID]
	if !ok {
		t.Fatal("expected the newly created snapshot in the assessment")
	}
	if proposed.Meta.Flags&model.FlagNew == 0 {
		t.Fatalf("expected proposed snapshot flagged new, got %+v", proposed.Meta)
	}
}

// TestAssessSkipsProposalWhenCurrentGenerationExists covers the second pass
// of spec.md §8 scenario 1: once a snapshot reflecting the source's current
// ctransid exists, re-running Assess against an unchanged filesystem must
// not create another one.
func TestAssessSkipsProposalWhenCurrentGenerationExists(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	source := model.Source{Name: "root", UUID: uuid.New(), Ctransid: 500}

	current := model.SnapshotInfo{
		ID:         1,
		UUID:       uuid.New(),
		ParentUUID: source.UUID,
		Ctransid:   source.Ctransid,
		Ctime:      now - 10,
		Flags:      model.FlagReadOnly,
	}

	tuple := ConfigTuple{
		Source:        source,
		SnapshotStore: &fakeStore{name: "root", snaps: []model.SnapshotInfo{current}},
		Remotes:       []model.Remote{{ID: "r1", Store: &fakeObjectStore{}}},
		Policy:        retention.NewRetentionPolicy(retention.RetentionParams{Days: 1}, now, loc),
	}

	store := tuple.SnapshotStore.(*fakeStore)

	p := New(zerolog.Nop())
	if _, _, err := p.Assess([]ConfigTuple{tuple}, now); err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("expected no snapshot to be created when the current generation already exists, created %d", len(store.created))
	}
}

func TestAssessDecodesBackupsFromListing(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	source := model.Source{Name: "root", UUID: uuid.New(), Ctransid: 123}

	snapUUID := uuid.New()
	snap := model.SnapshotInfo{UUID: snapUUID, ParentUUID: source.UUID, Ctransid: 123, Ctime: now - 1000}

	backup := model.BackupInfo{UUID: snapUUID, Ctransid: 123, Ctime: snap.Ctime, SendParentUUID: model.ZeroUUID}
	key := backupkey.Encode("root", backup)

	tuple := ConfigTuple{
		Source:        source,
		SnapshotStore: &fakeStore{name: "root", snaps: []model.SnapshotInfo{snap}},
		Remotes:       []model.Remote{{ID: "r1", Store: &fakeObjectStore{objects: []model.ObjectStat{{Key: key, Size: 100}}}}},
		Policy:        retention.NewRetentionPolicy(retention.RetentionParams{Days: 1}, now, loc),
	}

	p := New(zerolog.Nop())
	assessment, _, err := p.Assess([]ConfigTuple{tuple}, now)
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	bkey := model.BackupKey{RemoteID: "r1", UUID: snapUUID}
	ab, ok := assessment.Backups[bkey]
	if !ok {
		t.Fatal("expected decoded backup in assessment")
	}
	if !ab.Meta.Kept() {
		t.Fatalf("expected backup kept, got %+v", ab.Meta)
	}
}

func TestAssessSilentlySkipsMalformedKeys(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, loc).Unix()
	source := model.Source{Name: "root", UUID: uuid.New(), Ctransid: 1}

	tuple := ConfigTuple{
		Source:        source,
		SnapshotStore: &fakeStore{name: "root", snaps: nil},
		Remotes:       []model.Remote{{ID: "r1", Store: &fakeObjectStore{objects: []model.ObjectStat{{Key: "root.garbage", Size: 1}}}}},
		Policy:        retention.NewRetentionPolicy(retention.RetentionParams{Days: 1}, now, loc),
	}

	p := New(zerolog.Nop())
	_, _, err := p.Assess([]ConfigTuple{tuple}, now)
	if err != nil {
		t.Fatalf("Assess should not error on malformed keys: %v", err)
	}
}
