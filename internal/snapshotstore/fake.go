package snapshotstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/google/uuid"

	"snapvault/internal/model"
)

// Fake is an in-memory model.SnapshotStore used by tests, which never need
// to touch real btrfs.
type Fake struct {
	name     string
	nextID   int64
	snaps    map[int64]model.SnapshotInfo
	names    map[int64]string
	gone     map[int64]bool
	payloads map[int64][]byte
}

func NewFake(name string) *Fake {
	return &Fake{
		name:     name,
		snaps:    map[int64]model.SnapshotInfo{},
		names:    map[int64]string{},
		gone:     map[int64]bool{},
		payloads: map[int64][]byte{},
	}
}

func (f *Fake) Name() string { return f.name }

// Seed inserts a pre-existing snapshot directly, for test setup.
func (f *Fake) Seed(info model.SnapshotInfo, name string, payload []byte) int64 {
	f.nextID++
	id := f.nextID
	info.ID = id
	f.snaps[id] = info
	f.names[id] = name
	f.payloads[id] = payload
	return id
}

func (f *Fake) List() ([]model.SnapshotInfo, error) {
	var out []model.SnapshotInfo
	for id, info := range f.snaps {
		if f.gone[id] {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func (f *Fake) PathOf(id int64) string { return f.names[id] }

func (f *Fake) CurrentName(id int64) (string, error) {
	name, ok := f.names[id]
	if !ok {
		return "", fmt.Errorf("fake: unknown id %d", id)
	}
	return name, nil
}

func (f *Fake) CreateSnapshot(source model.Source, now int64) (model.SnapshotInfo, error) {
	f.nextID++
	id := f.nextID
	info := model.SnapshotInfo{
		ID:         id,
		UUID:       uuid.New(),
		ParentUUID: source.UUID,
		Ctransid:   source.Ctransid,
		Ctime:      now,
		Flags:      model.FlagReadOnly,
	}
	f.snaps[id] = info
	f.names[id] = model.ProposedSnapshotName(source.Name, int(id))
	f.payloads[id] = []byte(fmt.Sprintf("snapshot-%d-payload", id))
	return info, nil
}

func (f *Fake) RenameSnapshot(id int64, newName string) error {
	if _, ok := f.snaps[id]; !ok {
		return fmt.Errorf("fake: unknown id %d", id)
	}
	f.names[id] = newName
	return nil
}

func (f *Fake) DestroySnapshot(id int64) error {
	if _, ok := f.snaps[id]; !ok {
		return fmt.Errorf("fake: unknown id %d", id)
	}
	f.gone[id] = true
	return nil
}

func (f *Fake) Send(id int64, sendParentID *int64) (io.ReadCloser, error) {
	payload, ok := f.payloads[id]
	if !ok {
		return nil, fmt.Errorf("fake: unknown id %d", id)
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (f *Fake) VerifyUnchanged(id int64) error {
	if f.gone[id] {
		return fmt.Errorf("fake: snapshot %d destroyed", id)
	}
	if _, ok := f.snaps[id]; !ok {
		return fmt.Errorf("fake: unknown id %d", id)
	}
	return nil
}

func (f *Fake) Close() error { return nil }
