package snapshotstore

import (
	"io"
	"testing"

	"github.com/google/uuid"

	"snapvault/internal/model"
)

func TestParseSubvolumeListLine(t *testing.T) {
	line := "ID 302 gen 481 top level 5 path .snapshots/root.NEW.1234"
	id, name, err := parseSubvolumeListLine(line)
	if err != nil {
		t.Fatalf("parseSubvolumeListLine: %v", err)
	}
	if id != 302 {
		t.Fatalf("id = %d, want 302", id)
	}
	if name != "root.NEW.1234" {
		t.Fatalf("name = %q, want root.NEW.1234", name)
	}
}

func TestParseSubvolumeListLineRejectsMissingPath(t *testing.T) {
	if _, _, err := parseSubvolumeListLine("ID 302 gen 481 top level 5"); err == nil {
		t.Fatal("expected an error for a line with no path field")
	}
}

func TestParseBtrfsTime(t *testing.T) {
	ts, err := parseBtrfsTime("2024-06-10 08:00:00 -0700")
	if err != nil {
		t.Fatalf("parseBtrfsTime: %v", err)
	}
	if ts <= 0 {
		t.Fatalf("expected a positive unix timestamp, got %d", ts)
	}
}

func TestFakeCreateRenameDestroyLifecycle(t *testing.T) {
	f := NewFake("root")
	source := model.Source{Name: "root", UUID: uuid.New(), Ctransid: 42}

	info, err := f.CreateSnapshot(source, 1_700_000_000)
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	if err := f.RenameSnapshot(info.ID, "root.canonical.42"); err != nil {
		t.Fatalf("RenameSnapshot: %v", err)
	}
	if f.PathOf(info.ID) != "root.canonical.42" {
		t.Fatalf("PathOf = %q", f.PathOf(info.ID))
	}

	r, err := f.Send(info.ID, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	data, _ := io.ReadAll(r)
	if len(data) == 0 {
		t.Fatal("expected non-empty send payload")
	}

	if err := f.VerifyUnchanged(info.ID); err != nil {
		t.Fatalf("VerifyUnchanged before destroy: %v", err)
	}

	if err := f.DestroySnapshot(info.ID); err != nil {
		t.Fatalf("DestroySnapshot: %v", err)
	}
	if err := f.VerifyUnchanged(info.ID); err == nil {
		t.Fatal("expected VerifyUnchanged to fail after destroy")
	}

	list, err := f.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, s := range list {
		if s.ID == info.ID {
			t.Fatal("destroyed snapshot must not appear in List")
		}
	}
}
