package backupkey

import (
	"testing"

	"github.com/google/uuid"

	"snapvault/internal/model"
)

func TestEncodeDecodeRoundTripFull(t *testing.T) {
	info := model.BackupInfo{
		UUID:           uuid.New(),
		ParentUUID:     model.ZeroUUID,
		SendParentUUID: model.ZeroUUID,
		Ctransid:       123,
		Ctime:          1_700_000_000,
	}
	key := Encode("root.data", info)
	got, err := Decode(key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.UUID != info.UUID || got.Ctransid != info.Ctransid || got.Ctime != info.Ctime {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, info)
	}
	if !got.Full() {
		t.Fatal("expected decoded info to be a full backup")
	}
}

func TestEncodeDecodeRoundTripIncremental(t *testing.T) {
	info := model.BackupInfo{
		UUID:           uuid.New(),
		ParentUUID:     uuid.New(),
		SendParentUUID: uuid.New(),
		Ctransid:       456,
		Ctime:          1_700_000_500,
	}
	key := Encode("root.data", info)
	got, err := Decode(key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Full() {
		t.Fatal("expected decoded info to be incremental")
	}
	if got.SendParentUUID != info.SendParentUUID {
		t.Fatalf("send parent mismatch: got %v want %v", got.SendParentUUID, info.SendParentUUID)
	}
	if got.ParentUUID != info.ParentUUID {
		t.Fatalf("parent mismatch: got %v want %v", got.ParentUUID, info.ParentUUID)
	}
}

func TestDecodePermutationInvariant(t *testing.T) {
	info := model.BackupInfo{
		UUID:           uuid.New(),
		SendParentUUID: uuid.New(),
		Ctransid:       789,
		Ctime:          1_700_001_000,
	}
	// Build the same fields in a different order than Encode would.
	key := "root.data.i789.u" + info.UUID.String() + ".t1700001000.s" + info.SendParentUUID.String()
	got, err := Decode(key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.UUID != info.UUID || got.SendParentUUID != info.SendParentUUID || got.Ctransid != info.Ctransid {
		t.Fatalf("permutation decode mismatch: got %+v", got)
	}
}

func TestDecodeMissingParameterIsError(t *testing.T) {
	if _, err := Decode("root.data.i123.ufoo"); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if _, err := Decode("root.data.t1700001000.i123"); err != ErrIncomplete {
		t.Fatalf("expected ErrIncomplete for missing uuid, got %v", err)
	}
}

func TestDecodeZeroUUIDSendParentIsFull(t *testing.T) {
	info := model.BackupInfo{
		UUID:           uuid.New(),
		SendParentUUID: model.ZeroUUID,
		Ctransid:       1,
		Ctime:          1_700_000_000,
	}
	key := Encode("root.data", info)
	got, err := Decode(key)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Full() {
		t.Fatal("zero-uuid send parent must decode as a full backup")
	}
}
