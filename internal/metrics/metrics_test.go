package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfileProducesParsableOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapvault.prom")

	err := WriteTextfile(path, PassMetrics{
		Tuples:   2,
		Renamed:  3,
		Uploaded: 1,
		Failed:   false,
		Duration: 4.5,
	})
	if err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "snapvault_pass_tuples 2") {
		t.Fatalf("expected tuples gauge in output, got:\n%s", text)
	}
	if !strings.Contains(text, "snapvault_pass_renamed_total 3") {
		t.Fatalf("expected renamed counter in output, got:\n%s", text)
	}
	if strings.Contains(text, ".tmp") {
		t.Fatal("expected temp file to be renamed away, not left as .tmp")
	}
}

func TestWriteTextfileNoLeftoverTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapvault.prom")
	if err := WriteTextfile(path, PassMetrics{}); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "snapvault.prom" {
		t.Fatalf("expected exactly one file, got %v", entries)
	}
}
