// Package fsatomic provides durable, crash-safe JSON persistence and an
// advisory file lock. The CLI uses WithLock to serialize writes to the
// sqlite-backed history ledger; the metrics textfile is written by
// internal/metrics with its own temp-file-and-rename.
package fsatomic

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// SaveJSON atomically writes v as pretty JSON to path. It writes to
// path+".tmp", fsyncs the file and its parent directory, renames into
// place, then fsyncs the parent directory again. On any error the temp
// file is removed. If perm is 0, 0600 is used.
func SaveJSON(ctx context.Context, path string, v any, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o600
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(b); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := fsyncDir(filepath.Dir(path)); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	renamed := false
	for i := 0; i < 5; i++ {
		if err := os.Rename(tmp, path); err == nil {
			renamed = true
			break
		} else if runtime.GOOS == "windows" {
			_ = os.Remove(path)
			time.Sleep(time.Duration(10*(i+1)) * time.Millisecond)
			continue
		} else {
			_ = os.Remove(tmp)
			return err
		}
	}
	if !renamed {
		_ = os.Remove(tmp)
		return errors.New("fsatomic: rename failed after retries")
	}
	return fsyncDir(filepath.Dir(path))
}

// LoadJSON loads JSON from path into v. It returns exists=false if the
// file is missing. A stale path+".tmp" left behind by a crashed writer
// is removed first.
func LoadJSON(path string, v any) (bool, error) {
	_ = os.Remove(path + ".tmp")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// WithLock acquires an exclusive advisory lock at path+".lock" for the
// duration of fn, releasing it once fn returns. Use this to serialize a
// pass's history/metrics writes against a concurrently running pass.
func WithLock(path string, fn func() error) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	unlock, err := flockExclusive(path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// fsyncDir syncs a directory's metadata; a no-op on Windows.
func fsyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// FsyncDir exposes fsyncDir for callers that manage their own rename.
func FsyncDir(dir string) error { return fsyncDir(dir) }
