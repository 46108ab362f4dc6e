package executor

import (
	"io"
	"os"
)

// spoolToTempFile copies r into a temp file under dir (the system default
// temp dir when empty), giving the caller a seekable, re-readable handle and
// a known size in place of a pipe that can only be read once. The caller
// owns closing and removing the returned file via removeStaged.
func spoolToTempFile(dir string, r io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp(dir, "snapvault-upload-*.tmp")
	if err != nil {
		return nil, 0, err
	}
	size, err := io.Copy(f, r)
	if err != nil {
		removeStaged(f)
		return nil, 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		removeStaged(f)
		return nil, 0, err
	}
	return f, size, nil
}

func removeStaged(f *os.File) {
	name := f.Name()
	f.Close()
	os.Remove(name)
}
