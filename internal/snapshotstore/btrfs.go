// Package snapshotstore implements model.SnapshotStore: the local-disk side
// of a pass. BtrfsStore shells out to the btrfs CLI the way the rest of
// this codebase's ancestry talks to btrfs, and reads subvolume flags via a
// direct BTRFS_IOC_SUBVOL_GETFLAGS ioctl since the CLI doesn't expose the
// read-only bit in a script-friendly form.
package snapshotstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"snapvault/internal/model"
)

// SourceInfo is what QuerySource reads about a source subvolume — its own
// uuid and current transaction id, read once via "btrfs subvolume show" —
// for the caller to build a model.Source from.
type SourceInfo struct {
	UUID     model.UUID16
	Ctransid int64
}

type BtrfsStore struct {
	logger  zerolog.Logger
	name    string
	dir     string // snapshot directory, e.g. /mnt/pool/.snapshots/root
	byID    map[int64]string
}

// NewBtrfs returns a store for a source's snapshot directory, creating the
// directory if it is missing. Existing subvolumes are indexed by List.
func NewBtrfs(logger zerolog.Logger, name, dir string) (*BtrfsStore, error) {
	s := &BtrfsStore{
		logger: logger.With().Str("component", "snapshotstore").Str("source", name).Logger(),
		name:   name,
		dir:    dir,
		byID:   map[int64]string{},
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &model.EnvironmentError{Msg: "create snapshot directory " + dir, Cause: err}
	}
	return s, nil
}

func (s *BtrfsStore) Name() string { return s.name }

func (s *BtrfsStore) PathOf(id int64) string {
	if name, ok := s.byID[id]; ok {
		return filepath.Join(s.dir, name)
	}
	return ""
}

func (s *BtrfsStore) CurrentName(id int64) (string, error) {
	name, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("snapshotstore: no snapshot with id %d", id)
	}
	return name, nil
}

// List enumerates every read-only subvolume directly under the snapshot
// directory, via "btrfs subvolume list" for the id and path of each entry,
// "btrfs subvolume show" for its uuid, parent uuid, ctime and transid, and
// the flags ioctl for the read-only bit.
func (s *BtrfsStore) List() ([]model.SnapshotInfo, error) {
	cmd := exec.Command("btrfs", "subvolume", "list", "-o", "-u", "-q", s.dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &model.EnvironmentError{Msg: "btrfs subvolume list " + s.dir, Cause: fmt.Errorf("%w: %s", err, out)}
	}

	var infos []model.SnapshotInfo
	s.byID = map[int64]string{}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		id, name, err := parseSubvolumeListLine(line)
		if err != nil {
			s.logger.Warn().Str("line", line).Err(err).Msg("skipping unparseable subvolume list line")
			continue
		}
		path := filepath.Join(s.dir, name)

		info, err := s.showSubvolume(path)
		if err != nil {
			s.logger.Warn().Str("path", path).Err(err).Msg("skipping subvolume that could not be inspected")
			continue
		}
		info.ID = id
		if !info.ReadOnly() {
			continue
		}
		s.byID[id] = name
		infos = append(infos, info)
	}
	return infos, nil
}

func parseSubvolumeListLine(line string) (int64, string, error) {
	fields := strings.Fields(line)
	var id int64
	var name string
	for i := 0; i < len(fields); i++ {
		if fields[i] == "ID" && i+1 < len(fields) {
			v, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("bad subvolume id: %w", err)
			}
			id = v
		}
		if fields[i] == "path" && i+1 < len(fields) {
			name = filepath.Base(strings.Join(fields[i+1:], " "))
		}
	}
	if name == "" {
		return 0, "", fmt.Errorf("no path field in subvolume list line")
	}
	return id, name, nil
}

func (s *BtrfsStore) showSubvolume(path string) (model.SnapshotInfo, error) {
	return showSubvolume(path)
}

func showSubvolume(path string) (model.SnapshotInfo, error) {
	var info model.SnapshotInfo

	cmd := exec.Command("btrfs", "subvolume", "show", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return info, fmt.Errorf("btrfs subvolume show: %w: %s", err, out)
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "UUID:"):
			u, err := uuid.Parse(strings.TrimSpace(strings.TrimPrefix(line, "UUID:")))
			if err == nil {
				info.UUID = u
			}
		case strings.HasPrefix(line, "Parent UUID:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "Parent UUID:"))
			if v != "-" {
				if u, err := uuid.Parse(v); err == nil {
					info.ParentUUID = u
				}
			}
		case strings.HasPrefix(line, "Creation time:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "Creation time:"))
			if t, err := parseBtrfsTime(v); err == nil {
				info.Ctime = t
			}
		case strings.HasPrefix(line, "Transid:") || strings.HasPrefix(line, "Generation:"):
			fields := strings.Fields(line)
			if len(fields) > 0 {
				if v, err := strconv.ParseInt(fields[len(fields)-1], 10, 64); err == nil {
					info.Ctransid = v
				}
			}
		}
	}

	if readOnly, err := subvolumeIsReadOnly(path); err == nil && readOnly {
		info.Flags |= model.FlagReadOnly
	}

	return info, nil
}

// QuerySource reads a live subvolume's uuid and current transaction id, the
// information a caller must supply when constructing a model.Source.
func QuerySource(path string) (SourceInfo, error) {
	info, err := showSubvolume(path)
	if err != nil {
		return SourceInfo{}, err
	}
	return SourceInfo{UUID: info.UUID, Ctransid: info.Ctransid}, nil
}

// CreateSnapshot takes a fresh read-only snapshot of source.Path into a
// transient name, which the action compiler's rename step later replaces
// with the canonical name.
func (s *BtrfsStore) CreateSnapshot(source model.Source, now int64) (model.SnapshotInfo, error) {
	name := model.ProposedSnapshotName(source.Name, os.Getpid())
	dst := filepath.Join(s.dir, name)

	cmd := exec.Command("btrfs", "subvolume", "snapshot", "-r", source.Path, dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return model.SnapshotInfo{}, &model.EnvironmentError{Msg: "btrfs subvolume snapshot", Cause: fmt.Errorf("%w: %s", err, out)}
	}

	info, err := s.showSubvolume(dst)
	if err != nil {
		return model.SnapshotInfo{}, err
	}
	// Re-list so the new snapshot carries its subvolume id and is tracked
	// for the rename, send and destroy calls that address it by id.
	listed, err := s.List()
	if err != nil {
		return model.SnapshotInfo{}, err
	}
	for _, l := range listed {
		if l.UUID == info.UUID {
			return l, nil
		}
	}
	return model.SnapshotInfo{}, fmt.Errorf("snapshotstore: new snapshot %s not found in listing", dst)
}

func (s *BtrfsStore) RenameSnapshot(id int64, newName string) error {
	oldName, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("snapshotstore: rename of unknown id %d", id)
	}
	oldPath := filepath.Join(s.dir, oldName)
	newPath := filepath.Join(s.dir, newName)
	if err := os.Rename(oldPath, newPath); err != nil {
		return &model.EnvironmentError{Msg: "rename " + oldPath + " to " + newPath, Cause: err}
	}
	s.byID[id] = newName
	return nil
}

func (s *BtrfsStore) DestroySnapshot(id int64) error {
	name, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("snapshotstore: destroy of unknown id %d", id)
	}
	path := filepath.Join(s.dir, name)
	cmd := exec.Command("btrfs", "subvolume", "delete", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return &model.EnvironmentError{Msg: "btrfs subvolume delete " + path, Cause: fmt.Errorf("%w: %s", err, out)}
	}
	delete(s.byID, id)
	return nil
}

// Send streams an incremental (or full, if sendParentID is nil) btrfs send
// of id.
func (s *BtrfsStore) Send(id int64, sendParentID *int64) (io.ReadCloser, error) {
	name, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("snapshotstore: send of unknown id %d", id)
	}
	path := filepath.Join(s.dir, name)

	args := []string{"send"}
	if sendParentID != nil {
		parentName, ok := s.byID[*sendParentID]
		if !ok {
			return nil, fmt.Errorf("snapshotstore: send parent id %d not found", *sendParentID)
		}
		args = append(args, "-p", filepath.Join(s.dir, parentName))
	}
	args = append(args, path)

	cmd := exec.Command("btrfs", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: pipe btrfs send: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("snapshotstore: start btrfs send: %w", err)
	}

	return &sendStream{stdout: stdout, cmd: cmd, stderr: stderr}, nil
}

type sendStream struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (s *sendStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *sendStream) Close() error {
	s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("btrfs send: %w: %s", err, s.stderr.String())
	}
	return nil
}

// VerifyUnchanged re-reads the subvolume id is supposed to name and checks
// it still resolves to the same name this store last saw for it, catching
// a concurrent rename or destroy out from under an in-flight upload.
func (s *BtrfsStore) VerifyUnchanged(id int64) error {
	name, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("snapshotstore: id %d no longer tracked", id)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return &model.EnvironmentError{Msg: "snapshot " + path + " is gone", Cause: err}
	}
	return nil
}

func (s *BtrfsStore) Close() error { return nil }

func parseBtrfsTime(s string) (int64, error) {
	// "Creation time:	2024-06-10 08:00:00 -0700" — parse with a fixed
	// layout, tolerating btrfs-progs' variable number of spaces.
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return 0, fmt.Errorf("unexpected creation time format %q", s)
	}
	joined := fields[0] + " " + fields[1] + " " + fields[2]
	t, err := time.Parse("2006-01-02 15:04:05 -0700", joined)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
