package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"snapvault/internal/model"
)

// minFreeBytes is the headroom a source's filesystem must have free before
// a pass proposes new snapshots; below this, snapshot creation is likely to
// fail partway through rather than atomically, so it is refused upfront.
const minFreeBytes = 256 << 20

// PreflightFilesystem checks that path sits on a btrfs mount with enough
// free space to accept a new snapshot, surfacing an Environment error
// (spec.md §7) before any side effect rather than letting the create call
// fail midway.
func PreflightFilesystem(path string) error {
	if !detectBtrfs(path) {
		return &model.EnvironmentError{Msg: fmt.Sprintf("%s is not on a btrfs filesystem", path)}
	}
	usage, err := disk.Usage(path)
	if err != nil {
		return &model.EnvironmentError{Msg: fmt.Sprintf("statfs %s", path), Cause: err}
	}
	if usage.Free < minFreeBytes {
		return &model.EnvironmentError{Msg: fmt.Sprintf("%s has only %d bytes free, need at least %d", path, usage.Free, uint64(minFreeBytes))}
	}
	return nil
}

// detectBtrfs reports whether path is mounted on a btrfs filesystem. It
// prefers findmnt, falling back to the longest-prefix-matching line in
// /proc/self/mounts when findmnt is unavailable.
func detectBtrfs(path string) bool {
	if _, err := exec.LookPath("findmnt"); err == nil {
		cmd := exec.Command("findmnt", "-n", "-o", "FSTYPE", "--target", path)
		out, err := cmd.Output()
		if err == nil {
			return strings.EqualFold(strings.TrimSpace(string(out)), "btrfs")
		}
	}
	return detectBtrfsFromProcMounts(path)
}

func detectBtrfsFromProcMounts(path string) bool {
	b, err := os.ReadFile("/proc/self/mounts")
	if err != nil {
		return false
	}
	bestLen := 0
	bestFstype := ""
	for _, ln := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		parts := strings.Fields(ln)
		if len(parts) < 3 {
			continue
		}
		mountPoint, fstype := parts[1], parts[2]
		if strings.HasPrefix(path, mountPoint) && len(mountPoint) > bestLen {
			bestLen = len(mountPoint)
			bestFstype = fstype
		}
	}
	return strings.EqualFold(bestFstype, "btrfs")
}
