//go:build linux

package snapshotstore

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BTRFS_IOC_SUBVOL_GETFLAGS is _IOR(BTRFS_IOCTL_MAGIC, 25, __u64), computed
// by hand since golang.org/x/sys doesn't expose btrfs's ioctl constants.
const (
	btrfsIoctlMagic   = 0x94
	btrfsSubvolRDOnly = 1 << 1

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocRead = 2
)

func ioR(typ, nr, size uintptr) uintptr {
	return (iocRead << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

var btrfsIocSubvolGetflags = ioR(btrfsIoctlMagic, 25, 8)

// subvolumeIsReadOnly queries the BTRFS_SUBVOL_RDONLY flag directly via
// ioctl rather than parsing "btrfs property get", since the CLI's output
// format for the ro property has changed across btrfs-progs versions.
func subvolumeIsReadOnly(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var flags uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), btrfsIocSubvolGetflags, uintptr(unsafe.Pointer(&flags)))
	if errno != 0 {
		return false, fmt.Errorf("BTRFS_IOC_SUBVOL_GETFLAGS %s: %w", path, errno)
	}
	return flags&btrfsSubvolRDOnly != 0, nil
}
