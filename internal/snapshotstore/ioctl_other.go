//go:build !linux

package snapshotstore

import "fmt"

func subvolumeIsReadOnly(path string) (bool, error) {
	return false, fmt.Errorf("snapshotstore: btrfs subvolume flags are only readable on linux")
}
