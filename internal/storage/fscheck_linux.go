//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Magic numbers from statfs(2).
const (
	linuxNFSMagic   = 0x6969
	linuxCIFSMagic  = 0xFF534D42
	linuxSMBMagic   = 0x517B
	linuxSMB2Magic  = 0xFE534D42
	linuxExt4Magic  = 0xEF53
	linuxTmpfsMagic = 0x01021994
	linuxXFSMagic   = 0x58465342
	linuxBtrfsMagic = 0x9123683E
	linuxOverlay    = 0x794C7630
)

var linuxFilesystemNames = map[uint64]string{
	linuxNFSMagic:   "nfs",
	linuxCIFSMagic:  "cifs",
	linuxSMBMagic:   "smbfs",
	linuxSMB2Magic:  "smb2",
	linuxExt4Magic:  "ext4",
	linuxTmpfsMagic: "tmpfs",
	linuxXFSMagic:   "xfs",
	linuxBtrfsMagic: "btrfs",
	linuxOverlay:    "overlay",
}

func detectFilesystemType(path string) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}

	magic := uint64(stat.Type)
	if name, ok := linuxFilesystemNames[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
