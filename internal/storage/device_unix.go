//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SameDevice reports whether a and b (or their nearest existing parents) live
// on the same device, i.e. whether a rename between them can succeed.
func SameDevice(a, b string) (bool, error) {
	da, err := deviceOf(a)
	if err != nil {
		return false, err
	}
	db, err := deviceOf(b)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

func deviceOf(path string) (uint64, error) {
	existing, err := NearestExistingPath(path)
	if err != nil {
		return 0, err
	}
	var st unix.Stat_t
	if err := unix.Stat(existing, &st); err != nil {
		return 0, fmt.Errorf("stat %q: %w", existing, err)
	}
	return uint64(st.Dev), nil
}
