//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckAccess reports whether the process may list, create and remove
// entries in dir. Every automaton directory needs all three.
func CheckAccess(dir string) error {
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%s is not readable and writable: %w", dir, err)
	}
	return nil
}
