//go:build !unix

package storage

import "fmt"

// SameDevice is unsupported off unix.
func SameDevice(a, b string) (bool, error) {
	return false, fmt.Errorf("device detection is unsupported on this platform")
}
