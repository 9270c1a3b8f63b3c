//go:build !unix

package storage

// CheckAccess is a no-op off unix; failures surface when the directory is used.
func CheckAccess(dir string) error {
	return nil
}
