// Package fsutil provides the move primitive used for staging and routing.
//
// A move is a rename when source and destination share a filesystem. Across
// filesystems it degrades to a BLAKE3-verified copy followed by removal of the
// source, so a file is never left in both places after a successful call.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/zeebo/blake3"
)

// ErrDestinationExists is returned when a move would overwrite an existing path.
var ErrDestinationExists = errors.New("destination already exists")

// ConflictPolicy decides what happens when the destination name is taken.
type ConflictPolicy int

const (
	// ConflictFail refuses to overwrite and returns ErrDestinationExists.
	ConflictFail ConflictPolicy = iota
	// ConflictRename picks the first free "<name>.N<ext>" sibling.
	ConflictRename
)

// ParseConflictPolicy maps a config value to a ConflictPolicy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return ConflictFail, nil
	case "rename":
		return ConflictRename, nil
	default:
		return ConflictFail, fmt.Errorf("unknown conflict policy %q (want fail or rename)", s)
	}
}

func (p ConflictPolicy) String() string {
	if p == ConflictRename {
		return "rename"
	}
	return "fail"
}

// rename is swapped in tests to simulate cross-device moves.
var rename = os.Rename

// Move relocates src to dst. dst must not exist.
func Move(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("move %s: %w: %s", src, ErrDestinationExists, dst)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat destination %s: %w", dst, err)
	}

	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		err = copyTree(src, dst)
	} else {
		err = CopyFileVerified(src, dst)
	}
	if err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("cross-device copy %s: %w", src, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// MoveInto moves src into dir keeping its base name and returns the new path.
func MoveInto(src, dir string, policy ConflictPolicy) (string, error) {
	dst := filepath.Join(dir, filepath.Base(src))
	if policy == ConflictRename {
		free, err := FreePath(dst)
		if err != nil {
			return "", err
		}
		dst = free
	}
	if err := Move(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// FreePath returns path if nothing exists there, otherwise the first
// "<stem>.N<ext>" that is free.
func FreePath(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	} else if err != nil {
		return "", err
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, stem+"."+strconv.Itoa(i)+ext)
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// CopyFileVerified streams src to dst, then re-reads dst from disk and
// compares its size and BLAKE3 digest with what was read from src. Removes
// dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := blake3.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if err := out.Sync(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := verifyCopy(dst, written, srcHasher.Sum(nil)); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// verifyCopy hashes dst as stored on disk.
func verifyCopy(dst string, wantSize int64, wantSum []byte) error {
	f, err := os.Open(dst)
	if err != nil {
		return fmt.Errorf("reopen copy: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return fmt.Errorf("read back copy: %w", err)
	}
	if n != wantSize {
		return fmt.Errorf("copy size mismatch: expected %d bytes, found %d bytes on disk", wantSize, n)
	}
	if !bytes.Equal(h.Sum(nil), wantSum) {
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.Mkdir(target, info.Mode().Perm())
		case info.Mode().IsRegular():
			return CopyFileVerified(path, target)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return fmt.Errorf("unsupported file type for %q (%s)", path, info.Mode().Type())
		}
	})
}
