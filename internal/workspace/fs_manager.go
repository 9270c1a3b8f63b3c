package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FSManager manages workspace directories on local disk.
type FSManager struct {
	root   string
	prefix string
	now    func() time.Time
}

var _ Manager = (*FSManager)(nil)

// NewFSManager creates a filesystem-backed workspace manager rooted at root.
// An empty prefix selects DefaultPrefix.
func NewFSManager(root, prefix string) (*FSManager, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace root directory is empty")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if strings.ContainsAny(prefix, `/\`) {
		return nil, fmt.Errorf("workspace prefix %q must not contain path separators", prefix)
	}

	return &FSManager{
		root:   filepath.Clean(trimmed),
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Root returns the directory workspaces are created under.
func (m *FSManager) Root() string { return m.root }

// Create initializes a workspace. The name carries a random suffix chosen by
// os.MkdirTemp, which creates it exclusively so two workspaces never collide.
func (m *FSManager) Create(ctx context.Context) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace root: %w", err)
	}

	dir, err := os.MkdirTemp(m.root, m.prefix)
	if err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}

	ws := layout(dir)
	for _, sub := range []string{ws.In, ws.Out} {
		if err := os.Mkdir(sub, 0o755); err != nil {
			_ = os.RemoveAll(dir)
			return Workspace{}, fmt.Errorf("create workspace subdirectory %s: %w", filepath.Base(sub), err)
		}
	}
	return ws, nil
}

// Open returns an existing workspace by ID.
func (m *FSManager) Open(ctx context.Context, id string) (Workspace, error) {
	if err := ctx.Err(); err != nil {
		return Workspace{}, err
	}
	if err := validateID(id); err != nil {
		return Workspace{}, err
	}

	dir := filepath.Join(m.root, id)
	info, err := os.Stat(dir)
	if err != nil {
		return Workspace{}, fmt.Errorf("open workspace %q: %w", id, err)
	}
	if !info.IsDir() {
		return Workspace{}, fmt.Errorf("workspace path for %q is not a directory", id)
	}
	return layout(dir), nil
}

// List returns the prefixed workspaces under the root, oldest first.
func (m *FSManager) List(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		if !m.owns(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ws := layout(filepath.Join(m.root, entry.Name()))
		out = append(out, Info{
			Workspace: ws,
			ModTime:   info.ModTime(),
			Inputs:    countEntries(ws.In),
			Outputs:   countEntries(ws.Out),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.Before(out[j].ModTime) })
	return out, nil
}

// Remove deletes ws recursively. Paths outside the root are refused.
func (m *FSManager) Remove(ctx context.Context, ws Workspace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Dir(filepath.Clean(ws.Dir)) != m.root {
		return fmt.Errorf("workspace %q is not under %s", ws.Dir, m.root)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("remove workspace %q: %w", ws.ID, err)
	}
	return nil
}

// Cleanup removes prefixed workspaces whose modification time is older than
// olderThan. Entries without the prefix are never touched since the root may
// be shared (the system temp directory by default).
func (m *FSManager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	entries, err := os.ReadDir(m.root)
	if errors.Is(err, fs.ErrNotExist) {
		return CleanupReport{}, nil
	}
	if err != nil {
		return CleanupReport{}, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !m.owns(entry) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return report, fmt.Errorf("read workspace entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return report, fmt.Errorf("remove workspace %q: %w", entry.Name(), err)
		}
		report.DeletedDirs++
		report.Deleted = append(report.Deleted, path)
	}

	return report, nil
}

func (m *FSManager) owns(entry fs.DirEntry) bool {
	return entry.IsDir() && strings.HasPrefix(entry.Name(), m.prefix)
}

func layout(dir string) Workspace {
	return Workspace{
		ID:  filepath.Base(dir),
		Dir: dir,
		In:  filepath.Join(dir, InDir),
		Out: filepath.Join(dir, OutDir),
	}
}

func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	return len(entries)
}

func validateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("workspace id is empty")
	}
	if trimmed == "." || trimmed == ".." {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	if strings.Contains(trimmed, "/") || strings.Contains(trimmed, `\`) {
		return fmt.Errorf("workspace id %q must not contain path separators", id)
	}
	if filepath.Clean(trimmed) != trimmed {
		return fmt.Errorf("workspace id %q is invalid", id)
	}
	return nil
}
