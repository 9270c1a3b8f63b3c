package workspace

import (
	"context"
	"time"
)

const (
	// InDir is the staging-in subdirectory of every workspace.
	InDir = "in"
	// OutDir is the staging-out subdirectory of every workspace.
	OutDir = "out"
	// DefaultPrefix is prepended to every generated workspace name.
	DefaultPrefix = "automaton_"
)

// Workspace describes one work unit's isolated temporary directory.
//
// Dir is owned exclusively by the driver for the duration of a single work
// unit. It is removed only after successful processing; otherwise it stays on
// disk for inspection.
type Workspace struct {
	ID  string
	Dir string
	In  string
	Out string
}

// Info is a listing entry for an existing workspace.
type Info struct {
	Workspace
	ModTime time.Time
	Inputs  int
	Outputs int
}

// CleanupReport summarizes a prune run.
type CleanupReport struct {
	DeletedDirs int
	Deleted     []string
}

// Manager governs workspace lifecycle under a single temporary root.
type Manager interface {
	// Create makes a new uniquely named workspace with in/ and out/ subdirectories.
	Create(ctx context.Context) (Workspace, error)

	// Open resolves an existing workspace by ID.
	Open(ctx context.Context, id string) (Workspace, error)

	// List returns every workspace currently under the root.
	List(ctx context.Context) ([]Info, error)

	// Remove recursively deletes a workspace.
	Remove(ctx context.Context, ws Workspace) error

	// Cleanup removes workspaces older than olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error)
}
