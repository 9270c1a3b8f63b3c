package ledger

import (
	"errors"
	"time"
)

type Status string

const (
	// StatusRunning is recorded when a unit is staged. A row still running
	// after the process exits points at an abandoned workspace.
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusAborted marks a unit whose staging or routing hit a fatal fault.
	StatusAborted Status = "aborted"
)

// Entry is one work unit's row in unit_log.
type Entry struct {
	ID          string
	RunID       string
	WorkspaceID string
	Inputs      []string
	Outputs     []string
	Status      Status
	LastError   *string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// BeginRequest opens a unit_log row when a unit has been staged.
type BeginRequest struct {
	UnitID      string
	RunID       string
	WorkspaceID string
	Inputs      []string
}

// CompleteRequest closes a unit_log row.
type CompleteRequest struct {
	UnitID    string
	Status    Status
	Outputs   []string
	LastError string
}

var ErrEntryNotFound = errors.New("ledger entry not found")
