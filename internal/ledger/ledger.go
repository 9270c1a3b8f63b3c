// Package ledger records the outcome of every work unit in SQLite.
//
// The ledger is advisory: the filesystem layout is the source of truth, and
// the driver keeps going when a ledger write fails.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Begin inserts a running row for a staged unit.
func (l *Ledger) Begin(ctx context.Context, req BeginRequest) error {
	if req.UnitID == "" {
		return fmt.Errorf("unit id is empty")
	}
	if req.WorkspaceID == "" {
		return fmt.Errorf("workspace id is empty")
	}

	inputs, err := marshalPaths(req.Inputs)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx, `
INSERT INTO unit_log(id, run_id, workspace_id, inputs, status, started_at)
VALUES(?, ?, ?, ?, ?, ?);
`, req.UnitID, req.RunID, req.WorkspaceID, inputs, StatusRunning, l.stamp())
	if err != nil {
		return fmt.Errorf("insert unit_log: %w", err)
	}
	return nil
}

// Complete marks a unit terminal.
func (l *Ledger) Complete(ctx context.Context, req CompleteRequest) error {
	if req.UnitID == "" {
		return fmt.Errorf("unit id is empty")
	}
	if req.Status != StatusSucceeded && req.Status != StatusFailed && req.Status != StatusAborted {
		return fmt.Errorf("invalid terminal status: %q", req.Status)
	}

	outputs, err := marshalPaths(req.Outputs)
	if err != nil {
		return err
	}
	var lastError any
	if req.LastError != "" {
		lastError = req.LastError
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE unit_log
SET status = ?, outputs = ?, last_error = ?, completed_at = ?
WHERE id = ?;
`, req.Status, outputs, lastError, l.stamp(), req.UnitID)
	if err != nil {
		return fmt.Errorf("update unit_log: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("complete %s: %w", req.UnitID, ErrEntryNotFound)
	}
	return nil
}

// Get loads one entry by unit ID.
func (l *Ledger) Get(ctx context.Context, unitID string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?;`, unitID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// FindByWorkspace returns the entry that owned a workspace.
func (l *Ledger) FindByWorkspace(ctx context.Context, workspaceID string) (*Entry, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+` WHERE workspace_id = ? ORDER BY started_at DESC LIMIT 1;`, workspaceID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unit_log: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// FindByStatus returns entries with status, oldest first.
func (l *Ledger) FindByStatus(ctx context.Context, status Status) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectColumns+` WHERE status = ? ORDER BY started_at ASC, rowid ASC;`, status)
	if err != nil {
		return nil, fmt.Errorf("query unit_log: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// Prune deletes completed entries older than retention.
func (l *Ledger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := l.now().Add(-retention).UTC().Format(time.RFC3339Nano)
	res, err := l.db.ExecContext(ctx, `
DELETE FROM unit_log
WHERE completed_at IS NOT NULL AND completed_at < ?;
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune unit_log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const selectColumns = `
SELECT id, run_id, workspace_id, inputs, outputs, status, last_error, started_at, completed_at
FROM unit_log`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e            Entry
		inputs       string
		outputs      string
		status       string
		lastError    sql.NullString
		startedAtS   string
		completedAtS sql.NullString
	)
	if err := row.Scan(&e.ID, &e.RunID, &e.WorkspaceID, &inputs, &outputs, &status, &lastError, &startedAtS, &completedAtS); err != nil {
		return nil, err
	}

	e.Status = Status(status)
	if err := json.Unmarshal([]byte(inputs), &e.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs for %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(outputs), &e.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs for %s: %w", e.ID, err)
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
		e.StartedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}

func scanAll(rows *sql.Rows) ([]*Entry, error) {
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit_log: %w", err)
	}
	return out, nil
}

func marshalPaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("marshal paths: %w", err)
	}
	return string(b), nil
}

func (l *Ledger) stamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}
