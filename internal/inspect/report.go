// Package inspect reports on a retained workspace: what was staged, what the
// processor left behind and what the ledger recorded for it.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/automaton/internal/ledger"
	"github.com/mattjoyce/automaton/internal/workspace"
)

// EntryLookup resolves the ledger row that owned a workspace.
type EntryLookup interface {
	FindByWorkspace(ctx context.Context, workspaceID string) (*ledger.Entry, error)
}

// Report is the structured JSON representation of a workspace report.
type Report struct {
	WorkspaceID string    `json:"workspace_id"`
	Path        string    `json:"path"`
	ModTime     time.Time `json:"mod_time"`
	Inputs      []string  `json:"inputs"`
	Outputs     []string  `json:"outputs"`
	Unit        *Unit     `json:"unit,omitempty"`
}

// Unit is the ledger view of the work unit staged in the workspace.
type Unit struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Status      string     `json:"status"`
	LastError   string     `json:"last_error,omitempty"`
	Sources     []string   `json:"sources"`
	Routed      []string   `json:"routed_outputs,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BuildReport renders a terminal-friendly report for a workspace.
func BuildReport(ctx context.Context, mgr workspace.Manager, lookup EntryLookup, workspaceID string) (string, error) {
	report, err := gatherReportData(ctx, mgr, lookup, workspaceID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Workspace Report\n")
	fmt.Fprintf(&out, "Workspace   : %s\n", report.WorkspaceID)
	fmt.Fprintf(&out, "Path        : %s\n", report.Path)
	fmt.Fprintf(&out, "Modified    : %s\n", report.ModTime.Format(time.RFC3339))
	fmt.Fprintf(&out, "\n")

	writeList(&out, workspace.InDir, report.Inputs)
	writeList(&out, workspace.OutDir, report.Outputs)

	if report.Unit == nil {
		fmt.Fprintf(&out, "ledger      : <no record>\n")
		return out.String(), nil
	}

	u := report.Unit
	fmt.Fprintf(&out, "\n")
	fmt.Fprintf(&out, "Unit ID     : %s\n", u.ID)
	fmt.Fprintf(&out, "Run ID      : %s\n", u.RunID)
	fmt.Fprintf(&out, "Status      : %s\n", u.Status)
	fmt.Fprintf(&out, "Started     : %s\n", u.StartedAt.Format(time.RFC3339))
	if u.CompletedAt != nil {
		fmt.Fprintf(&out, "Completed   : %s\n", u.CompletedAt.Format(time.RFC3339))
	}
	if u.LastError != "" {
		fmt.Fprintf(&out, "Last error  : %s\n", u.LastError)
	}
	writeList(&out, "sources", u.Sources)
	if len(u.Routed) > 0 {
		writeList(&out, "routed", u.Routed)
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable workspace report.
func BuildJSONReport(ctx context.Context, mgr workspace.Manager, lookup EntryLookup, workspaceID string) (string, error) {
	report, err := gatherReportData(ctx, mgr, lookup, workspaceID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, mgr workspace.Manager, lookup EntryLookup, workspaceID string) (*Report, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}

	ws, err := mgr.Open(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(ws.Dir)
	if err != nil {
		return nil, fmt.Errorf("stat workspace: %w", err)
	}

	report := &Report{
		WorkspaceID: ws.ID,
		Path:        ws.Dir,
		ModTime:     info.ModTime().UTC(),
	}
	if report.Inputs, err = listFiles(ws.In); err != nil {
		return nil, fmt.Errorf("list %s: %w", workspace.InDir, err)
	}
	if report.Outputs, err = listFiles(ws.Out); err != nil {
		return nil, fmt.Errorf("list %s: %w", workspace.OutDir, err)
	}

	if lookup == nil {
		return report, nil
	}
	entry, err := lookup.FindByWorkspace(ctx, ws.ID)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger entry: %w", err)
	}

	report.Unit = &Unit{
		ID:          entry.ID,
		RunID:       entry.RunID,
		Status:      string(entry.Status),
		Sources:     entry.Inputs,
		Routed:      entry.Outputs,
		StartedAt:   entry.StartedAt,
		CompletedAt: entry.CompletedAt,
	}
	if entry.LastError != nil {
		report.Unit.LastError = *entry.LastError
	}
	return report, nil
}

func writeList(out *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(out, "%-11s : <none>\n", label)
		return
	}
	fmt.Fprintf(out, "%-11s :\n", label)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

// listFiles returns every regular file under dir, relative to dir.
func listFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	files := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
