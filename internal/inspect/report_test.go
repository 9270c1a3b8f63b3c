package inspect

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/automaton/internal/ledger"
	"github.com/mattjoyce/automaton/internal/storage"
	"github.com/mattjoyce/automaton/internal/workspace"
)

func TestBuildReportRendersFilesAndLedger(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, filepath.Join(tmpDir, "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	l := ledger.New(db)

	mgr, err := workspace.NewFSManager(filepath.Join(tmpDir, "tmp"), "")
	if err != nil {
		t.Fatalf("NewFSManager: %v", err)
	}
	ws, err := mgr.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws.In, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(ws.Out, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws.Out, "nested", "partial.out"), []byte("p"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := l.Begin(ctx, ledger.BeginRequest{UnitID: "unit-1", RunID: "run-1", WorkspaceID: ws.ID, Inputs: []string{"/in/a.txt"}}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := l.Complete(ctx, ledger.CompleteRequest{UnitID: "unit-1", Status: ledger.StatusFailed, LastError: "exit status 2"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	out, err := BuildReport(ctx, mgr, l, ws.ID)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	for _, want := range []string{
		"Workspace   : " + ws.ID,
		"  - a.txt",
		"  - nested/partial.out",
		"Unit ID     : unit-1",
		"Status      : failed",
		"Last error  : exit status 2",
		"  - /in/a.txt",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}

	raw, err := BuildJSONReport(ctx, mgr, l, ws.ID)
	if err != nil {
		t.Fatalf("BuildJSONReport: %v", err)
	}
	var report Report
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.Unit == nil || report.Unit.RunID != "run-1" {
		t.Fatalf("unexpected unit: %+v", report.Unit)
	}
	if len(report.Inputs) != 1 || len(report.Outputs) != 1 {
		t.Fatalf("unexpected files: in=%v out=%v", report.Inputs, report.Outputs)
	}
}

func TestBuildReportWithoutLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, err := workspace.NewFSManager(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	ws, err := mgr.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}

	out, err := BuildReport(ctx, mgr, nil, ws.ID)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if !strings.Contains(out, "ledger      : <no record>") {
		t.Fatalf("expected no ledger record:\n%s", out)
	}
	if !strings.Contains(out, "in          : <none>") {
		t.Fatalf("expected empty in list:\n%s", out)
	}
}

func TestBuildReportUnknownWorkspace(t *testing.T) {
	t.Parallel()

	mgr, err := workspace.NewFSManager(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildReport(context.Background(), mgr, nil, "automaton_missing"); err == nil {
		t.Fatal("expected error for unknown workspace")
	}
	if _, err := BuildReport(context.Background(), mgr, nil, " "); err == nil {
		t.Fatal("expected error for empty id")
	}
}
