package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/automaton/internal/config"
	"github.com/mattjoyce/automaton/internal/inspect"
	"github.com/mattjoyce/automaton/internal/ledger"
	"github.com/mattjoyce/automaton/internal/storage"
)

func runWorkspaceNoun(args []string) int {
	if len(args) < 1 {
		printWorkspaceNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printWorkspaceNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	if hasHelpFlag(actionArgs) {
		printWorkspaceNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "list":
		return runWorkspaceList(actionArgs)
	case "inspect":
		return runWorkspaceInspect(actionArgs)
	case "prune":
		return runWorkspacePrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown workspace action: %s\n", action)
		return 1
	}
}

func runWorkspaceList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	mgr, err := workspaceManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	infos, err := mgr.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		return 1
	}
	if len(infos) == 0 {
		fmt.Printf("No retained workspaces under %s\n", mgr.Root())
		return 0
	}

	now := time.Now()
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.ID,
			formatAge(info.ModTime, now),
			strconv.Itoa(info.Inputs),
			strconv.Itoa(info.Outputs),
		})
	}
	fmt.Println(newTheme().renderTable([]string{"WORKSPACE", "AGE", "IN", "OUT"}, rows, nil))
	return 0
}

func runWorkspaceInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: automaton workspace inspect <workspace-id> [--json]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	mgr, err := workspaceManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := openExistingLedger(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ledger error: %v\n", err)
		return 1
	}
	var lookup inspect.EntryLookup
	if db != nil {
		defer db.Close()
		lookup = ledger.New(db)
	}

	var out string
	if *jsonOut {
		out, err = inspect.BuildJSONReport(ctx, mgr, lookup, fs.Arg(0))
	} else {
		out, err = inspect.BuildReport(ctx, mgr, lookup, fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}
	fmt.Println(strings.TrimRight(out, "\n"))
	return 0
}

func runWorkspacePrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 0, "Remove workspaces older than this (default workspace.retention)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	mgr, err := workspaceManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	retention := *olderThan
	if retention == 0 {
		retention = cfg.Workspace.Retention
	}

	report, err := mgr.Cleanup(context.Background(), retention)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prune failed: %v\n", err)
		return 1
	}
	for _, path := range report.Deleted {
		fmt.Printf("removed %s\n", path)
	}
	fmt.Printf("Pruned %d workspace(s) older than %s\n", report.DeletedDirs, retention)
	return 0
}

// openExistingLedger opens the ledger only when one has already been
// written. It returns a nil db when the ledger is disabled or absent.
func openExistingLedger(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.State.Path == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.State.Path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return storage.OpenSQLite(ctx, cfg.State.Path)
}

func printWorkspaceNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: automaton workspace <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list                     List retained workspaces")
	fmt.Fprintln(w, "  inspect <id> [--json]    Show a workspace's files and ledger entry")
	fmt.Fprintln(w, "  prune [--older-than d]   Remove stale workspaces")
	fmt.Fprintln(w, "All actions accept --config PATH.")
}
