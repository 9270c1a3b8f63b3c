package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/automaton/internal/ledger"
)

func runHistoryNoun(args []string) int {
	if (len(args) > 0 && isHelpToken(args[0])) || hasHelpFlag(args) {
		printHistoryHelp()
		return 0
	}
	if len(args) > 0 && args[0] == "prune" {
		return runHistoryPrune(args[1:])
	}
	return runHistoryList(args)
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Number of recent units to show")
	status := fs.String("status", "", "Only show units with this status")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := openExistingLedger(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ledger error: %v\n", err)
		return 1
	}
	if db == nil {
		fmt.Println("No ledger recorded (set state.path to enable)")
		return 0
	}
	defer db.Close()

	l := ledger.New(db)
	var entries []*ledger.Entry
	if *status != "" {
		entries, err = l.FindByStatus(ctx, ledger.Status(*status))
		if len(entries) > *limit && *limit > 0 {
			entries = entries[:*limit]
		}
	} else {
		entries, err = l.Recent(ctx, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("No units recorded")
		return 0
	}

	th := newTheme()
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			formatTime(e.StartedAt),
			shortID(e.RunID),
			e.WorkspaceID,
			string(e.Status),
			strings.Join(baseNames(e.Inputs), ", "),
			strings.Join(baseNames(e.Outputs), ", "),
			deref(e.LastError),
		})
	}
	fmt.Println(th.renderTable(
		[]string{"STARTED", "RUN", "WORKSPACE", "STATUS", "INPUTS", "OUTPUTS", "ERROR"},
		rows,
		func(row, col int) *lipgloss.Style {
			if col != 3 || row < 0 || row >= len(entries) {
				return nil
			}
			s := th.status(entries[row].Status)
			return &s
		},
	))
	return 0
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "Remove finished entries older than this")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := openExistingLedger(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ledger error: %v\n", err)
		return 1
	}
	if db == nil {
		fmt.Println("No ledger recorded")
		return 0
	}
	defer db.Close()

	n, err := ledger.New(db).Prune(ctx, *olderThan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prune failed: %v\n", err)
		return 1
	}
	fmt.Printf("Pruned %d ledger entr(ies) older than %s\n", n, *olderThan)
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func baseNames(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printHistoryHelp() {
	fmt.Println("Usage: automaton history [--limit N] [--status S] [--config PATH]")
	fmt.Println("       automaton history prune [--older-than d] [--config PATH]")
	fmt.Println("Show recent work units from the ledger, or drop old finished entries.")
}
