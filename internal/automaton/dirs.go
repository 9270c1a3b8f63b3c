package automaton

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattjoyce/automaton/internal/processor"
)

// Dirs is the directory layout of one automaton.
type Dirs struct {
	Input   string // source: one entry is one work unit
	Output  string // processor outputs, regardless of outcome
	Success string // inputs whose processing succeeded
	Failure string // inputs whose processing failed
	Temp    string // workspace root; empty means os.TempDir()
}

// ensure makes every path absolute, checks Input and creates the remaining
// directories.
func (d *Dirs) ensure(logger *slog.Logger) error {
	if d.Temp == "" {
		d.Temp = os.TempDir()
	}
	for _, p := range []*string{&d.Input, &d.Output, &d.Success, &d.Failure, &d.Temp} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return &ConfigurationError{Path: *p, Err: err}
		}
		*p = abs
	}

	info, err := os.Stat(d.Input)
	if err != nil {
		return &ConfigurationError{Path: d.Input, Err: fmt.Errorf("input directory: %w", err)}
	}
	if !info.IsDir() {
		return &ConfigurationError{Path: d.Input, Err: fmt.Errorf("input path is not a directory")}
	}

	for _, dir := range []struct{ name, path string }{
		{"output", d.Output},
		{"success", d.Success},
		{"failure", d.Failure},
		{"temp", d.Temp},
	} {
		if dir.path == "" {
			return &ConfigurationError{Path: dir.name, Err: fmt.Errorf("%s directory is not set", dir.name)}
		}
		// Anything inside the input directory would be enumerated as work.
		if dir.path == d.Input || processor.Within(dir.path, d.Input) {
			return &ConfigurationError{Path: dir.path, Err: fmt.Errorf("%s directory must not be inside the input directory %s", dir.name, d.Input)}
		}
		if _, err := os.Stat(dir.path); err == nil {
			continue
		}
		logger.Info("Creating missing directory", "role", dir.name, "path", dir.path)
		if err := os.MkdirAll(dir.path, 0o755); err != nil {
			return &ConfigurationError{Path: dir.path, Err: err}
		}
	}
	return nil
}
