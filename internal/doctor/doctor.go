// Package doctor validates automaton configuration against the host it runs on.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/automaton/internal/config"
	"github.com/mattjoyce/automaton/internal/processor"
	"github.com/mattjoyce/automaton/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor checks a loaded configuration against the filesystem.
type Doctor struct {
	cfg *config.Config

	lookPath   func(string) (string, error)
	sameDevice func(a, b string) (bool, error)
	isNetwork  func(string) (bool, string, error)
	access     func(string) error
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:        cfg,
		lookPath:   exec.LookPath,
		sameDevice: storage.SameDevice,
		isNetwork:  storage.IsNetworkPath,
		access:     storage.CheckAccess,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateDirs(r)
	d.validateNesting(r)
	d.validateProcessor(r)
	d.validateState(r)
	d.validateIntegrity(r)
	d.warnCrossDevice(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateDirs requires the input directory and flags terminal directories
// that will be created on start.
func (d *Doctor) validateDirs(r *Result) {
	dirs := d.cfg.Dirs

	info, err := os.Stat(dirs.Input)
	switch {
	case err != nil:
		d.addError(r, "dirs", "dirs.input", fmt.Sprintf("input directory %s does not exist", dirs.Input))
	case !info.IsDir():
		d.addError(r, "dirs", "dirs.input", fmt.Sprintf("%s is not a directory", dirs.Input))
	default:
		if err := d.access(dirs.Input); err != nil {
			d.addError(r, "dirs", "dirs.input", err.Error())
		}
	}

	for _, c := range []struct{ field, path string }{
		{"dirs.output", dirs.Output},
		{"dirs.success", dirs.Success},
		{"dirs.failure", dirs.Failure},
		{"dirs.temp", dirs.Temp},
	} {
		if c.path == "" {
			continue
		}
		info, err := os.Stat(c.path)
		if err != nil {
			d.addWarning(r, "dirs", c.field, fmt.Sprintf("%s does not exist and will be created", c.path))
			continue
		}
		if !info.IsDir() {
			d.addError(r, "dirs", c.field, fmt.Sprintf("%s is not a directory", c.path))
			continue
		}
		if err := d.access(c.path); err != nil {
			d.addError(r, "dirs", c.field, err.Error())
		}
	}

	seen := map[string]string{}
	for _, c := range []struct{ field, path string }{
		{"dirs.input", dirs.Input},
		{"dirs.output", dirs.Output},
		{"dirs.success", dirs.Success},
		{"dirs.failure", dirs.Failure},
	} {
		if other, dup := seen[c.path]; dup {
			d.addError(r, "dirs", c.field, fmt.Sprintf("same directory as %s", other))
			continue
		}
		seen[c.path] = c.field
	}
}

// validateNesting rejects anything placed inside the input directory, where
// the next pass would pick it up as a work unit.
func (d *Doctor) validateNesting(r *Result) {
	input := filepath.Clean(d.cfg.Dirs.Input)
	if input == "." || input == "" {
		return
	}
	temp := d.cfg.Dirs.Temp
	if temp == "" {
		temp = os.TempDir()
	}
	for _, c := range []struct{ field, path string }{
		{"dirs.output", d.cfg.Dirs.Output},
		{"dirs.success", d.cfg.Dirs.Success},
		{"dirs.failure", d.cfg.Dirs.Failure},
		{"dirs.temp", temp},
		{"state.path", d.cfg.State.Path},
	} {
		if c.path == "" {
			continue
		}
		p := filepath.Clean(c.path)
		if c.field == "dirs.temp" && p == input {
			d.addError(r, "dirs", c.field, "same directory as dirs.input")
			continue
		}
		if processor.Within(p, input) {
			d.addError(r, "dirs", c.field, fmt.Sprintf("%s is inside the input directory %s", p, input))
		}
	}
}

func (d *Doctor) validateProcessor(r *Result) {
	p := d.cfg.Processor
	switch p.Kind {
	case config.ProcessorExec:
		if _, err := d.lookPath(p.Command); err != nil {
			d.addError(r, "processor", "processor.command", fmt.Sprintf("command %q not found: %v", p.Command, err))
		}
		if p.Timeout == 0 {
			d.addWarning(r, "processor", "processor.timeout", "no timeout set; a hung processor stalls the pipeline")
		}
	case config.ProcessorPassthrough:
		d.addWarning(r, "processor", "processor.kind", "passthrough copies inputs to outputs unchanged")
	}
}

func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addWarning(r, "state", "state.path", "not set; run ledger and instance lock are disabled")
		return
	}
	network, fsType, err := d.isNetwork(d.cfg.State.Path)
	if err != nil {
		d.addWarning(r, "state", "state.path", fmt.Sprintf("could not detect filesystem: %v", err))
		return
	}
	if network {
		d.addError(r, "state", "state.path", fmt.Sprintf("on network filesystem %q; SQLite needs local disk", fsType))
	}
}

func (d *Doctor) validateIntegrity(r *Result) {
	if d.cfg.Source == "" {
		return
	}
	res := config.VerifyIntegrity(d.cfg.Source)
	for _, e := range res.Errors {
		d.addError(r, "integrity", "", e)
	}
	for _, w := range res.Warnings {
		d.addWarning(r, "integrity", "", w)
	}
}

// warnCrossDevice flags moves that fall back to copy-and-delete.
func (d *Doctor) warnCrossDevice(r *Result) {
	temp := d.cfg.Dirs.Temp
	if temp == "" {
		temp = os.TempDir()
	}
	for _, c := range []struct{ field, path string }{
		{"dirs.input", d.cfg.Dirs.Input},
		{"dirs.output", d.cfg.Dirs.Output},
		{"dirs.success", d.cfg.Dirs.Success},
		{"dirs.failure", d.cfg.Dirs.Failure},
	} {
		same, err := d.sameDevice(c.path, temp)
		if err != nil || same {
			continue
		}
		d.addWarning(r, "dirs", c.field,
			fmt.Sprintf("%s and workspace root %s are on different devices; moves will copy and verify", c.path, temp))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
