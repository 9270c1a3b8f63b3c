// Package automaton drives work units from an input directory through an
// isolated workspace and a Processor, then routes inputs and outputs to
// their terminal directories.
package automaton

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/automaton/internal/enumerate"
	"github.com/mattjoyce/automaton/internal/events"
	"github.com/mattjoyce/automaton/internal/fsutil"
	"github.com/mattjoyce/automaton/internal/ledger"
	alog "github.com/mattjoyce/automaton/internal/log"
	"github.com/mattjoyce/automaton/internal/processor"
	"github.com/mattjoyce/automaton/internal/workspace"
)

const DefaultPollInterval = 10 * time.Second

// FaultPolicy decides what a staging failure does to the run.
type FaultPolicy int

const (
	// AbortRun stops the run with the staging error.
	AbortRun FaultPolicy = iota
	// FailUnit finalizes the unit as a failure with whatever was staged.
	FailUnit
)

func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "", "abort":
		return AbortRun, nil
	case "fail_unit":
		return FailUnit, nil
	default:
		return 0, fmt.Errorf("invalid staging fault policy %q (want abort or fail_unit)", s)
	}
}

func (p FaultPolicy) String() string {
	if p == FailUnit {
		return "fail_unit"
	}
	return "abort"
}

// Options tunes an Automaton. The zero value is usable.
type Options struct {
	Logger *slog.Logger
	// Events receives unit.* and run.completed events.
	Events Publisher
	// Recorder receives one Begin/Complete pair per staged unit.
	Recorder Recorder

	// Enumerator defaults to a snapshot of Dirs.Input.
	Enumerator enumerate.Enumerator
	// Workspaces defaults to an FSManager rooted at Dirs.Temp.
	Workspaces   workspace.Manager
	Prefix       string
	IgnoreHidden bool

	OnStageError FaultPolicy
	OnConflict   fsutil.ConflictPolicy
}

// Summary counts the units handled by one Run.
type Summary struct {
	RunID     string
	Units     int
	Succeeded int
	Failed    int
}

type Automaton struct {
	dirs       Dirs
	proc       processor.Processor
	enum       enumerate.Enumerator
	workspaces workspace.Manager
	events     Publisher
	recorder   Recorder
	logger     *slog.Logger

	onStageError FaultPolicy
	onConflict   fsutil.ConflictPolicy
}

// New validates the layout and creates missing non-input directories.
func New(dirs Dirs, proc processor.Processor, opts Options) (*Automaton, error) {
	logger := alog.WithComponent(alog.OrNop(opts.Logger), "automaton")
	if proc == nil {
		return nil, &ConfigurationError{Path: "processor", Err: errors.New("processor is nil")}
	}
	if err := dirs.ensure(logger); err != nil {
		return nil, err
	}

	logger.Info("Directory layout",
		"input", dirs.Input,
		"output", dirs.Output,
		"success", dirs.Success,
		"failure", dirs.Failure,
		"temp", dirs.Temp,
	)

	a := &Automaton{
		dirs:         dirs,
		proc:         proc,
		enum:         opts.Enumerator,
		workspaces:   opts.Workspaces,
		events:       opts.Events,
		recorder:     opts.Recorder,
		logger:       logger,
		onStageError: opts.OnStageError,
		onConflict:   opts.OnConflict,
	}
	if a.enum == nil {
		a.enum = enumerate.Dir{Path: dirs.Input, IgnoreHidden: opts.IgnoreHidden}
	}
	if a.workspaces == nil {
		m, err := workspace.NewFSManager(dirs.Temp, opts.Prefix)
		if err != nil {
			return nil, &ConfigurationError{Path: dirs.Temp, Err: err}
		}
		a.workspaces = m
	}
	return a, nil
}

func (a *Automaton) Dirs() Dirs { return a.dirs }

// Prepare creates a workspace and moves every source of unit into its in/
// directory. Staged paths are returned in unit order. On a staging failure
// the workspace and the paths staged so far are returned with the error.
func (a *Automaton) Prepare(ctx context.Context, unit enumerate.WorkUnit) (workspace.Workspace, []string, error) {
	ws, err := a.workspaces.Create(ctx)
	if err != nil {
		return workspace.Workspace{}, nil, &ResourceError{Op: "create workspace", Path: a.dirs.Temp, Err: err}
	}

	staged := make([]string, 0, len(unit.Paths))
	for _, src := range unit.Paths {
		dst, err := fsutil.MoveInto(src, ws.In, fsutil.ConflictFail)
		if err != nil {
			return ws, staged, &ResourceError{Op: "stage", Path: src, Err: err}
		}
		staged = append(staged, dst)
	}
	return ws, staged, nil
}

// Finalize surfaces outputs to the output directory, routes staged inputs by
// outcome, and removes the workspace on success. Every output is checked
// before anything moves: it must exist under ws.Out, appear once, and not
// contain another output. Cancelling ctx does not interrupt it.
func (a *Automaton) Finalize(ctx context.Context, ws workspace.Workspace, staged []string, result processor.Result) error {
	_, err := a.finalize(ctx, ws, staged, result)
	return err
}

func (a *Automaton) finalize(ctx context.Context, ws workspace.Workspace, staged []string, result processor.Result) ([]string, error) {
	result, ok := settle(result)
	if !ok {
		return nil, ErrContractViolation
	}

	outputs, err := checkOutputs(ws, result.Produced())
	if err != nil {
		return nil, err
	}

	routed := make([]string, 0, len(outputs))
	for _, p := range outputs {
		dst, err := fsutil.MoveInto(p, a.dirs.Output, a.onConflict)
		if err != nil {
			return routed, &ResourceError{Op: "move output", Path: p, Err: err}
		}
		routed = append(routed, dst)
	}

	terminal := a.dirs.Failure
	if result.Succeeded() {
		terminal = a.dirs.Success
	}
	for _, p := range staged {
		if _, err := fsutil.MoveInto(p, terminal, a.onConflict); err != nil {
			return routed, &ResourceError{Op: "route input", Path: p, Err: err}
		}
	}

	if result.Succeeded() {
		if err := a.workspaces.Remove(context.WithoutCancel(ctx), ws); err != nil {
			return routed, &ResourceError{Op: "remove workspace", Path: ws.Dir, Err: err}
		}
	}
	return routed, nil
}

// checkOutputs resolves produced paths against ws.Out and rejects any list
// that could not be moved in full.
func checkOutputs(ws workspace.Workspace, produced []string) ([]string, error) {
	outputs := make([]string, 0, len(produced))
	seen := make(map[string]struct{}, len(produced))
	for _, p := range produced {
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.Out, p)
		}
		p = filepath.Clean(p)
		if !processor.Within(p, ws.Out) {
			return nil, &ContractError{Path: p, Reason: "output is not under " + ws.Out}
		}
		if _, dup := seen[p]; dup {
			return nil, &ContractError{Path: p, Reason: "output is listed more than once"}
		}
		if _, err := os.Lstat(p); err != nil {
			return nil, &ContractError{Path: p, Reason: fmt.Sprintf("output does not exist: %v", err)}
		}
		seen[p] = struct{}{}
		outputs = append(outputs, p)
	}

	for _, p := range outputs {
		for _, q := range outputs {
			if processor.Within(p, q) {
				return nil, &ContractError{Path: p, Reason: "output is inside another output " + q}
			}
		}
	}
	return outputs, nil
}

// settle reduces r to a value variant. Nil interfaces and nil pointers
// report false.
func settle(r processor.Result) (processor.Result, bool) {
	switch v := r.(type) {
	case processor.Success:
		return v, true
	case processor.Failure:
		return v, true
	case *processor.Success:
		if v == nil {
			return nil, false
		}
		return *v, true
	case *processor.Failure:
		if v == nil {
			return nil, false
		}
		return *v, true
	default:
		return nil, false
	}
}

// Run performs one pass over the input directory. It stops at the first
// fatal fault, or between units when ctx is cancelled.
func (a *Automaton) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	logger := a.logger.With("run_id", sum.RunID)
	logger.Debug("Starting run")

	err := a.run(ctx, logger, &sum)

	payload := events.RunPayload{RunID: sum.RunID, Units: sum.Units, Succeeded: sum.Succeeded, Failed: sum.Failed}
	if err != nil {
		payload.Error = err.Error()
		logger.Error("Run stopped", "units", sum.Units, "error", err)
	} else if sum.Units > 0 {
		logger.Info("Run completed", "units", sum.Units, "succeeded", sum.Succeeded, "failed", sum.Failed)
	}
	a.publish(events.RunCompleted, payload)
	return sum, err
}

func (a *Automaton) run(ctx context.Context, logger *slog.Logger, sum *Summary) error {
	for unit, err := range a.enum.Batches(ctx) {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := a.handle(ctx, alog.WithUnit(logger, unit.ID), sum.RunID, unit)
		if err != nil {
			return err
		}
		sum.Units++
		if ok {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	return nil
}

// handle takes one unit from staging to routing.
func (a *Automaton) handle(ctx context.Context, logger *slog.Logger, runID string, unit enumerate.WorkUnit) (bool, error) {
	ws, staged, err := a.Prepare(ctx, unit)
	if ws.ID != "" {
		logger = alog.WithWorkspace(logger, ws.ID)
		a.begin(ctx, logger, runID, unit, ws)
	}

	var result processor.Result
	if err != nil {
		if a.onStageError == AbortRun {
			a.complete(ctx, logger, unit.ID, ws, ledger.StatusAborted, nil, err)
			return false, err
		}
		logger.Error("Staging failed, failing unit", "error", err, "staged", len(staged))
		result = processor.Failure{Reason: err.Error()}
	} else {
		logger.Info("Staged unit", "inputs", staged)
		a.publish(events.UnitStaged, events.UnitPayload{UnitID: unit.ID, WorkspaceID: ws.ID, Inputs: staged})

		result = a.process(ctx, logger, unit.ID, ws, staged)
		ok := result.Succeeded()
		a.publish(events.UnitProcessed, events.UnitPayload{
			UnitID:      unit.ID,
			WorkspaceID: ws.ID,
			Outputs:     result.Produced(),
			Success:     &ok,
			Reason:      reason(result),
		})
	}

	routed, err := a.finalize(ctx, ws, staged, result)
	if err != nil {
		a.complete(ctx, logger, unit.ID, ws, ledger.StatusAborted, routed, err)
		return false, err
	}

	ok := result.Succeeded()
	status := ledger.StatusFailed
	if ok {
		status = ledger.StatusSucceeded
	}
	var failure error
	if r := reason(result); r != "" {
		failure = errors.New(r)
	}
	a.complete(ctx, logger, unit.ID, ws, status, routed, failure)
	a.publish(events.UnitFinalized, events.UnitPayload{UnitID: unit.ID, WorkspaceID: ws.ID, Outputs: routed, Success: &ok})
	if ok {
		logger.Info("Unit succeeded", "outputs", routed)
	} else {
		logger.Warn("Unit failed, workspace retained", "workspace", ws.Dir, "outputs", routed)
	}
	return ok, nil
}

// process is the only place the Processor is called. Errors, panics and
// missing results, nil pointers included, all become a Failure with no
// outputs. The returned Result is always a value variant.
func (a *Automaton) process(ctx context.Context, logger *slog.Logger, unitID string, ws workspace.Workspace, staged []string) (res processor.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Processor panicked", "panic", r, "stack", string(debug.Stack()))
			res = processor.Failure{Reason: fmt.Sprintf("processor panicked: %v", r)}
		}
	}()

	start := time.Now()
	r, err := a.proc.Process(processor.WithUnitID(ctx, unitID), slices.Clone(staged), ws.Out)
	logger.Debug("Processor returned", "duration", time.Since(start))
	if err != nil {
		logger.Error("Processor failed", "error", err)
		return processor.Failure{Reason: err.Error()}
	}
	res, ok := settle(r)
	if !ok {
		logger.Error("Processor returned no result", "type", fmt.Sprintf("%T", r))
		return processor.Failure{Reason: "processor returned no result"}
	}
	return res
}

// Watch runs passes every interval until ctx is done. Cancellation is a
// clean stop; a fatal pass error is returned.
func (a *Automaton) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	a.logger.Info("Watching input directory", "path", a.dirs.Input, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			a.logger.Info("Watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Automaton) begin(ctx context.Context, logger *slog.Logger, runID string, unit enumerate.WorkUnit, ws workspace.Workspace) {
	if a.recorder == nil {
		return
	}
	err := a.recorder.Begin(ctx, ledger.BeginRequest{
		UnitID:      unit.ID,
		RunID:       runID,
		WorkspaceID: ws.ID,
		Inputs:      unit.Paths,
	})
	if err != nil {
		logger.Warn("Failed to record unit start", "error", err)
	}
}

func (a *Automaton) complete(ctx context.Context, logger *slog.Logger, unitID string, ws workspace.Workspace, status ledger.Status, outputs []string, cause error) {
	if a.recorder == nil || ws.ID == "" {
		return
	}
	req := ledger.CompleteRequest{UnitID: unitID, Status: status, Outputs: outputs}
	if cause != nil {
		req.LastError = cause.Error()
	}
	// Record even when the run was cancelled.
	if err := a.recorder.Complete(context.WithoutCancel(ctx), req); err != nil {
		logger.Warn("Failed to record unit outcome", "error", err)
	}
}

func (a *Automaton) publish(eventType string, data any) {
	if a.events != nil {
		a.events.Publish(eventType, data)
	}
}

func reason(r processor.Result) string {
	if f, ok := r.(processor.Failure); ok {
		return f.Reason
	}
	return ""
}
