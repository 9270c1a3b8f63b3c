package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/automaton/internal/log"
	"github.com/mattjoyce/automaton/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from a processor.
	maxStderrBytes = 64 * 1024

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 5 * time.Second
)

// ErrTimeout is returned when an external processor exceeds its deadline.
var ErrTimeout = errors.New("processor timed out")

// Exec runs an external command per work unit, speaking protocol v1 over
// stdin/stdout. The command also sees AUTOMATON_UNIT_ID and
// AUTOMATON_OUTPUT_DIR in its environment.
type Exec struct {
	Command string
	Args    []string
	Config  map[string]any
	// Timeout bounds one invocation; zero means no limit.
	Timeout time.Duration
	// Grace is the SIGTERM to SIGKILL delay; zero selects DefaultGracePeriod.
	Grace  time.Duration
	Logger *slog.Logger
}

var _ Processor = (*Exec)(nil)

// Process spawns the command and maps its response to a Result. Protocol
// errors, spawn failures and timeouts are returned as errors.
func (e *Exec) Process(ctx context.Context, inputs []string, outDir string) (Result, error) {
	if strings.TrimSpace(e.Command) == "" {
		return nil, fmt.Errorf("exec processor: command is empty")
	}

	logger := log.WithComponent(e.Logger, "processor.exec").With("command", e.Command)
	if id := UnitID(ctx); id != "" {
		logger = logger.With("unit_id", id)
	}

	req := &protocol.Request{
		Protocol:  protocol.Version,
		UnitID:    UnitID(ctx),
		Inputs:    inputs,
		OutputDir: outDir,
		Config:    e.Config,
	}
	if e.Timeout > 0 {
		deadline := time.Now().Add(e.Timeout)
		req.DeadlineAt = &deadline
	}

	resp, stderr, err := e.spawn(ctx, req, logger)
	if stderr != "" {
		logger.Debug("processor stderr", "stderr", stderr)
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range resp.Logs {
		logger.Info("processor log", "level", entry.Level, "message", entry.Message)
	}

	outputs, err := resolveOutputs(resp.Outputs, outDir)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		logger.Warn("processor reported failure", "error", resp.Error)
		return Failure{Outputs: outputs, Reason: resp.Error}, nil
	}
	return Success{Outputs: outputs}, nil
}

// spawn runs the subprocess and returns the decoded response and captured
// stderr.
func (e *Exec) spawn(ctx context.Context, req *protocol.Request, logger *slog.Logger) (*protocol.Response, string, error) {
	// Not CommandContext: termination is SIGTERM first, then SIGKILL.
	cmd := exec.Command(e.Command, e.Args...)
	cmd.Env = append(os.Environ(),
		"AUTOMATON_UNIT_ID="+req.UnitID,
		"AUTOMATON_OUTPUT_DIR="+req.OutputDir,
	)
	cmd.WaitDelay = e.grace()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: maxStderrBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger.Debug("spawning processor", "args", e.Args, "timeout", e.Timeout)

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if err := protocol.EncodeRequest(stdin, req); err != nil {
			writeErr <- fmt.Errorf("encode request: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if e.Timeout > 0 {
		timer := time.NewTimer(e.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
		logger.Warn("processor timed out, sending SIGTERM", "timeout", e.Timeout)
		e.terminate(cmd, waitErr, logger)
		return nil, stderr.String(), fmt.Errorf("%w after %v", ErrTimeout, e.Timeout)

	case <-ctx.Done():
		logger.Warn("context cancelled, sending SIGTERM")
		e.terminate(cmd, waitErr, logger)
		return nil, stderr.String(), ctx.Err()

	case err := <-waitErr:
		stderrStr := stderr.String()
		// A processor may exit without reading stdin; its stdout is still
		// authoritative.
		if werr := <-writeErr; werr != nil && !errors.Is(werr, syscall.EPIPE) && !errors.Is(werr, os.ErrClosed) {
			return nil, stderrStr, werr
		}

		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, stderrStr, fmt.Errorf("wait for process: %w", err)
			}
			logger.Warn("processor exited with non-zero status", "exit_code", exitErr.ExitCode())
		}

		resp, raw, err := protocol.DecodeResponseLenient(bytes.NewReader(stdout.Bytes()))
		if err != nil {
			logger.Error("failed to decode processor response", "error", err, "stdout", string(raw))
			return nil, stderrStr, fmt.Errorf("decode response: %w", err)
		}
		return resp, stderrStr, nil
	}
}

func (e *Exec) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}
	}

	grace := time.NewTimer(e.grace())
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Info("processor exited after SIGTERM")
	case <-grace.C:
		logger.Warn("processor did not exit after SIGTERM, sending SIGKILL")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
		}
		<-waitErr
	}
}

func (e *Exec) grace() time.Duration {
	if e.Grace > 0 {
		return e.Grace
	}
	return DefaultGracePeriod
}

// resolveOutputs joins relative outputs onto outDir and rejects anything
// that escapes it.
func resolveOutputs(outputs []string, outDir string) ([]string, error) {
	resolved := make([]string, 0, len(outputs))
	for _, p := range outputs {
		if !filepath.IsAbs(p) {
			p = filepath.Join(outDir, p)
		}
		p = filepath.Clean(p)
		if !Within(p, outDir) {
			return nil, fmt.Errorf("processor output %q is outside %s", p, outDir)
		}
		resolved = append(resolved, p)
	}
	return resolved, nil
}

// Within reports whether path lies strictly under dir.
func Within(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int64
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	switch {
	case room <= 0:
		c.dropped += int64(len(p))
	case len(p) > room:
		c.buf.Write(p[:room])
		c.dropped += int64(len(p) - room)
	default:
		c.buf.Write(p)
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string { return c.buf.String() }
