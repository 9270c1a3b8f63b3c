package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/automaton/internal/automaton"
	"github.com/mattjoyce/automaton/internal/config"
	"github.com/mattjoyce/automaton/internal/events"
	"github.com/mattjoyce/automaton/internal/fsutil"
	"github.com/mattjoyce/automaton/internal/ledger"
	"github.com/mattjoyce/automaton/internal/lock"
	"github.com/mattjoyce/automaton/internal/log"
	"github.com/mattjoyce/automaton/internal/processor"
	"github.com/mattjoyce/automaton/internal/storage"
	"github.com/mattjoyce/automaton/internal/workspace"
)

// session is everything a run or watch needs, torn down by Close.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	hub       *events.Hub
	automaton *automaton.Automaton

	db      *sql.DB
	pidLock *lock.PIDLock
}

func (rt *session) Close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
	if rt.pidLock != nil {
		_ = rt.pidLock.Release()
	}
}

// loadConfig resolves the configuration path and loads it.
func loadConfig(configPath string) (*config.Config, error) {
	path, err := config.Discover(configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return log.New(log.Options{
		Level:  cfg.Service.LogLevel,
		Format: cfg.Service.LogFormat,
		Writer: w,
	})
}

// startRuntime loads configuration, takes the instance lock, opens the
// ledger and builds the automaton.
func startRuntime(ctx context.Context, configPath string) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	rt := &session{
		cfg:    cfg,
		logger: newLogger(cfg, os.Stderr).With("service", cfg.Service.Name),
		hub:    events.NewHub(256),
	}
	rt.logger.Info("automaton starting", "version", version, "config", cfg.Source)

	opts := automaton.Options{
		Logger:       rt.logger,
		Events:       rt.hub,
		Prefix:       cfg.Workspace.Prefix,
		IgnoreHidden: cfg.Staging.IgnoreHidden,
	}
	if opts.OnStageError, err = automaton.ParseFaultPolicy(cfg.Staging.OnError); err != nil {
		return nil, err
	}
	if opts.OnConflict, err = fsutil.ParseConflictPolicy(cfg.Staging.OnConflict); err != nil {
		return nil, err
	}

	if cfg.State.Path != "" {
		lockPath := cfg.State.LockPath()
		rt.pidLock, err = lock.AcquirePIDLock(lockPath)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire instance lock %s: %w", lockPath, err)
		}
		rt.logger.Info("acquired instance lock", "path", lockPath)

		rt.db, err = storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		opts.Recorder = ledger.New(rt.db)
		rt.logger.Info("ledger opened", "path", cfg.State.Path)
	}

	proc, err := buildProcessor(cfg, rt.logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.automaton, err = automaton.New(dirsFromConfig(cfg), proc, opts)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func dirsFromConfig(cfg *config.Config) automaton.Dirs {
	return automaton.Dirs{
		Input:   cfg.Dirs.Input,
		Output:  cfg.Dirs.Output,
		Success: cfg.Dirs.Success,
		Failure: cfg.Dirs.Failure,
		Temp:    cfg.Dirs.Temp,
	}
}

func buildProcessor(cfg *config.Config, logger *slog.Logger) (processor.Processor, error) {
	pc := cfg.Processor
	switch pc.Kind {
	case config.ProcessorExec:
		return &processor.Exec{
			Command: pc.Command,
			Args:    pc.Args,
			Config:  pc.Config,
			Timeout: pc.Timeout,
			Grace:   pc.Grace,
			Logger:  log.WithComponent(logger, "processor"),
		}, nil
	case config.ProcessorPassthrough:
		var p processor.Processor = processor.Passthrough{Suffix: pc.Suffix}
		if pc.Timeout > 0 {
			p = processor.WithTimeout(p, pc.Timeout)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown processor kind %q", pc.Kind)
	}
}

func workspaceManager(cfg *config.Config) (*workspace.FSManager, error) {
	root := cfg.Dirs.Temp
	if root == "" {
		root = os.TempDir()
	}
	return workspace.NewFSManager(root, cfg.Workspace.Prefix)
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	showEvents := fs.Bool("events", false, "Print lifecycle events as JSON lines")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := startRuntime(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	if *showEvents {
		stopEvents := rt.hub.Observe(func(ev events.Event) { printEvents([]events.Event{ev}) })
		defer stopEvents()
	}

	sum, err := rt.automaton.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	fmt.Printf("Processed %d unit(s): %d succeeded, %d failed\n", sum.Units, sum.Succeeded, sum.Failed)
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	interval := fs.Duration("interval", 0, "Poll interval (default service.poll_interval)")
	showEvents := fs.Bool("events", false, "Stream lifecycle events as JSON lines")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := startRuntime(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer rt.Close()

	every := *interval
	if every <= 0 {
		every = rt.cfg.Service.PollInterval
	}

	if *showEvents {
		ch, unsubscribe := rt.hub.Subscribe()
		defer unsubscribe()
		go func() {
			for ev := range ch {
				printEvents([]events.Event{ev})
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.automaton.Watch(ctx, every)
	}()

	rt.logger.Info("automaton watching (press Ctrl+C to stop)", "interval", every)

	select {
	case sig := <-sigCh:
		rt.logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := waitForWatch(errCh, 30*time.Second); err != nil {
			rt.logger.Error("watch did not stop cleanly", "error", err)
			return 1
		}
	case err := <-errCh:
		if err != nil {
			rt.logger.Error("watch stopped", "error", err)
			fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
			return 1
		}
	}

	rt.logger.Info("automaton stopped")
	return 0
}

// waitForWatch lets the unit in flight finish routing after cancellation.
func waitForWatch(errCh <-chan error, limit time.Duration) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(limit):
		return errors.New("timed out waiting for the current unit to finish")
	}
}

func printEvents(evs []events.Event) {
	for _, ev := range evs {
		line, err := json.Marshal(struct {
			ID   int64           `json:"id"`
			Type string          `json:"type"`
			At   time.Time       `json:"at"`
			Data json.RawMessage `json:"data"`
		}{ev.ID, ev.Type, ev.At, ev.Data})
		if err != nil {
			continue
		}
		fmt.Println(string(line))
	}
}
