package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFilename)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
dirs:
  input: ./in
  output: ./out
  success: ./done
  failure: ./failed
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config, dir string)
	}{
		{
			name: "minimal config gets defaults",
			yaml: minimalYAML,
			checkFn: func(t *testing.T, cfg *Config, dir string) {
				if cfg.Service.LogLevel != "info" || cfg.Service.LogFormat != "json" {
					t.Errorf("log defaults not applied: %+v", cfg.Service)
				}
				if cfg.Service.PollInterval != 10*time.Second {
					t.Errorf("poll_interval = %v", cfg.Service.PollInterval)
				}
				if cfg.Processor.Kind != ProcessorPassthrough {
					t.Errorf("processor.kind = %q", cfg.Processor.Kind)
				}
				if cfg.Staging.OnError != "abort" || cfg.Staging.OnConflict != "fail" {
					t.Errorf("staging defaults not applied: %+v", cfg.Staging)
				}
				if cfg.Workspace.Prefix != "automaton_" {
					t.Errorf("workspace.prefix = %q", cfg.Workspace.Prefix)
				}
				if cfg.Dirs.Input != filepath.Join(dir, "in") {
					t.Errorf("dirs.input not resolved against config dir: %q", cfg.Dirs.Input)
				}
				if cfg.Dirs.Temp != "" || cfg.State.Path != "" {
					t.Errorf("optional paths should stay empty: temp=%q state=%q", cfg.Dirs.Temp, cfg.State.Path)
				}
				if cfg.Source != filepath.Join(dir, DefaultFilename) {
					t.Errorf("source = %q", cfg.Source)
				}
			},
		},
		{
			name: "exec processor with env interpolation",
			yaml: minimalYAML + `
service:
  poll_interval: 2s
  log_level: debug
processor:
  kind: exec
  command: ${PROC_BIN}
  args: ["--fast"]
  timeout: 30s
  config:
    token: ${PROC_TOKEN}
state:
  path: /var/lib/automaton/state.db
`,
			env: map[string]string{"PROC_BIN": "/usr/bin/convert", "PROC_TOKEN": "s3cret"},
			checkFn: func(t *testing.T, cfg *Config, _ string) {
				if cfg.Processor.Command != "/usr/bin/convert" {
					t.Errorf("command = %q", cfg.Processor.Command)
				}
				if cfg.Processor.Config["token"] != "s3cret" {
					t.Errorf("config.token = %v", cfg.Processor.Config["token"])
				}
				if cfg.Processor.Timeout != 30*time.Second {
					t.Errorf("timeout = %v", cfg.Processor.Timeout)
				}
				if cfg.Service.PollInterval != 2*time.Second {
					t.Errorf("poll_interval = %v", cfg.Service.PollInterval)
				}
				if cfg.State.Path != "/var/lib/automaton/state.db" {
					t.Errorf("state.path = %q", cfg.State.Path)
				}
				if cfg.State.LockPath() != "/var/lib/automaton/state.db.lock" {
					t.Errorf("lock path = %q", cfg.State.LockPath())
				}
			},
		},
		{
			name:    "missing input dir",
			yaml:    "dirs:\n  output: ./out\n  success: ./s\n  failure: ./f\n",
			wantErr: "dirs.input is required",
		},
		{
			name:    "exec without command",
			yaml:    minimalYAML + "processor:\n  kind: exec\n",
			wantErr: "processor.command is required",
		},
		{
			name:    "unknown processor kind",
			yaml:    minimalYAML + "processor:\n  kind: lambda\n",
			wantErr: "processor.kind must be one of",
		},
		{
			name:    "bad log level",
			yaml:    minimalYAML + "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad conflict policy",
			yaml:    minimalYAML + "staging:\n  on_conflict: overwrite\n",
			wantErr: "staging.on_conflict",
		},
		{
			name:    "unresolved secret in processor config",
			yaml:    minimalYAML + "processor:\n  config:\n    nested:\n      key: ${AUTOMATON_TEST_UNSET_VAR}\n",
			wantErr: "${AUTOMATON_TEST_UNSET_VAR} is not set",
		},
		{
			name:    "invalid yaml",
			yaml:    "dirs: [unclosed\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			dir := t.TempDir()
			path := writeConfig(t, dir, tt.yaml)

			cfg, err := Load(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() failed: %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg, dir)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, minimalYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if cfg.Source != filepath.Join(dir, DefaultFilename) {
		t.Errorf("source = %q", cfg.Source)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadRejectsTamperedLock(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)
	if _, err := Lock(path, false); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() of locked config failed: %v", err)
	}

	writeConfig(t, dir, minimalYAML+"\nservice:\n  log_level: debug\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}
