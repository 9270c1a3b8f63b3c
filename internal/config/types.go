package config

import "time"

// DefaultFilename is the configuration file looked up by discovery.
const DefaultFilename = "automaton.yaml"

// Config represents the complete automaton configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Dirs      DirsConfig      `yaml:"dirs"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Staging   StagingConfig   `yaml:"staging"`
	Processor ProcessorConfig `yaml:"processor"`
	State     StateConfig     `yaml:"state"`

	// Source is the absolute path the configuration was loaded from.
	Source string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DirsConfig is the directory layout. Relative paths are resolved against
// the directory holding the configuration file.
type DirsConfig struct {
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	Success string `yaml:"success"`
	Failure string `yaml:"failure"`
	Temp    string `yaml:"temp"`
}

// WorkspaceConfig controls workspace naming and retention of failed ones.
type WorkspaceConfig struct {
	Prefix    string        `yaml:"prefix"`
	Retention time.Duration `yaml:"retention"`
}

// StagingConfig controls staging and routing fault handling.
type StagingConfig struct {
	OnError      string `yaml:"on_error"`    // abort | fail_unit
	OnConflict   string `yaml:"on_conflict"` // fail | rename
	IgnoreHidden bool   `yaml:"ignore_hidden"`
}

const (
	ProcessorExec        = "exec"
	ProcessorPassthrough = "passthrough"
)

// ProcessorConfig selects and configures the processor.
type ProcessorConfig struct {
	Kind    string         `yaml:"kind"`
	Command string         `yaml:"command,omitempty"`
	Args    []string       `yaml:"args,omitempty"`
	Timeout time.Duration  `yaml:"timeout,omitempty"`
	Grace   time.Duration  `yaml:"grace,omitempty"`
	Suffix  string         `yaml:"suffix,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// StateConfig locates the run ledger and the instance lock. An empty path
// disables both.
type StateConfig struct {
	Path string `yaml:"path"`
}

// LockPath returns the instance lock file that sits beside the ledger.
func (s StateConfig) LockPath() string {
	if s.Path == "" {
		return ""
	}
	return s.Path + ".lock"
}

// ChecksumManifest is the .checksums file written by `config lock`.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// IntegrityResult collects the outcome of checksum verification.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}
