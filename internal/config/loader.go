package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Defaults returns the configuration used for every unset field.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "automaton",
			LogLevel:     "info",
			LogFormat:    "json",
			PollInterval: 10 * time.Second,
		},
		Workspace: WorkspaceConfig{
			Prefix:    "automaton_",
			Retention: 7 * 24 * time.Hour,
		},
		Staging: StagingConfig{
			OnError:    "abort",
			OnConflict: "fail",
		},
		Processor: ProcessorConfig{
			Kind:    ProcessorPassthrough,
			Grace:   5 * time.Second,
		},
	}
}

// Load reads, interpolates, defaults and validates a configuration file. A
// directory is accepted and searched for automaton.yaml. When a .checksums
// manifest sits beside the file it must match.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFilename)
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but %s not found: %s", DefaultFilename, absPath)
		}
	}

	if err := VerifyLock(absPath); err != nil {
		return nil, err
	}

	cfg, err := parseFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.Source = absPath

	cfg = applyConfigDefaults(cfg)
	resolvePaths(cfg, filepath.Dir(absPath))

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return &cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.PollInterval == 0 {
		cfg.Service.PollInterval = defaults.Service.PollInterval
	}

	if cfg.Workspace.Prefix == "" {
		cfg.Workspace.Prefix = defaults.Workspace.Prefix
	}
	if cfg.Workspace.Retention == 0 {
		cfg.Workspace.Retention = defaults.Workspace.Retention
	}

	if cfg.Staging.OnError == "" {
		cfg.Staging.OnError = defaults.Staging.OnError
	}
	if cfg.Staging.OnConflict == "" {
		cfg.Staging.OnConflict = defaults.Staging.OnConflict
	}

	if cfg.Processor.Kind == "" {
		cfg.Processor.Kind = defaults.Processor.Kind
	}
	if cfg.Processor.Grace == 0 {
		cfg.Processor.Grace = defaults.Processor.Grace
	}

	return cfg
}

// resolvePaths anchors relative paths to the configuration directory.
func resolvePaths(cfg *Config, baseDir string) {
	for _, p := range []*string{
		&cfg.Dirs.Input,
		&cfg.Dirs.Output,
		&cfg.Dirs.Success,
		&cfg.Dirs.Failure,
		&cfg.Dirs.Temp,
		&cfg.State.Path,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place and rejected by validation.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
