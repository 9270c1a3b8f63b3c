package config

import (
	"fmt"
	"slices"
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validOnError    = []string{"abort", "fail_unit"}
	validOnConflict = []string{"fail", "rename"}
	validKinds      = []string{ProcessorExec, ProcessorPassthrough}
)

func validate(cfg *Config) error {
	if !slices.Contains(validLogLevels, cfg.Service.LogLevel) {
		return fmt.Errorf("service.log_level must be one of: %v (got %q)", validLogLevels, cfg.Service.LogLevel)
	}
	if !slices.Contains(validLogFormats, cfg.Service.LogFormat) {
		return fmt.Errorf("service.log_format must be one of: %v (got %q)", validLogFormats, cfg.Service.LogFormat)
	}
	if cfg.Service.PollInterval <= 0 {
		return fmt.Errorf("service.poll_interval must be positive")
	}

	for _, d := range []struct{ key, value string }{
		{"dirs.input", cfg.Dirs.Input},
		{"dirs.output", cfg.Dirs.Output},
		{"dirs.success", cfg.Dirs.Success},
		{"dirs.failure", cfg.Dirs.Failure},
	} {
		if d.value == "" {
			return fmt.Errorf("%s is required", d.key)
		}
		if err := checkUnresolved(d.key, d.value); err != nil {
			return err
		}
	}
	if err := checkUnresolved("dirs.temp", cfg.Dirs.Temp); err != nil {
		return err
	}
	if err := checkUnresolved("state.path", cfg.State.Path); err != nil {
		return err
	}

	if cfg.Workspace.Retention < 0 {
		return fmt.Errorf("workspace.retention must not be negative")
	}

	if !slices.Contains(validOnError, cfg.Staging.OnError) {
		return fmt.Errorf("staging.on_error must be one of: %v (got %q)", validOnError, cfg.Staging.OnError)
	}
	if !slices.Contains(validOnConflict, cfg.Staging.OnConflict) {
		return fmt.Errorf("staging.on_conflict must be one of: %v (got %q)", validOnConflict, cfg.Staging.OnConflict)
	}

	p := cfg.Processor
	if !slices.Contains(validKinds, p.Kind) {
		return fmt.Errorf("processor.kind must be one of: %v (got %q)", validKinds, p.Kind)
	}
	if p.Kind == ProcessorExec && p.Command == "" {
		return fmt.Errorf("processor.command is required for kind %q", ProcessorExec)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("processor.timeout must not be negative")
	}
	if p.Config != nil {
		if err := checkUnresolvedEnvVars(p.Config, "processor.config"); err != nil {
			return err
		}
	}
	return nil
}

func checkUnresolved(key, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", key, m[1])
	}
	return nil
}

// checkUnresolvedEnvVars walks processor config so an unset secret is not
// handed to the processor as a literal placeholder.
func checkUnresolvedEnvVars(data map[string]any, prefix string) error {
	for key, val := range data {
		path := prefix + "." + key
		switch v := val.(type) {
		case string:
			if err := checkUnresolved(path, v); err != nil {
				return err
			}
		case map[string]any:
			if err := checkUnresolvedEnvVars(v, path); err != nil {
				return err
			}
		}
	}
	return nil
}
