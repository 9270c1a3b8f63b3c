package automaton

import (
	"errors"
	"fmt"
)

// ErrContractViolation is returned when a Processor result cannot be routed:
// it is missing, or it names outputs outside the workspace out/ directory.
var ErrContractViolation = errors.New("processor contract violation")

// ConfigurationError reports an unusable directory layout at construction.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResourceError reports a filesystem failure while creating, staging into,
// routing out of, or removing a workspace.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ContractError names the offending output path.
type ContractError struct {
	Path   string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrContractViolation, e.Path, e.Reason)
}

func (e *ContractError) Unwrap() error { return ErrContractViolation }
