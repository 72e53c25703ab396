// Package tools provides the tool registry and execution framework.
//
// This file defines the typed errors of tool registration and
// dispatch. Dispatch errors are recoverable: the agent loop renders
// them into tool turns so the model can adjust, instead of aborting
// the conversation.
package tools

import "fmt"

// DuplicateToolNameError is returned by Register when a descriptor
// name is already taken. Registration rejects rather than overwrites.
type DuplicateToolNameError struct {
	Name string
}

func (e *DuplicateToolNameError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// UnknownToolError is returned when an invocation targets a tool that
// is not present in the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// InvalidArgumentsError is returned when invocation arguments fail
// schema validation.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Reason)
}

// ExecutionError wraps a failure raised by the tool handler itself,
// including per-call timeouts.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
