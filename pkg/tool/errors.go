package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTool is returned when registering a tool name twice
var ErrDuplicateTool = errors.New("tool already registered")

// UnknownToolError indicates a lookup for a name that was never registered
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// InvalidArgumentsError indicates the arguments failed schema validation.
// Fields lists the offending fields with validator detail.
type InvalidArgumentsError struct {
	Tool   string
	Fields []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Fields, "; "))
}

// ExecutionError wraps a failure raised by a tool handler
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
