package agent

import (
	"errors"
	"fmt"
)

// ErrMaxIterations is returned when the Tool Execution to Reasoning cycle
// exceeds the configured iteration cap.
var ErrMaxIterations = errors.New("reached max reasoning iterations")

// ErrNoProvider is returned when the engine is invoked without an LLM provider.
var ErrNoProvider = errors.New("no LLM provider configured")

// ErrNilState is returned when Invoke is called with a nil state.
var ErrNilState = errors.New("agent state is nil")

// EngineError wraps a failure from a specific pipeline stage. A stage failure
// aborts the whole invocation; no partial state is committed.
type EngineError struct {
	Stage Stage
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine stage %s: %v", e.Stage, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ValidationError reports missing or malformed caller input. It is surfaced
// to the caller and never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}
