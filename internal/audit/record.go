// Package audit wraps tool execution with timing, input/output capture, and
// best-effort persistence of one immutable record per invocation attempt.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ToolRecord describes a single tool invocation attempt. Exactly one record is
// produced per attempt, success or failure, and it is never mutated after
// creation.
type ToolRecord struct {
	ID         string          `json:"id"`
	ToolName   string          `json:"tool_name"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	SessionID  string          `json:"session_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RecordStore is the insert-style sink for tool records. The invoker treats
// writes as best-effort; implementations should not assume callers retry.
type RecordStore interface {
	InsertToolRecord(ctx context.Context, rec *ToolRecord) error
}

// ToolExecutionError wraps a tool handler failure. The failure is captured in
// an audit record before being re-raised, aborting the reasoning loop.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
