package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Handler executes a tool with structured input and returns its output.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Invoker runs tool handlers and records every attempt.
//
// The audit write happens in a deferred block so it runs identically on
// success and failure. A failing record store is logged and swallowed; a
// broken audit sink must never break the tool it is auditing.
type Invoker struct {
	store  RecordStore
	logger *slog.Logger
}

// NewInvoker creates an invoker writing records to store. A nil logger falls
// back to slog.Default.
func NewInvoker(store RecordStore, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{store: store, logger: logger}
}

// Invoke runs handler and writes exactly one ToolRecord for the attempt.
// Duration covers call start to handler settle. On failure the record carries
// the stringified error and no output, and the returned error is a
// *ToolExecutionError wrapping the handler's.
func (i *Invoker) Invoke(ctx context.Context, toolName string, input json.RawMessage, handler Handler, sessionID string) (string, error) {
	start := time.Now()
	var output string
	var execErr error

	defer func() {
		rec := &ToolRecord{
			ID:         uuid.NewString(),
			ToolName:   toolName,
			Input:      input,
			DurationMs: time.Since(start).Milliseconds(),
			SessionID:  sessionID,
			CreatedAt:  start,
		}
		if execErr != nil {
			rec.Error = execErr.Error()
		} else {
			rec.Output = output
		}
		i.writeRecord(ctx, rec)
	}()

	output, execErr = handler(ctx, input)
	if execErr != nil {
		return "", &ToolExecutionError{Tool: toolName, Err: execErr}
	}
	return output, nil
}

func (i *Invoker) writeRecord(ctx context.Context, rec *ToolRecord) {
	if i.store == nil {
		return
	}
	// The record must outlive a cancelled invocation; detach from the
	// caller's deadline.
	if err := i.store.InsertToolRecord(context.WithoutCancel(ctx), rec); err != nil {
		i.logger.Warn("tool audit write failed",
			"tool", rec.ToolName,
			"session_id", rec.SessionID,
			"error", err,
		)
	}
}
