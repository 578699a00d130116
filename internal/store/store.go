// Package store provides the append-only persistence layer: raw inbound
// messages, tool audit records, and per-session agent state snapshots.
// Inbound rows and tool records are insert-only; agent state is the only
// mutable surface, replaced wholesale per session.
package store

import (
	"context"
	"errors"

	"github.com/haasonsaas/concierge/internal/audit"
	"github.com/haasonsaas/concierge/pkg/models"
)

// ErrNotFound is returned when a session has no persisted state.
var ErrNotFound = errors.New("not found")

// Store is the full persistence surface. It also satisfies audit.RecordStore
// so the tool invoker can write through the same backend.
type Store interface {
	// InsertInbound appends one normalized inbound message.
	InsertInbound(ctx context.Context, msg *models.InboundMessage) error

	// ListInbound returns the newest inbound messages for a provider, most
	// recent first. An empty provider matches all. limit <= 0 means no cap.
	ListInbound(ctx context.Context, provider models.Provider, limit int) ([]*models.InboundMessage, error)

	// InsertToolRecord appends one tool audit record.
	InsertToolRecord(ctx context.Context, rec *audit.ToolRecord) error

	// ListToolRecords returns a session's tool records, oldest first. An
	// empty session matches all. limit <= 0 means no cap.
	ListToolRecords(ctx context.Context, sessionID string, limit int) ([]*audit.ToolRecord, error)

	// SaveState replaces the persisted state for a session.
	SaveState(ctx context.Context, sessionID string, state []byte) error

	// LoadState returns a session's persisted state, or ErrNotFound.
	LoadState(ctx context.Context, sessionID string) ([]byte, error)

	// Close releases backend resources.
	Close() error
}
