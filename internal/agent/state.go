package agent

import (
	"encoding/json"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// DefaultInstructions is the baseline persona used when an invocation does not
// supply its own system instructions.
const DefaultInstructions = "You are Concierge, a helpful shopping and support " +
	"assistant. Answer concisely, stay on topic, and use the available tools " +
	"when a question needs store or account data."

// AuditEntry records one stage transition in an invocation's audit trail.
type AuditEntry struct {
	Step      string         `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// AgentState is the working document threaded through every pipeline stage of
// one invocation. Stages never write its fields directly; they return a
// StateDelta that is folded in with per-field merge policies:
//
//   - Messages and AuditLog append, and are never truncated or reordered
//   - every other field is replace-if-present, keep-previous otherwise
type AgentState struct {
	Messages      []models.Message    `json:"messages"`
	Intent        string              `json:"intent,omitempty"`
	SecurityLevel int                 `json:"security_level"`
	SessionID     string              `json:"session_id,omitempty"`
	AuditLog      []AuditEntry        `json:"audit_log"`
	Context       []models.ContextDoc `json:"context,omitempty"`
	Instructions  string              `json:"instructions,omitempty"`
}

// StateDelta is the partial output of a single stage pass. Slice fields append
// onto the running state; pointer fields replace only when set. Context is the
// exception among the replace fields: a non-nil slice (including an empty one)
// counts as present.
type StateDelta struct {
	Messages      []models.Message
	AuditLog      []AuditEntry
	Intent        *string
	SecurityLevel *int
	SessionID     *string
	Context       []models.ContextDoc
	Instructions  *string
}

// NewAgentState builds a state seeded with the baseline persona.
func NewAgentState(sessionID string) *AgentState {
	return &AgentState{
		SessionID:    sessionID,
		Instructions: DefaultInstructions,
	}
}

// Apply folds a stage's delta into the state, field by field.
func (s *AgentState) Apply(d StateDelta) {
	s.Messages = mergeAppend(s.Messages, d.Messages)
	s.AuditLog = mergeAppend(s.AuditLog, d.AuditLog)
	s.Intent = mergeKeepLast(s.Intent, d.Intent)
	s.SecurityLevel = mergeKeepLast(s.SecurityLevel, d.SecurityLevel)
	s.SessionID = mergeKeepLast(s.SessionID, d.SessionID)
	s.Instructions = mergeKeepLast(s.Instructions, d.Instructions)
	if d.Context != nil {
		s.Context = d.Context
	}
}

// LastAssistantTurn returns the most recently appended assistant message, or
// nil when the transcript has none.
func (s *AgentState) LastAssistantTurn() *models.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == models.RoleAssistant {
			return &s.Messages[i]
		}
	}
	return nil
}

// LastUserText returns the text of the latest user turn, or "".
func (s *AgentState) LastUserText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == models.RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// MarshalState serializes the state for persistence.
func (s *AgentState) MarshalState() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState rebuilds a state from its persisted form.
func UnmarshalState(data []byte) (*AgentState, error) {
	var state AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func mergeAppend[T any](prev, next []T) []T {
	if len(next) == 0 {
		return prev
	}
	return append(prev, next...)
}

func mergeKeepLast[T any](prev T, next *T) T {
	if next == nil {
		return prev
	}
	return *next
}

func ptr[T any](v T) *T {
	return &v
}
