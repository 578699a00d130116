package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation transcript.
//
// Assistant turns may carry ToolCalls; tool turns carry the result of a
// single call, correlated back to it through ToolCallID.
type Message struct {
	ID         string     `json:"id,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ContextDoc is a retrieved-document summary attached to a conversation.
type ContextDoc struct {
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
}
