package agent

import (
	"context"

	"github.com/haasonsaas/concierge/pkg/models"
)

// LLMProvider is the language-model policy behind the Reasoning stage.
//
// Implementations must be safe for concurrent use; the engine injects the
// provider through its constructor so tests can substitute a deterministic
// fake.
type LLMProvider interface {
	// Complete runs one completion over the conversation and returns the
	// assistant's reply, including any tool-call requests.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Name returns the provider name used for routing and logging.
	Name() string
}

// CompletionRequest contains the parameters for one LLM completion.
type CompletionRequest struct {
	// Model selects the model; empty uses the provider default.
	Model string `json:"model,omitempty"`

	// System is the system prompt, handled separately from messages.
	System string `json:"system,omitempty"`

	// Messages is the conversation history in chronological order.
	Messages []models.Message `json:"messages"`

	// Tools lists the tools the model may request.
	Tools []Tool `json:"-"`

	// MaxTokens bounds the response length; 0 uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// Completion is the settled result of one LLM call.
type Completion struct {
	// Content is the assistant's text, possibly empty for tool-only replies.
	Content string `json:"content,omitempty"`

	// ToolCalls lists the tools the model requested, in request order.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`
}
