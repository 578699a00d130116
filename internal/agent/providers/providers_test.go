package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/pkg/models"
)

type stubTool struct {
	name   string
	schema string
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub tool" }
func (t *stubTool) Schema() json.RawMessage {
	return json.RawMessage(t.schema)
}
func (t *stubTool) Execute(_ context.Context, _ json.RawMessage) (string, error) {
	return "", nil
}

func transcript() []models.Message {
	return []models.Message{
		{Role: models.RoleUser, Content: "find my order"},
		{Role: models.RoleAssistant, Content: "", ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "lookup_order", Input: json.RawMessage(`{"order_id":"A1"}`)},
		}},
		{Role: models.RoleTool, ToolCallID: "call_1", Content: "shipped yesterday"},
		{Role: models.RoleAssistant, Content: "It shipped yesterday."},
	}
}

func TestOpenAIConvertMessages(t *testing.T) {
	p := &OpenAIProvider{}
	out := p.convertMessages(transcript(), "be brief")

	if len(out) != 5 {
		t.Fatalf("len = %d, want 5 (system + 4 turns)", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be brief" {
		t.Errorf("first message = %+v, want system prompt", out[0])
	}
	if out[2].Role != openai.ChatMessageRoleAssistant || len(out[2].ToolCalls) != 1 {
		t.Fatalf("assistant turn = %+v, want one tool call", out[2])
	}
	tc := out[2].ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "lookup_order" || tc.Function.Arguments != `{"order_id":"A1"}` {
		t.Errorf("tool call = %+v, want lookup_order with args", tc)
	}
	if out[3].Role != openai.ChatMessageRoleTool || out[3].ToolCallID != "call_1" {
		t.Errorf("tool turn = %+v, want role tool with call id", out[3])
	}
}

func TestOpenAIConvertTools(t *testing.T) {
	p := &OpenAIProvider{}
	tools := p.convertTools([]agent.Tool{
		&stubTool{name: "good", schema: `{"type":"object","properties":{"q":{"type":"string"}}}`},
		&stubTool{name: "bad", schema: `not json`},
	})

	if len(tools) != 2 {
		t.Fatalf("len = %d, want 2", len(tools))
	}
	if tools[0].Function.Name != "good" {
		t.Errorf("name = %q, want good", tools[0].Function.Name)
	}
	// Bad schema degrades to an empty object schema instead of failing.
	params, ok := tools[1].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("bad schema parameters = %v, want empty object schema", tools[1].Function.Parameters)
	}
}

func TestAnthropicConvertMessages(t *testing.T) {
	p := &AnthropicProvider{}
	out, err := p.convertMessages(transcript())
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}
	// user, assistant tool call, tool result (as user), assistant text
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if out[1].Role != "assistant" || out[2].Role != "user" {
		t.Errorf("roles = [%s %s], want assistant then user", out[1].Role, out[2].Role)
	}
}

func TestAnthropicConvertMessagesBadToolInput(t *testing.T) {
	p := &AnthropicProvider{}
	_, err := p.convertMessages([]models.Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "x", Input: json.RawMessage(`{broken`)},
		}},
	})
	if err == nil {
		t.Error("convertMessages: expected error for bad tool input")
	}
}

func TestProviderConstructorsRequireKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Error("NewOpenAIProvider: expected error without key")
	}
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Error("NewAnthropicProvider: expected error without key")
	}

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant-test"})
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	if p.Name() != "anthropic" || p.maxRetries != 3 {
		t.Errorf("provider = {%s %d}, want defaults applied", p.Name(), p.maxRetries)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("rate limit exceeded"), true},
		{errors.New("status 503"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("invalid api key"), false},
	}
	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
