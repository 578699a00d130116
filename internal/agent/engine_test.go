package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/concierge/internal/audit"
	"github.com/haasonsaas/concierge/pkg/models"
)

// scriptedProvider returns canned completions in order and records every
// request it sees.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []*Completion
	requests []*CompletionRequest
	err      error
}

func (p *scriptedProvider) Complete(_ context.Context, req *CompletionRequest) (*Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.script) == 0 {
		return &Completion{Content: "done"}, nil
	}
	next := p.script[0]
	p.script = p.script[1:]
	return next, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type echoTool struct {
	name string
	err  error
}

func (t *echoTool) Name() string        { return t.name }
func (t *echoTool) Description() string { return "echoes its input" }
func (t *echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}

func (t *echoTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return "echo:" + string(input), nil
}

type fakeStateStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *fakeStateStore) SaveState(_ context.Context, sessionID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[sessionID] = state
	return nil
}

type fakeRetriever struct {
	docs  []models.ContextDoc
	err   error
	query string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string, _ int) ([]models.ContextDoc, error) {
	r.query = query
	return r.docs, r.err
}

func userState(sessionID, text string) *AgentState {
	state := NewAgentState(sessionID)
	state.Messages = []models.Message{
		{ID: "u1", SessionID: sessionID, Role: models.RoleUser, Content: text},
	}
	return state
}

func auditSteps(state *AgentState) []string {
	steps := make([]string, 0, len(state.AuditLog))
	for _, e := range state.AuditLog {
		steps = append(steps, e.Step)
	}
	return steps
}

func TestInvokeWithoutTools(t *testing.T) {
	provider := &scriptedProvider{script: []*Completion{{Content: "hi there"}}}
	engine := NewEngine(provider, nil, nil)

	state, err := engine.Invoke(context.Background(), userState("sess-1", "hello"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	last := state.LastAssistantTurn()
	if last == nil || last.Content != "hi there" {
		t.Fatalf("LastAssistantTurn = %v, want content %q", last, "hi there")
	}
	if state.Intent != "greeting" {
		t.Errorf("Intent = %q, want greeting", state.Intent)
	}

	want := []string{"Hydration", "Perception", "Retrieval", "Reasoning", "Response", "State Update"}
	got := auditSteps(state)
	if len(got) != len(want) {
		t.Fatalf("audit steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("audit step %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInvokeRunsToolLoop(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&echoTool{name: "search_kb"})

	provider := &scriptedProvider{script: []*Completion{
		{ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "search_kb", Input: json.RawMessage(`{"q":"returns"}`)},
		}},
		{Content: "you have 30 days"},
	}}
	engine := NewEngine(provider, registry, nil)

	state, err := engine.Invoke(context.Background(), userState("sess-2", "what is the return policy"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var toolTurn *models.Message
	for i := range state.Messages {
		if state.Messages[i].Role == models.RoleTool {
			toolTurn = &state.Messages[i]
		}
	}
	if toolTurn == nil {
		t.Fatal("no tool turn in transcript")
	}
	if toolTurn.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want call_1", toolTurn.ToolCallID)
	}
	if !strings.HasPrefix(toolTurn.Content, "echo:") {
		t.Errorf("tool turn content = %q, want echo output", toolTurn.Content)
	}

	if last := state.LastAssistantTurn(); last == nil || last.Content != "you have 30 days" {
		t.Errorf("final assistant turn = %v, want settled text", last)
	}

	steps := auditSteps(state)
	joined := strings.Join(steps, ",")
	if !strings.Contains(joined, "Reasoning,Tool Execution,Reasoning") {
		t.Errorf("audit steps = %v, want reasoning/tool/reasoning cycle", steps)
	}
}

func TestInvokeFoldsSiblingToolCalls(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&echoTool{name: "a"})
	registry.Register(&echoTool{name: "b"})

	provider := &scriptedProvider{script: []*Completion{
		{ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "a", Input: json.RawMessage(`1`)},
			{ID: "c2", Name: "b", Input: json.RawMessage(`2`)},
			{ID: "c3", Name: "a", Input: json.RawMessage(`3`)},
		}},
		{Content: "done"},
	}}
	engine := NewEngine(provider, registry, &Config{ToolConcurrency: 2})

	state, err := engine.Invoke(context.Background(), userState("sess-3", "run things"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var ids []string
	for _, m := range state.Messages {
		if m.Role == models.RoleTool {
			ids = append(ids, m.ToolCallID)
		}
	}
	if len(ids) != 3 {
		t.Fatalf("tool turns = %d, want 3", len(ids))
	}
	// Results fold in request order regardless of completion order.
	for i, want := range []string{"c1", "c2", "c3"} {
		if ids[i] != want {
			t.Errorf("tool turn %d = %q, want %q", i, ids[i], want)
		}
	}

	// The second completion request must already contain all three results.
	second := provider.requests[1]
	toolTurns := 0
	for _, m := range second.Messages {
		if m.Role == models.RoleTool {
			toolTurns++
		}
	}
	if toolTurns != 3 {
		t.Errorf("tool turns in second request = %d, want 3", toolTurns)
	}
}

func TestInvokeToolFailureAborts(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&echoTool{name: "broken", err: errors.New("boom")})

	provider := &scriptedProvider{script: []*Completion{
		{ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "broken", Input: json.RawMessage(`{}`)},
		}},
	}}
	store := &fakeStateStore{}
	engine := NewEngine(provider, registry, nil)
	engine.SetStateStore(store)

	_, err := engine.Invoke(context.Background(), userState("sess-4", "go"))
	if err == nil {
		t.Fatal("Invoke: expected error")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Stage != StageToolExecution {
		t.Fatalf("error = %v, want EngineError at tool_execution", err)
	}
	var toolErr *audit.ToolExecutionError
	if !errors.As(err, &toolErr) || toolErr.Tool != "broken" {
		t.Errorf("error = %v, want ToolExecutionError for broken", err)
	}
	if len(store.saved) != 0 {
		t.Errorf("state persisted on failure, want none")
	}
}

func TestInvokeUnknownToolFails(t *testing.T) {
	provider := &scriptedProvider{script: []*Completion{
		{ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "missing", Input: json.RawMessage(`{}`)},
		}},
	}}
	engine := NewEngine(provider, NewToolRegistry(), nil)

	_, err := engine.Invoke(context.Background(), userState("sess-5", "go"))
	if err == nil || !strings.Contains(err.Error(), "tool not found") {
		t.Fatalf("error = %v, want tool not found", err)
	}
}

func TestInvokeMaxIterations(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&echoTool{name: "loop"})

	looping := &loopingProvider{}
	engine := NewEngine(looping, registry, &Config{MaxIterations: 3})

	_, err := engine.Invoke(context.Background(), userState("sess-6", "go"))
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("error = %v, want ErrMaxIterations", err)
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Stage != StageReasoning {
		t.Errorf("error = %v, want EngineError at reasoning", err)
	}
	if looping.calls != 3 {
		t.Errorf("provider calls = %d, want 3", looping.calls)
	}
}

type loopingProvider struct {
	calls int
}

func (p *loopingProvider) Complete(_ context.Context, _ *CompletionRequest) (*Completion, error) {
	p.calls++
	return &Completion{ToolCalls: []models.ToolCall{
		{ID: "again", Name: "loop", Input: json.RawMessage(`{}`)},
	}}, nil
}

func (p *loopingProvider) Name() string { return "looping" }

func TestInvokeRetrievalFeedsSystemPrompt(t *testing.T) {
	provider := &scriptedProvider{script: []*Completion{{Content: "answer"}}}
	retriever := &fakeRetriever{docs: []models.ContextDoc{
		{Title: "Return policy", Score: 0.9, Source: "kb"},
	}}
	engine := NewEngine(provider, nil, nil)
	engine.SetRetriever(retriever)

	state, err := engine.Invoke(context.Background(), userState("sess-7", "what is the return policy"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if retriever.query != "what is the return policy" {
		t.Errorf("retriever query = %q, want the user text", retriever.query)
	}
	if len(state.Context) != 1 {
		t.Fatalf("Context = %v, want 1 doc", state.Context)
	}
	if sys := provider.requests[0].System; !strings.Contains(sys, "Return policy") {
		t.Errorf("system prompt = %q, want retrieved doc listed", sys)
	}
}

func TestInvokeRetrievalFailureAborts(t *testing.T) {
	provider := &scriptedProvider{}
	engine := NewEngine(provider, nil, nil)
	engine.SetRetriever(&fakeRetriever{err: errors.New("index offline")})

	_, err := engine.Invoke(context.Background(), userState("sess-8", "hi"))
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Stage != StageRetrieval {
		t.Fatalf("error = %v, want EngineError at retrieval", err)
	}
	if len(provider.requests) != 0 {
		t.Errorf("provider called %d times after retrieval failure, want 0", len(provider.requests))
	}
}

func TestInvokePersistsState(t *testing.T) {
	provider := &scriptedProvider{script: []*Completion{{Content: "saved"}}}
	store := &fakeStateStore{}
	engine := NewEngine(provider, nil, nil)
	engine.SetStateStore(store)

	if _, err := engine.Invoke(context.Background(), userState("sess-9", "hello")); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	data, ok := store.saved["sess-9"]
	if !ok {
		t.Fatal("no state saved for sess-9")
	}
	got, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("UnmarshalState: %v", err)
	}
	if got.LastAssistantTurn() == nil || got.LastAssistantTurn().Content != "saved" {
		t.Errorf("persisted state missing assistant turn")
	}
}

func TestInvokeHydratesDefaults(t *testing.T) {
	provider := &scriptedProvider{script: []*Completion{{Content: "ok"}}}
	engine := NewEngine(provider, nil, nil)

	state := &AgentState{Messages: []models.Message{
		{Role: models.RoleUser, Content: "hello"},
	}}
	out, err := engine.Invoke(context.Background(), state)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.SessionID == "" {
		t.Error("SessionID not hydrated")
	}
	if out.Instructions != DefaultInstructions {
		t.Errorf("Instructions = %q, want defaults", out.Instructions)
	}
}

func TestInvokeGuards(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	if _, err := engine.Invoke(context.Background(), NewAgentState("s")); !errors.Is(err, ErrNoProvider) {
		t.Errorf("error = %v, want ErrNoProvider", err)
	}

	engine = NewEngine(&scriptedProvider{}, nil, nil)
	if _, err := engine.Invoke(context.Background(), nil); !errors.Is(err, ErrNilState) {
		t.Errorf("error = %v, want ErrNilState", err)
	}
}

func TestInvokeProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("rate limited")}
	engine := NewEngine(provider, nil, nil)

	_, err := engine.Invoke(context.Background(), userState("sess-10", "hi"))
	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Stage != StageReasoning {
		t.Fatalf("error = %v, want EngineError at reasoning", err)
	}
}

func TestStageForStep(t *testing.T) {
	stage, ok := StageForStep("Tool Execution")
	if !ok || stage != StageToolExecution {
		t.Errorf("StageForStep(Tool Execution) = %v %v, want tool_execution true", stage, ok)
	}
	if _, ok := StageForStep("Nonsense"); ok {
		t.Error("StageForStep(Nonsense) = true, want false")
	}
}
