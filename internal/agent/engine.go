// Package agent implements the fixed-pipeline orchestration engine that turns
// one inbound user message into an assistant reply through a deterministic
// sequence of stages, with a bounded tool-execution loop around the LLM.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/internal/audit"
	"github.com/haasonsaas/concierge/pkg/models"
)

// Stage names one step of the engine pipeline.
type Stage string

const (
	StageHydration     Stage = "hydration"
	StagePerception    Stage = "perception"
	StageRetrieval     Stage = "retrieval"
	StageReasoning     Stage = "reasoning"
	StageToolExecution Stage = "tool_execution"
	StageResponse      Stage = "response"
	StageStateUpdate   Stage = "state_update"
)

// stageSteps maps stages to the human-readable labels written to the audit
// trail. StageForStep inverts it for consumers reading trails back.
var stageSteps = map[Stage]string{
	StageHydration:     "Hydration",
	StagePerception:    "Perception",
	StageRetrieval:     "Retrieval",
	StageReasoning:     "Reasoning",
	StageToolExecution: "Tool Execution",
	StageResponse:      "Response",
	StageStateUpdate:   "State Update",
}

// StageForStep resolves an audit-trail step label back to its stage.
func StageForStep(step string) (Stage, bool) {
	for stage, label := range stageSteps {
		if label == step {
			return stage, true
		}
	}
	return "", false
}

// ToolInvoker executes a tool handler and records the attempt. Satisfied by
// *audit.Invoker.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, input json.RawMessage, handler audit.Handler, sessionID string) (string, error)
}

// Retriever fetches context documents relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]models.ContextDoc, error)
}

// StateStore persists the final agent state of an invocation.
type StateStore interface {
	SaveState(ctx context.Context, sessionID string, state []byte) error
}

// Config tunes engine behavior. The zero value is usable; Invoke applies
// defaults for unset fields.
type Config struct {
	// Model is passed through to the provider; empty uses its default.
	Model string

	// MaxTokens bounds each completion. Default 1024.
	MaxTokens int

	// MaxIterations caps Reasoning passes per invocation. Default 10.
	MaxIterations int

	// ToolConcurrency bounds sibling tool calls running in parallel.
	// Default 4.
	ToolConcurrency int

	// ContextLimit caps documents pulled per retrieval. Default 3.
	ContextLimit int
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 1024
	}
	if out.MaxIterations <= 0 {
		out.MaxIterations = 10
	}
	if out.ToolConcurrency <= 0 {
		out.ToolConcurrency = 4
	}
	if out.ContextLimit <= 0 {
		out.ContextLimit = 3
	}
	return out
}

// Engine drives the pipeline:
//
//	Hydration -> Perception -> Retrieval -> Reasoning -> Response -> State Update
//
// with a Tool Execution loop between Reasoning and Response whenever the
// assistant turn requests tools. Stage order is fixed; stages communicate only
// through StateDelta values folded into the shared AgentState.
type Engine struct {
	provider  LLMProvider
	registry  *ToolRegistry
	config    Config
	retriever Retriever
	invoker   ToolInvoker
	states    StateStore
	logger    *slog.Logger
	metrics   *Metrics
}

// NewEngine creates an engine around a provider and tool registry. A nil
// registry gets an empty one; cfg may be nil for defaults.
func NewEngine(provider LLMProvider, registry *ToolRegistry, cfg *Config) *Engine {
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Engine{
		provider: provider,
		registry: registry,
		config:   cfg.withDefaults(),
		invoker:  audit.NewInvoker(nil, nil),
		logger:   slog.Default(),
	}
}

// SetRetriever wires the Retrieval stage; without one the stage is a no-op.
func (e *Engine) SetRetriever(r Retriever) { e.retriever = r }

// SetInvoker replaces the audited tool invoker.
func (e *Engine) SetInvoker(inv ToolInvoker) {
	if inv != nil {
		e.invoker = inv
	}
}

// SetStateStore wires State Update persistence; without one the stage only
// audits.
func (e *Engine) SetStateStore(s StateStore) { e.states = s }

// SetLogger replaces the engine logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetMetrics wires Prometheus metrics; nil disables collection.
func (e *Engine) SetMetrics(m *Metrics) { e.metrics = m }

// Invoke runs the full pipeline over state and returns the same state with
// every stage's delta folded in. On any stage failure it returns a
// *EngineError naming the stage; the state store is not written on failure.
func (e *Engine) Invoke(ctx context.Context, state *AgentState) (*AgentState, error) {
	if e.provider == nil {
		return nil, ErrNoProvider
	}
	if state == nil {
		return nil, ErrNilState
	}

	err := e.run(ctx, state)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.Invocations.WithLabelValues(status).Inc()
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (e *Engine) run(ctx context.Context, state *AgentState) error {
	if err := e.step(ctx, state, StageHydration, e.hydrate); err != nil {
		return err
	}
	if err := e.step(ctx, state, StagePerception, e.perceive); err != nil {
		return err
	}
	if err := e.step(ctx, state, StageRetrieval, e.retrieve); err != nil {
		return err
	}

	for iteration := 0; ; iteration++ {
		if iteration >= e.config.MaxIterations {
			e.logger.Error("reasoning loop exceeded iteration cap",
				"session_id", state.SessionID,
				"max_iterations", e.config.MaxIterations,
			)
			return &EngineError{Stage: StageReasoning, Err: ErrMaxIterations}
		}
		if err := e.step(ctx, state, StageReasoning, e.reason); err != nil {
			return err
		}
		last := state.LastAssistantTurn()
		if last == nil || len(last.ToolCalls) == 0 {
			break
		}
		if err := e.step(ctx, state, StageToolExecution, e.executeTools); err != nil {
			return err
		}
	}

	if err := e.step(ctx, state, StageResponse, e.respond); err != nil {
		return err
	}
	return e.step(ctx, state, StageStateUpdate, e.commit)
}

type stageFunc func(ctx context.Context, state *AgentState) (StateDelta, error)

// step runs one stage, times it, and folds its delta. The stage's audit entry
// travels inside the delta so the trail and the state change commit together.
func (e *Engine) step(ctx context.Context, state *AgentState, stage Stage, fn stageFunc) error {
	start := time.Now()
	delta, err := fn(ctx, state)
	if e.metrics != nil {
		e.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		e.logger.Error("pipeline stage failed",
			"stage", stage,
			"session_id", state.SessionID,
			"error", err,
		)
		return &EngineError{Stage: stage, Err: err}
	}
	state.Apply(delta)
	return nil
}

func stageEntry(stage Stage, details map[string]any) AuditEntry {
	return AuditEntry{
		Step:      stageSteps[stage],
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

// hydrate fills defaults the caller left unset.
func (e *Engine) hydrate(_ context.Context, state *AgentState) (StateDelta, error) {
	delta := StateDelta{}
	if state.SessionID == "" {
		delta.SessionID = ptr(uuid.NewString())
	}
	if state.Instructions == "" {
		delta.Instructions = ptr(DefaultInstructions)
	}
	delta.AuditLog = []AuditEntry{stageEntry(StageHydration, map[string]any{
		"messages": len(state.Messages),
	})}
	return delta, nil
}

// intentRules classifies in listed order; first match wins.
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{"payment", []string{"pay", "refund", "charge", "billing", "invoice"}},
	{"purchase", []string{"buy", "order", "purchase", "checkout", "cart"}},
	{"support", []string{"help", "problem", "issue", "broken", "cancel"}},
	{"pricing", []string{"price", "cost", "how much", "fee"}},
	{"greeting", []string{"hello", "hi", "hey", "good morning"}},
}

// intentSecurity maps intents to a minimum security level. Levels only ever
// escalate within an invocation.
var intentSecurity = map[string]int{
	"payment": 2,
	"support": 1,
}

func classifyIntent(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return "general"
}

// perceive classifies the latest user turn and escalates the security level
// for sensitive intents.
func (e *Engine) perceive(_ context.Context, state *AgentState) (StateDelta, error) {
	intent := classifyIntent(state.LastUserText())
	delta := StateDelta{Intent: ptr(intent)}
	if lvl, ok := intentSecurity[intent]; ok && lvl > state.SecurityLevel {
		delta.SecurityLevel = ptr(lvl)
	}
	delta.AuditLog = []AuditEntry{stageEntry(StagePerception, map[string]any{
		"intent": intent,
	})}
	return delta, nil
}

// retrieve pulls context documents for the latest user turn. The fetched set
// replaces any previous context wholesale.
func (e *Engine) retrieve(ctx context.Context, state *AgentState) (StateDelta, error) {
	if e.retriever == nil {
		return StateDelta{AuditLog: []AuditEntry{stageEntry(StageRetrieval, map[string]any{
			"documents": 0,
		})}}, nil
	}
	docs, err := e.retriever.Retrieve(ctx, state.LastUserText(), e.config.ContextLimit)
	if err != nil {
		return StateDelta{}, fmt.Errorf("retrieve context: %w", err)
	}
	if docs == nil {
		docs = []models.ContextDoc{}
	}
	return StateDelta{
		Context: docs,
		AuditLog: []AuditEntry{stageEntry(StageRetrieval, map[string]any{
			"documents": len(docs),
		})},
	}, nil
}

// reason runs one LLM completion and appends the assistant turn.
func (e *Engine) reason(ctx context.Context, state *AgentState) (StateDelta, error) {
	req := &CompletionRequest{
		Model:     e.config.Model,
		System:    e.systemPrompt(state),
		Messages:  state.Messages,
		Tools:     e.registry.List(),
		MaxTokens: e.config.MaxTokens,
	}
	completion, err := e.provider.Complete(ctx, req)
	if err != nil {
		return StateDelta{}, fmt.Errorf("provider %s: %w", e.provider.Name(), err)
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: state.SessionID,
		Role:      models.RoleAssistant,
		Content:   completion.Content,
		ToolCalls: completion.ToolCalls,
		CreatedAt: time.Now().UTC(),
	}
	return StateDelta{
		Messages: []models.Message{msg},
		AuditLog: []AuditEntry{stageEntry(StageReasoning, map[string]any{
			"provider":   e.provider.Name(),
			"tool_calls": len(completion.ToolCalls),
		})},
	}, nil
}

func (e *Engine) systemPrompt(state *AgentState) string {
	if len(state.Context) == 0 {
		return state.Instructions
	}
	var b strings.Builder
	b.WriteString(state.Instructions)
	b.WriteString("\n\nRelevant context:\n")
	for _, doc := range state.Context {
		fmt.Fprintf(&b, "- %s (%s)\n", doc.Title, doc.Source)
	}
	return b.String()
}

// executeTools runs every tool call from the last assistant turn. Sibling
// calls run concurrently under a semaphore; all results are folded into the
// transcript in request order before Reasoning re-enters. Any failed call
// aborts the invocation.
func (e *Engine) executeTools(ctx context.Context, state *AgentState) (StateDelta, error) {
	last := state.LastAssistantTurn()
	if last == nil || len(last.ToolCalls) == 0 {
		return StateDelta{}, nil
	}
	calls := last.ToolCalls

	results := make([]models.Message, len(calls))
	errs := make([]error, len(calls))
	sem := make(chan struct{}, e.config.ToolConcurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			output, err := e.invoker.Invoke(ctx, tc.Name, tc.Input, func(ctx context.Context, input json.RawMessage) (string, error) {
				tool, err := e.registry.Get(tc.Name)
				if err != nil {
					return "", err
				}
				return tool.Execute(ctx, input)
			}, state.SessionID)

			if e.metrics != nil {
				status := "ok"
				if err != nil {
					status = "error"
				}
				e.metrics.ToolCalls.WithLabelValues(tc.Name, status).Inc()
			}
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = models.Message{
				ID:         uuid.NewString(),
				SessionID:  state.SessionID,
				Role:       models.RoleTool,
				Content:    output,
				ToolCallID: tc.ID,
				CreatedAt:  time.Now().UTC(),
			}
		}(i, call)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return StateDelta{}, err
		}
	}
	return StateDelta{
		Messages: results,
		AuditLog: []AuditEntry{stageEntry(StageToolExecution, map[string]any{
			"tools": len(calls),
		})},
	}, nil
}

// respond finalizes the reply. Formatting is currently pass-through; the stage
// exists so the audit trail always shows the terminal hop before commit.
func (e *Engine) respond(_ context.Context, state *AgentState) (StateDelta, error) {
	length := 0
	if last := state.LastAssistantTurn(); last != nil {
		length = len(last.Content)
	}
	return StateDelta{AuditLog: []AuditEntry{stageEntry(StageResponse, map[string]any{
		"length": length,
	})}}, nil
}

// commit persists the final state. The persisted copy carries the trail
// through Response; the State Update entry itself lands only in the returned
// in-memory state.
func (e *Engine) commit(ctx context.Context, state *AgentState) (StateDelta, error) {
	persisted := false
	if e.states != nil && state.SessionID != "" {
		data, err := state.MarshalState()
		if err != nil {
			return StateDelta{}, fmt.Errorf("marshal state: %w", err)
		}
		if err := e.states.SaveState(ctx, state.SessionID, data); err != nil {
			return StateDelta{}, fmt.Errorf("save state: %w", err)
		}
		persisted = true
	}
	return StateDelta{AuditLog: []AuditEntry{stageEntry(StageStateUpdate, map[string]any{
		"persisted": persisted,
	})}}, nil
}
