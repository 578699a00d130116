// Package inspector derives a point-in-time view of an invocation from raw
// agent state. Projection is a pure function: it reads only its input, writes
// nothing, and equal states always produce equal snapshots.
package inspector

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/pkg/models"
)

// summaryLimit caps input/output summaries on tool runs.
const summaryLimit = 120

// StageStatus is the projected status of one pipeline stage.
type StageStatus string

const (
	StatusPending StageStatus = "pending"
	StatusDone    StageStatus = "done"
)

// StageView is one stage's projected status and approximate duration. The
// duration is the delta to the next audit entry, so the final stage always
// reads 0.
type StageView struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
}

// ToolRun is one matched tool call/result pair. Calls without a result are
// never reported; the projector does not fabricate outcomes.
type ToolRun struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Status        string `json:"status"`
	InputSummary  string `json:"input_summary,omitempty"`
	OutputSummary string `json:"output_summary,omitempty"`
}

// LogLine is a consumer-filterable log entry. Type is "system" for audit
// entries and "llm" for assistant tool requests.
type LogLine struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Snapshot is the derived inspector view. It is recomputed on every call and
// never persisted.
type Snapshot struct {
	SessionID     string         `json:"session_id"`
	CurrentStage  string         `json:"current_stage"`
	SecurityLevel int            `json:"security_level"`
	MessageCount  int            `json:"message_count"`
	ToolCount     int            `json:"tool_count"`
	Stages        []StageView    `json:"stages"`
	Variables     map[string]any `json:"variables"`
	ToolRuns      []ToolRun      `json:"tool_runs"`
	Logs          []LogLine      `json:"logs"`
}

// pipelineOrder fixes the stage listing so snapshots are stable.
var pipelineOrder = []agent.Stage{
	agent.StageHydration,
	agent.StagePerception,
	agent.StageRetrieval,
	agent.StageReasoning,
	agent.StageToolExecution,
	agent.StageResponse,
	agent.StageStateUpdate,
}

// Project builds a snapshot from raw state. A nil state yields the empty
// projection: every stage pending, all collections empty.
func Project(state *agent.AgentState) *Snapshot {
	snap := &Snapshot{
		Stages:    make([]StageView, 0, len(pipelineOrder)),
		Variables: map[string]any{},
		ToolRuns:  []ToolRun{},
		Logs:      []LogLine{},
	}
	for _, stage := range pipelineOrder {
		snap.Stages = append(snap.Stages, StageView{Name: string(stage), Status: StatusPending})
	}
	if state == nil {
		return snap
	}

	snap.SessionID = state.SessionID
	snap.SecurityLevel = state.SecurityLevel
	snap.MessageCount = len(state.Messages)

	projectStages(snap, state.AuditLog)
	projectToolRuns(snap, state.Messages)
	projectLogs(snap, state)
	snap.ToolCount = len(snap.ToolRuns)

	snap.Variables["intent"] = state.Intent
	contexts := make([]string, 0, len(state.Context))
	for _, doc := range state.Context {
		contexts = append(contexts, doc.Title)
	}
	snap.Variables["context"] = contexts
	snap.Variables["raw"] = state

	return snap
}

func projectStages(snap *Snapshot, trail []agent.AuditEntry) {
	index := make(map[agent.Stage]int, len(pipelineOrder))
	for i, stage := range pipelineOrder {
		index[stage] = i
	}

	for i, entry := range trail {
		stage, ok := agent.StageForStep(entry.Step)
		if !ok {
			continue
		}
		pos, ok := index[stage]
		if !ok {
			continue
		}
		var duration int64
		if i+1 < len(trail) {
			duration = trail[i+1].Timestamp.Sub(entry.Timestamp).Milliseconds()
			if duration < 0 {
				duration = 0
			}
		}
		snap.Stages[pos].Status = StatusDone
		snap.Stages[pos].DurationMs = duration
		snap.CurrentStage = string(stage)
	}
}

func projectToolRuns(snap *Snapshot, messages []models.Message) {
	type pending struct {
		name  string
		input string
	}
	open := make(map[string]pending)

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			for _, call := range msg.ToolCalls {
				open[call.ID] = pending{name: call.Name, input: summarize(string(call.Input))}
			}
		case models.RoleTool:
			if msg.ToolCallID == "" {
				continue
			}
			call, ok := open[msg.ToolCallID]
			if !ok {
				continue
			}
			snap.ToolRuns = append(snap.ToolRuns, ToolRun{
				ID:            msg.ToolCallID,
				Name:          call.name,
				Status:        "ok",
				InputSummary:  call.input,
				OutputSummary: summarize(msg.Content),
			})
			delete(open, msg.ToolCallID)
		}
	}
}

func projectLogs(snap *Snapshot, state *agent.AgentState) {
	for _, entry := range state.AuditLog {
		text := entry.Step
		if len(entry.Details) > 0 {
			// json.Marshal sorts map keys, keeping output stable.
			if data, err := json.Marshal(entry.Details); err == nil {
				text = fmt.Sprintf("%s %s", entry.Step, data)
			}
		}
		snap.Logs = append(snap.Logs, LogLine{Type: "system", Text: text})
	}
	for _, msg := range state.Messages {
		if msg.Role != models.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		names := make([]string, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			names = append(names, call.Name)
		}
		snap.Logs = append(snap.Logs, LogLine{
			Type: "llm",
			Text: "requested tools: " + strings.Join(names, ", "),
		})
	}
}

func summarize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= summaryLimit {
		return s
	}
	return s[:summaryLimit] + "..."
}
