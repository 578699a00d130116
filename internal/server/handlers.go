package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/channels"
	"github.com/haasonsaas/concierge/internal/inspector"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/internal/store"
	"github.com/haasonsaas/concierge/pkg/models"
)

// maxWebhookBody caps webhook payload reads.
const maxWebhookBody = 1 << 20

// handleWebhookVerify answers the GET challenge handshake for providers that
// perform one.
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(r.PathValue("provider"))
	normalizer, ok := s.registry.Get(provider)
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	verifier, ok := normalizer.(channels.ChallengeVerifier)
	if !ok {
		http.Error(w, "verification not supported", http.StatusMethodNotAllowed)
		return
	}

	challenge, err := verifier.VerifyChallenge(r.URL.Query())
	if err != nil {
		s.logger.Warn("webhook verification rejected", "provider", provider)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// handleWebhookEvent normalizes a provider delivery, persists it, and runs
// the engine asynchronously. Parsed events are always acknowledged, even when
// downstream processing later fails; only auth failures reject.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(r.PathValue("provider"))
	normalizer, ok := s.registry.Get(provider)
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	if auth, ok := normalizer.(channels.HeaderAuthenticator); ok {
		if err := auth.Authenticate(r.Header); err != nil {
			s.logger.Warn("webhook authentication failed", "provider", provider)
			webhookEvents.WithLabelValues(string(provider), "rejected").Inc()
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	msg, err := normalizer.Normalize(body)
	if err != nil {
		// Acknowledge anyway: retry storms help nobody. Parse failures are
		// logged for inspection.
		var parseErr *channels.ParseError
		switch {
		case errors.Is(err, channels.ErrNoMessage):
			webhookEvents.WithLabelValues(string(provider), "empty").Inc()
		case errors.As(err, &parseErr):
			s.logger.Warn("webhook payload unparseable", "provider", provider, "error", err)
			webhookEvents.WithLabelValues(string(provider), "parse_error").Inc()
		default:
			s.logger.Warn("webhook normalization failed", "provider", provider, "error", err)
			webhookEvents.WithLabelValues(string(provider), "error").Inc()
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	msg.SessionID = sessions.Resolve(msg)
	if err := s.store.InsertInbound(r.Context(), msg); err != nil {
		s.logger.Error("inbound message insert failed", "provider", provider, "error", err)
	}
	webhookEvents.WithLabelValues(string(provider), "accepted").Inc()

	w.WriteHeader(http.StatusOK)
	go s.processInbound(msg)
}

// processInbound runs one webhook-triggered invocation detached from the
// request lifecycle.
func (s *Server) processInbound(msg *models.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.invokeTimeout)
	defer cancel()

	state := s.loadOrNewState(ctx, msg.SessionID)
	state.Messages = append(state.Messages, models.Message{
		ID:        uuid.NewString(),
		SessionID: msg.SessionID,
		Role:      models.RoleUser,
		Content:   msg.Text,
		CreatedAt: time.Now().UTC(),
	})

	if _, err := s.engine.Invoke(ctx, state); err != nil {
		s.logger.Error("webhook invocation failed",
			"provider", msg.Provider,
			"session_id", msg.SessionID,
			"error", err,
		)
	}
}

func (s *Server) loadOrNewState(ctx context.Context, sessionID string) *agent.AgentState {
	data, err := s.store.LoadState(ctx, sessionID)
	if err == nil {
		if state, uerr := agent.UnmarshalState(data); uerr == nil {
			return state
		}
		s.logger.Warn("persisted state unreadable, starting fresh", "session_id", sessionID)
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("state load failed, starting fresh", "session_id", sessionID, "error", err)
	}
	return agent.NewAgentState(sessionID)
}

type agentRequest struct {
	Message      string `json:"message"`
	SessionID    string `json:"sessionId"`
	Instructions string `json:"instructions"`
	History      []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

type agentResponse struct {
	Message string            `json:"message"`
	State   *agent.AgentState `json:"state"`
}

// handleAgent runs one synchronous invocation for API callers.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		verr := &agent.ValidationError{Field: "message"}
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	state := agent.NewAgentState(sessionID)
	if req.Instructions != "" {
		state.Instructions = req.Instructions
	}
	for _, turn := range req.History {
		state.Messages = append(state.Messages, models.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      models.Role(turn.Role),
			Content:   turn.Content,
		})
	}
	state.Messages = append(state.Messages, models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   req.Message,
		CreatedAt: time.Now().UTC(),
	})

	final, err := s.engine.Invoke(r.Context(), state)
	if err != nil {
		s.logger.Error("agent invocation failed", "session_id", sessionID, "error", err)
		http.Error(w, "agent invocation failed", http.StatusInternalServerError)
		return
	}

	reply := ""
	if last := final.LastAssistantTurn(); last != nil {
		reply = last.Content
	}
	writeJSON(w, http.StatusOK, agentResponse{Message: reply, State: final})
}

// handleInspector projects a session's persisted state into the inspector
// snapshot. A session with no state projects the empty snapshot.
func (s *Server) handleInspector(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var state *agent.AgentState
	data, err := s.store.LoadState(r.Context(), sessionID)
	switch {
	case err == nil:
		state, err = agent.UnmarshalState(data)
		if err != nil {
			s.logger.Error("persisted state unreadable", "session_id", sessionID, "error", err)
			http.Error(w, "state unreadable", http.StatusInternalServerError)
			return
		}
	case errors.Is(err, store.ErrNotFound):
		state = nil
	default:
		s.logger.Error("state load failed", "session_id", sessionID, "error", err)
		http.Error(w, "state load failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, inspector.Project(state))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
