// Package server exposes the HTTP surface: provider webhooks, the direct
// agent invocation API, the session inspector, health, and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/channels"
	"github.com/haasonsaas/concierge/internal/store"
)

// AgentEngine is the engine surface the server depends on.
type AgentEngine interface {
	Invoke(ctx context.Context, state *agent.AgentState) (*agent.AgentState, error)
}

// Server wires the HTTP handlers to the engine, channel registry, and store.
type Server struct {
	engine   AgentEngine
	registry *channels.Registry
	store    store.Store
	logger   *slog.Logger

	httpServer *http.Server

	// invokeTimeout bounds async webhook-triggered invocations.
	invokeTimeout time.Duration
}

// Config holds the server listen address.
type Config struct {
	Host string
	Port int
}

// New creates a server. logger may be nil.
func New(cfg Config, engine AgentEngine, registry *channels.Registry, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:        engine,
		registry:      registry,
		store:         st,
		logger:        logger,
		invokeTimeout: 2 * time.Minute,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhooks/{provider}", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhooks/{provider}", s.handleWebhookEvent)
	mux.HandleFunc("/api/agent", s.handleAgent)
	mux.HandleFunc("GET /api/sessions/{id}/inspector", s.handleInspector)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// ListenAndServe runs the server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
