// Package main provides the CLI entry point for the Concierge agent
// orchestrator.
//
// Concierge receives customer messages from channel webhooks (WhatsApp,
// Telegram, and bridged channels), runs them through the orchestration engine
// against an LLM provider (Anthropic or OpenAI), and exposes a direct agent
// API plus a per-session inspector view.
//
// # Basic Usage
//
// Start the server:
//
//	concierge serve --config concierge.yaml
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/providers"
	"github.com/haasonsaas/concierge/internal/audit"
	"github.com/haasonsaas/concierge/internal/channels"
	"github.com/haasonsaas/concierge/internal/channels/generic"
	"github.com/haasonsaas/concierge/internal/channels/telegram"
	"github.com/haasonsaas/concierge/internal/channels/whatsapp"
	"github.com/haasonsaas/concierge/internal/config"
	"github.com/haasonsaas/concierge/internal/observability"
	"github.com/haasonsaas/concierge/internal/retrieval"
	"github.com/haasonsaas/concierge/internal/server"
	"github.com/haasonsaas/concierge/internal/store"
	"github.com/haasonsaas/concierge/pkg/models"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "concierge",
		Short:        "Concierge - conversational agent orchestrator",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Concierge server",
		Long: `Start the Concierge server with all configured channels.

The server will:
1. Load configuration from the specified file (or concierge.yaml)
2. Open the message/audit store
3. Initialize the LLM provider (Anthropic or OpenAI)
4. Register channel normalizers and start the HTTP server

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "concierge.yaml",
		"Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	retriever := retrieval.NewKeywordRetriever(cfg.Retrieval.Documents)
	registry := agent.NewToolRegistry()
	registry.Register(retrieval.NewSearchTool(retriever, cfg.Engine.ContextLimit))

	engine := agent.NewEngine(provider, registry, &agent.Config{
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		MaxIterations:   cfg.Engine.MaxIterations,
		ToolConcurrency: cfg.Engine.ToolConcurrency,
		ContextLimit:    cfg.Engine.ContextLimit,
	})
	engine.SetRetriever(retriever)
	engine.SetInvoker(audit.NewInvoker(st, logger))
	engine.SetStateStore(st)
	engine.SetLogger(logger)
	engine.SetMetrics(agent.NewMetrics())

	channelRegistry := channels.NewRegistry(
		whatsapp.NewNormalizer(cfg.Channels.WhatsApp.VerifyToken),
		telegram.NewNormalizer(cfg.Channels.Telegram.SecretToken),
		generic.NewNormalizer(models.ProviderX),
		generic.NewNormalizer(models.ProviderEmail),
		generic.NewNormalizer(models.ProviderCalendar),
	)

	srv := server.New(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.HTTPPort,
	}, engine, channelRegistry, st, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("concierge starting",
		"version", version,
		"provider", provider.Name(),
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
	)
	return srv.ListenAndServe(ctx)
}

func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		key := cfg.LLM.OpenAIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       key,
			RetryDelay:   time.Second,
			DefaultModel: cfg.LLM.Model,
		})
	case "anthropic":
		key := cfg.LLM.AnthropicKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       key,
			RetryDelay:   time.Second,
			DefaultModel: cfg.LLM.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
}
