// Application wiring for CLI commands.
//
// Information Hiding:
// - Backend and provider construction hidden
// - Breaker configuration hidden

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskpilot/taskpilot/backend"
	"github.com/taskpilot/taskpilot/breaker"
	"github.com/taskpilot/taskpilot/config"
	"github.com/taskpilot/taskpilot/dispatch"
	"github.com/taskpilot/taskpilot/llm"
	"github.com/taskpilot/taskpilot/logging"
	"github.com/taskpilot/taskpilot/observability"
	"github.com/taskpilot/taskpilot/orchestrator"
	"github.com/taskpilot/taskpilot/reasoning"
	"github.com/taskpilot/taskpilot/request"
	"github.com/taskpilot/taskpilot/storage"
)

// App is the assembled orchestration pipeline behind every command.
type App struct {
	Settings         config.Settings
	Logger           *slog.Logger
	Backend          backend.Backend
	ToolBreaker      *breaker.Breaker
	ReasoningBreaker *breaker.Breaker
	Admitter         *request.Admitter
	Orchestrator     *orchestrator.Orchestrator
}

// Close releases the tool backend.
func (a *App) Close() error {
	return a.Backend.Close()
}

// buildApp loads settings and assembles the full pipeline: tool backend,
// breakers, reasoning provider, dispatcher, and orchestrator.
func buildApp(ctx context.Context, opts Options) (*App, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}
	if opts.Provider != "" {
		settings.LLM.Provider = opts.Provider
	}
	if opts.Model != "" {
		settings.LLM.Model = opts.Model
	}
	if opts.Verbose {
		settings.LogLevel = "debug"
	}

	logger := logging.New(settings.LogLevel)

	b, err := buildBackend(ctx, settings, logger)
	if err != nil {
		return nil, err
	}

	toolBreaker := breaker.New("tool_backend", breakerConfig(settings.Breakers.ToolBackend),
		logger, breaker.WithTransitionHook(recordTransition))
	reasoningBreaker := breaker.New("reasoning_backend", breakerConfig(settings.Breakers.ReasoningBackend),
		logger, breaker.WithTransitionHook(recordTransition))

	provider, err := buildProvider(settings.LLM)
	if err != nil {
		b.Close()
		return nil, err
	}

	reasoner := reasoning.NewClient(provider, reasoningBreaker, settings.LLM.CallTimeout, logger)
	dispatcher := dispatch.New(b, toolBreaker, settings.Backend.CallTimeout, logger)
	orch := orchestrator.New(reasoner, dispatcher, b.Registry(), settings.LLM.MaxTurns)

	logger.Info("pipeline assembled",
		"provider", provider.Name(),
		"model", provider.Model(),
		"tool_backend", b.Name())

	return &App{
		Settings:         settings,
		Logger:           logger,
		Backend:          b,
		ToolBreaker:      toolBreaker,
		ReasoningBreaker: reasoningBreaker,
		Admitter:         request.NewAdmitter(settings.Stream.MaxInputLength),
		Orchestrator:     orch,
	}, nil
}

// buildBackend selects the tool backend: the in-process SQLite store or
// an external MCP server over stdio.
func buildBackend(ctx context.Context, settings config.Settings, logger *slog.Logger) (backend.Backend, error) {
	switch settings.Backend.Kind {
	case "mcp":
		if settings.Backend.MCPCommand == "" {
			return nil, fmt.Errorf("TOOL_BACKEND=mcp requires MCP_SERVER_COMMAND")
		}
		return backend.NewMCP(ctx, settings.Backend.MCPCommand, settings.Backend.MCPArgs, logger)
	default:
		store, err := storage.OpenTodoStore(settings.Backend.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open todo store: %w", err)
		}
		local, err := backend.NewLocal(store, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		return local, nil
	}
}

// buildProvider constructs the reasoning provider from settings, reading
// the API key from the provider's environment variable.
func buildProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewProviderBuilder(providerType).
		Model(cfg.Model).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		FromEnv()
}

func breakerConfig(cfg config.BreakerConfig) breaker.Config {
	return breaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
		ProbeQuota:       cfg.ProbeQuota,
	}
}

func recordTransition(dependency string, from, to breaker.State) {
	observability.RecordBreakerTransition(dependency, from.String(), to.String())
}
