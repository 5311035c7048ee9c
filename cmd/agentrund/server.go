// Command agentrund is the service entrypoint: it wires ServiceConfig
// into storage, the tool registry, the Manager/Planner/Executor, and the
// notification channel, then exposes them over HTTP.
package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/taipm/agentrun/agent"
	"github.com/taipm/agentrun/agent/adapters"
	"github.com/taipm/agentrun/agent/tools"
	"github.com/taipm/agentrun/store"
)

// planCacheTTL bounds how long the Planner's PlanCache (agent/cache.go)
// reuses a decomposition for an identical description+context pair
// before re-asking the LLM.
const planCacheTTL = 10 * time.Minute

// Deps bundles every long-lived component the HTTP handlers dispatch
// through. It owns the lifetime of the storage backend, the notifier,
// and the plan-cache backend, all released by Close.
type Deps struct {
	Config   ServiceConfig
	Logger   agent.Logger
	Storage  agent.Storage
	Registry *tools.Registry
	Manager  *agent.Manager
	Planner  *agent.Planner
	Executor *agent.Executor
	Notifier agent.Notifier
	LLM      *agent.MultiProvider

	closers []func() error
}

// ServiceConfig re-exports agent.ServiceConfig so callers of this
// package never need to import agent directly just to build one.
type ServiceConfig = agent.ServiceConfig

// Build constructs every dependency for cfg. It does not load tasks from
// storage into the Manager; Serve calls Manager.Initialize for that. Call
// Close when done to release the storage and notifier connections.
func Build(cfg ServiceConfig, logger agent.Logger) (*Deps, error) {
	if logger == nil {
		logger = &agent.NoopLogger{}
	}

	storage, closeStorage, err := buildStorage(cfg.StorageDSN)
	if err != nil {
		return nil, fmt.Errorf("agentrund: build storage: %w", err)
	}

	notifier, closeNotifier, err := buildNotifier(cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("agentrund: build notifier: %w", err)
	}

	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewFileSystemTool(),
		tools.NewHTTPRequestTool(),
		tools.NewDateTimeTool(),
		tools.NewMathTool(),
	} {
		if err := registry.RegisterTool(t); err != nil {
			return nil, fmt.Errorf("agentrund: register builtin tool: %w", err)
		}
	}
	if cfg.ToolsDir != "" {
		if err := registry.LoadToolsFromDirectory(cfg.ToolsDir, builtinHandlerLookup(registry), nil); err != nil {
			return nil, fmt.Errorf("agentrund: load tool manifests: %w", err)
		}
	}

	llm, err := buildLLM(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("agentrund: build LLM provider: %w", err)
	}

	manager := agent.NewManager(storage, logger)

	limiter, err := agent.NewRateLimiter(agent.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 5,
		BurstSize:         10,
	})
	if err != nil {
		return nil, fmt.Errorf("agentrund: build rate limiter: %w", err)
	}

	planCache, closeCache, err := buildPlanCache(cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("agentrund: build plan cache: %w", err)
	}

	planner := agent.NewPlanner(manager, llm, registry, limiter, logger)
	planner.Cache = agent.NewPlanCache(planCache, planCacheTTL)
	events := &notifierEventPublisher{notifier: notifier}
	executor := agent.NewExecutor(manager, registry, agent.StaticParamExecutor{}, cfg.ExecutorStrategy, events, logger)

	deps := &Deps{
		Config:   cfg,
		Logger:   logger,
		Storage:  storage,
		Registry: registry,
		Manager:  manager,
		Planner:  planner,
		Executor: executor,
		Notifier: notifier,
		LLM:      llm,
		closers:  []func() error{closeStorage, closeNotifier, closeCache},
	}
	return deps, nil
}

// buildPlanCache backs the Planner's PlanCache with Redis when a Redis
// address is configured (the same instance already carrying the
// notification channel), so identical plan requests are deduplicated
// across service replicas; otherwise a process-local LRU cache.
func buildPlanCache(redisAddr string) (agent.Cache, func() error, error) {
	if redisAddr == "" {
		return agent.NewMemoryCache(1000, planCacheTTL), func() error { return nil }, nil
	}
	rc, err := agent.NewRedisCache(redisAddr, "", 0, planCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return rc, rc.Close, nil
}

// Close releases every resource Build opened, returning the first error
// encountered but attempting every closer regardless.
func (d *Deps) Close() error {
	var first error
	for _, c := range d.closers {
		if c == nil {
			continue
		}
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func buildStorage(dsn string) (agent.Storage, func() error, error) {
	if dsn == "" {
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse storage dsn: %w", err)
	}
	switch u.Scheme {
	case "sqlite":
		path := strings.TrimPrefix(dsn, "sqlite://")
		s, err := store.OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage dsn scheme %q (want \"sqlite\")", u.Scheme)
	}
}

func buildNotifier(redisAddr string) (agent.Notifier, func() error, error) {
	if redisAddr == "" {
		n := agent.NoopNotifier{}
		return n, n.Close, nil
	}
	n, err := agent.NewRedisNotifier(redisAddr, "", 0)
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}

// Fallback models used when a secondary provider is registered behind
// the primary; the primary's model always comes from cfg.Model.
const (
	openaiFallbackModel = "gpt-4o-mini"
	geminiFallbackModel = "gemini-1.5-flash"
)

// buildLLM assembles the provider chain: the configured provider is
// primary, and whenever credentials for the other hosted provider are
// also present it is registered as a fallback, so an outage of one
// provider degrades to the other instead of failing planning outright.
func buildLLM(cfg ServiceConfig, logger agent.Logger) (*agent.MultiProvider, error) {
	var providers []agent.ProviderConfig
	add := func(name, model string, adapter agent.LLMAdapter) {
		providers = append(providers, agent.ProviderConfig{
			Name:       name,
			Type:       name,
			Model:      model,
			Adapter:    adapter,
			MaxRetries: 2,
		})
	}
	addGemini := func(model string) error {
		adapter, err := adapters.NewGeminiAdapter(cfg.GeminiAPIKey)
		if err != nil {
			return err
		}
		add("gemini", model, adapter)
		return nil
	}

	switch cfg.LLMProvider {
	case agent.ProviderOpenAI:
		add("openai", cfg.Model, adapters.NewOpenAIAdapter(cfg.OpenAIAPIKey, ""))
		if cfg.GeminiAPIKey != "" {
			if err := addGemini(geminiFallbackModel); err != nil {
				return nil, err
			}
		}
	case "gemini":
		if err := addGemini(cfg.Model); err != nil {
			return nil, err
		}
		if cfg.OpenAIAPIKey != "" {
			add("openai", openaiFallbackModel, adapters.NewOpenAIAdapter(cfg.OpenAIAPIKey, ""))
		}
	case agent.ProviderOllama:
		// Ollama exposes an OpenAI-compatible API; it does not check the key.
		add("ollama", cfg.Model, adapters.NewOpenAIAdapter("ollama", cfg.OllamaBaseURL))
		if cfg.OpenAIAPIKey != "" {
			add("openai", openaiFallbackModel, adapters.NewOpenAIAdapter(cfg.OpenAIAPIKey, ""))
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLMProvider)
	}

	return agent.NewMultiProvider(&agent.MultiProviderConfig{
		Providers:        providers,
		FallbackStrategy: agent.FallbackStrategyRetryWithBackoff,
		Logger:           logger,
	})
}

// builtinHandlerLookup resolves a manifest's "handler" name to one of the
// already-registered builtin tools' methods, so a manifest can bind an
// inline-markup tag to existing Go code without shipping its own plugin.
func builtinHandlerLookup(registry *tools.Registry) tools.HandlerLookup {
	return func(name string) (tools.Handler, bool) {
		toolID, method, ok := tools.SplitLLMFacingName(name)
		if !ok {
			return nil, false
		}
		t, ok := registry.Get(toolID)
		if !ok {
			return nil, false
		}
		for _, m := range t.Methods() {
			if m.Name == method {
				return m.Handler, true
			}
		}
		return nil, false
	}
}

// notifierEventPublisher adapts agent.Notifier to the Executor's
// EventPublisher, so every subtask transition the Executor makes also
// reaches whatever is watching the task over the notification channel.
type notifierEventPublisher struct {
	notifier agent.Notifier
}

func (p *notifierEventPublisher) PublishTaskEvent(ctx context.Context, taskID string, event map[string]interface{}) error {
	return p.notifier.Notify(ctx, taskID, event)
}
