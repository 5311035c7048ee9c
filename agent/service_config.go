package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServiceConfig is the process-level configuration for running this
// runtime as a service: which LLM provider to call, where task state is
// persisted, where notifications are published, and how the HTTP surface
// and the Planner/Executor are tuned. It is distinct from Config, which
// only describes a single LLM client.
type ServiceConfig struct {
	LLMProvider      Provider
	OpenAIAPIKey     string
	GeminiAPIKey     string
	OllamaBaseURL    string // OpenAI-compatible endpoint; defaults to http://localhost:11434/v1
	Model            string
	StorageDSN       string // "" = in-memory, "sqlite://path" = SQLite
	RedisAddr        string // "" = NoopNotifier
	ToolsDir         string // "" = no manifest-loaded tools, builtins only
	HTTPAddr         string
	LogMode          string // "production" or "development"
	ExecutorStrategy Strategy
	PlanTimeout      time.Duration
	InstanceID       string // reported by GET /health; defaults to a fresh uuid per process
}

// DefaultServiceConfig returns the zero-configuration defaults: in-memory
// storage, no Redis notifications, builtin tools only, adaptive
// execution, listening on :8080.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LLMProvider:      ProviderOpenAI,
		Model:            "gpt-4o-mini",
		OllamaBaseURL:    "http://localhost:11434/v1",
		HTTPAddr:         ":8080",
		LogMode:          "development",
		ExecutorStrategy: Adaptive,
		PlanTimeout:      2 * time.Minute,
		InstanceID:       uuid.NewString(),
	}
}

// BindServiceFlags registers the ServiceConfig flags a cobra command
// exposes. Once the caller binds them with viper's BindPFlags and enables
// AutomaticEnv with the AGENTRUN prefix, each is mirrored by an AGENTRUN_*
// environment variable, so flags > env > YAML file > defaults in that order.
func BindServiceFlags(flags *pflag.FlagSet) {
	defaults := DefaultServiceConfig()
	flags.String("llm-provider", string(defaults.LLMProvider), "LLM provider: openai, gemini, or ollama")
	flags.String("model", defaults.Model, "model name passed to the provider")
	flags.String("ollama-base-url", defaults.OllamaBaseURL, "OpenAI-compatible base URL for the ollama provider")
	flags.String("storage-dsn", "", `task storage DSN: empty for in-memory, "sqlite://path" for SQLite`)
	flags.String("redis-addr", "", "Redis address for the notification channel; empty disables notifications")
	flags.String("tools-dir", "", "directory of YAML tool manifests to load at startup")
	flags.String("http-addr", defaults.HTTPAddr, "address the HTTP server listens on")
	flags.String("log-mode", defaults.LogMode, "logging mode: production or development")
	flags.String("instance-id", defaults.InstanceID, "identifier reported by GET /health; defaults to a random id")
}

// LoadServiceConfig resolves a ServiceConfig from v, which the caller has
// already set up with flags > env > YAML file > defaults precedence
// (BindPFlags + AutomaticEnv + ReadInConfig; viper applies that precedence
// whatever order they are set up in).
func LoadServiceConfig(v *viper.Viper) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	if p := v.GetString("llm-provider"); p != "" {
		cfg.LLMProvider = Provider(strings.ToLower(p))
	}
	if m := v.GetString("model"); m != "" {
		cfg.Model = m
	}
	cfg.OpenAIAPIKey = v.GetString("openai-api-key")
	cfg.GeminiAPIKey = v.GetString("gemini-api-key")
	if u := v.GetString("ollama-base-url"); u != "" {
		cfg.OllamaBaseURL = u
	}
	cfg.StorageDSN = v.GetString("storage-dsn")
	cfg.RedisAddr = v.GetString("redis-addr")
	cfg.ToolsDir = v.GetString("tools-dir")
	if a := v.GetString("http-addr"); a != "" {
		cfg.HTTPAddr = a
	}
	if m := v.GetString("log-mode"); m != "" {
		cfg.LogMode = m
	}
	if id := v.GetString("instance-id"); id != "" {
		cfg.InstanceID = id
	}

	switch cfg.LLMProvider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return cfg, fmt.Errorf("service config: AGENTRUN_OPENAI_API_KEY is required when llm-provider=openai")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return cfg, fmt.Errorf("service config: AGENTRUN_GEMINI_API_KEY is required when llm-provider=gemini")
		}
	case ProviderOllama:
		// No API key required; OllamaBaseURL always has a usable default.
	default:
		return cfg, fmt.Errorf("service config: unsupported llm-provider %q", cfg.LLMProvider)
	}

	return cfg, nil
}
