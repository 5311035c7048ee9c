package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ProviderStatus is the last observed health of a provider, derived from
// real request outcomes: there is no background prober, a provider is
// healthy because its last call succeeded and unhealthy because its
// circuit breaker is open.
type ProviderStatus int

const (
	ProviderStatusUnknown ProviderStatus = iota
	ProviderStatusHealthy
	ProviderStatusDegraded
	ProviderStatusUnhealthy
)

func (ps ProviderStatus) String() string {
	switch ps {
	case ProviderStatusHealthy:
		return "healthy"
	case ProviderStatusDegraded:
		return "degraded"
	case ProviderStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ProviderConfig describes one provider behind the router. The Adapter is
// constructed by the caller (the composition root, which can import both
// agent and agent/adapters without a cycle) before the config reaches
// NewMultiProvider.
type ProviderConfig struct {
	Name    string
	Type    string // "openai", "gemini", "ollama"
	Model   string
	Adapter LLMAdapter

	// MaxRetries bounds per-provider attempts under
	// FallbackStrategyRetryWithBackoff. Zero means defaultMaxRetries.
	MaxRetries int
	// RetryDelay is the base backoff delay between attempts. Zero means
	// defaultRetryDelay.
	RetryDelay time.Duration
}

// FallbackStrategy selects how the router treats a failing provider
// before moving on to the next one.
type FallbackStrategy int

const (
	// FallbackStrategyFailFast gives each provider a single attempt and
	// immediately falls through to the next on failure.
	FallbackStrategyFailFast FallbackStrategy = iota
	// FallbackStrategyRetryWithBackoff retries each provider with bounded
	// exponential backoff (skipping retries on non-retryable errors)
	// before falling through.
	FallbackStrategyRetryWithBackoff
)

// MultiProviderConfig configures the router.
type MultiProviderConfig struct {
	// Providers are tried in registration order: the first is the
	// primary, the rest are fallbacks.
	Providers []ProviderConfig

	FallbackStrategy FallbackStrategy

	// CircuitBreakerThreshold is how many consecutive failures open a
	// provider's breaker. Zero means defaultBreakerThreshold.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long an open breaker blocks a provider
	// before allowing a probe request. Zero means defaultBreakerTimeout.
	CircuitBreakerTimeout time.Duration

	Logger Logger
}

const (
	defaultMaxRetries       = 2
	defaultRetryDelay       = time.Second
	maxRetryDelay           = 30 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// MultiProvider routes LLM calls across one or more providers with
// per-provider circuit breaking and optional retry, falling back through
// the registration order until one succeeds. It implements LLMAdapter, so
// it can stand in anywhere a single provider's adapter could.
type MultiProvider struct {
	providers []*ProviderConfig
	strategy  FallbackStrategy
	logger    Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	status   map[string]ProviderStatus
}

// NewMultiProvider validates the config and builds the router.
func NewMultiProvider(config *MultiProviderConfig) (*MultiProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(config.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}

	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}

	threshold := config.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	timeout := config.CircuitBreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	mp := &MultiProvider{
		strategy: config.FallbackStrategy,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker, len(config.Providers)),
		status:   make(map[string]ProviderStatus, len(config.Providers)),
	}

	seen := make(map[string]bool, len(config.Providers))
	for i := range config.Providers {
		provider := &config.Providers[i]
		if provider.Name == "" {
			return nil, fmt.Errorf("provider name is required")
		}
		if seen[provider.Name] {
			return nil, fmt.Errorf("duplicate provider name %q", provider.Name)
		}
		seen[provider.Name] = true
		if provider.Adapter == nil {
			return nil, fmt.Errorf("provider %s has no adapter configured", provider.Name)
		}
		if provider.Model == "" {
			return nil, fmt.Errorf("provider %s has no model configured", provider.Name)
		}
		mp.providers = append(mp.providers, provider)
		mp.breakers[provider.Name] = NewCircuitBreaker(provider.Name, threshold, timeout)
		mp.status[provider.Name] = ProviderStatusUnknown
	}

	return mp, nil
}

// Ask sends a single user message and returns the assistant's text,
// routed through the failover chain. This is the call the Planner makes.
func (mp *MultiProvider) Ask(ctx context.Context, message string) (string, error) {
	resp, err := mp.Complete(ctx, &CompletionRequest{
		Messages: []Message{{Role: "user", Content: message}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Complete implements LLMAdapter.
func (mp *MultiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return mp.execute(ctx, req, func(ctx context.Context, p *ProviderConfig, r *CompletionRequest) (*CompletionResponse, error) {
		return p.Adapter.Complete(ctx, r)
	})
}

// Stream implements LLMAdapter. Note that a fallback after mid-stream
// failure may re-deliver content already passed to onChunk; callers that
// cannot tolerate that should use Complete.
func (mp *MultiProvider) Stream(ctx context.Context, req *CompletionRequest, onChunk func(string)) (*CompletionResponse, error) {
	return mp.execute(ctx, req, func(ctx context.Context, p *ProviderConfig, r *CompletionRequest) (*CompletionResponse, error) {
		return p.Adapter.Stream(ctx, r, onChunk)
	})
}

// GetProviderStatus reports the last observed status per provider, for
// surfacing on the service's health endpoint.
func (mp *MultiProvider) GetProviderStatus() map[string]ProviderStatus {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	out := make(map[string]ProviderStatus, len(mp.status))
	for name, st := range mp.status {
		out[name] = st
	}
	return out
}

func (mp *MultiProvider) setStatus(name string, st ProviderStatus) {
	mp.mu.Lock()
	mp.status[name] = st
	mp.mu.Unlock()
}

// execute walks the provider chain in order, honoring circuit breakers
// and the configured fallback strategy, until one provider succeeds or
// every provider has failed.
func (mp *MultiProvider) execute(ctx context.Context, req *CompletionRequest, call func(context.Context, *ProviderConfig, *CompletionRequest) (*CompletionResponse, error)) (*CompletionResponse, error) {
	var lastErr error
	var attempted []string

	for _, provider := range mp.providers {
		breaker := mp.breakers[provider.Name]
		if !breaker.Allow() {
			mp.setStatus(provider.Name, ProviderStatusUnhealthy)
			mp.logger.Info(ctx, "provider circuit breaker is open, skipping",
				F("provider", provider.Name))
			continue
		}

		providerReq := req
		if req.Model == "" {
			r := *req
			r.Model = provider.Model
			providerReq = &r
		}

		resp, err := mp.callWithRetry(ctx, provider, providerReq, call)
		attempted = append(attempted, provider.Name)

		if err == nil {
			breaker.RecordSuccess()
			mp.setStatus(provider.Name, ProviderStatusHealthy)
			return resp, nil
		}

		lastErr = err
		breaker.RecordFailure()
		if breaker.IsOpen() {
			mp.setStatus(provider.Name, ProviderStatusUnhealthy)
		} else {
			mp.setStatus(provider.Name, ProviderStatusDegraded)
		}
		mp.logger.Warn(ctx, "provider failed, trying fallback",
			F("provider", provider.Name), F("error", err.Error()))

		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
	}

	if len(attempted) == 0 {
		return nil, fmt.Errorf("all provider circuit breakers are open")
	}
	return nil, fmt.Errorf("all providers failed, attempted %v: %w", attempted, lastErr)
}

// callWithRetry gives one provider its attempts according to the fallback
// strategy: a single shot under FailFast, bounded exponential backoff
// under RetryWithBackoff.
func (mp *MultiProvider) callWithRetry(ctx context.Context, provider *ProviderConfig, req *CompletionRequest, call func(context.Context, *ProviderConfig, *CompletionRequest) (*CompletionResponse, error)) (*CompletionResponse, error) {
	if mp.strategy != FallbackStrategyRetryWithBackoff {
		return call(ctx, provider, req)
	}

	maxRetries := provider.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	baseDelay := provider.RetryDelay
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * baseDelay
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("request cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := call(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableProviderError(err) {
			break
		}
	}
	return nil, fmt.Errorf("request failed after retries: %w", lastErr)
}

// isRetryableProviderError classifies an adapter error: coded transient
// errors and rate limits retry, auth and validation failures do not, and
// unclassified errors default to retrying since providers wrap transport
// failures inconsistently.
func isRetryableProviderError(err error) bool {
	if err == nil {
		return false
	}
	if IsRetryable(err) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) {
		return true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "invalid"),
		strings.Contains(msg, "validation"):
		return false
	}
	return true
}

// CircuitBreaker trips after threshold consecutive failures and blocks a
// provider until timeout has elapsed, after which one probe request is
// allowed through; the probe's outcome re-closes or re-opens the breaker.
type CircuitBreaker struct {
	name      string
	threshold int
	timeout   time.Duration

	mu       sync.Mutex
	failures int
	open     bool
	openedAt time.Time
}

// NewCircuitBreaker builds a closed breaker for the named provider.
func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{name: name, threshold: threshold, timeout: timeout}
}

// Allow reports whether a request may proceed: always when closed, and
// once per timeout window as a probe when open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true
	}
	if time.Since(cb.openedAt) >= cb.timeout {
		// Half-open: let one probe through; RecordSuccess/RecordFailure
		// decides what happens next. Resetting openedAt spaces probes a
		// full timeout apart.
		cb.openedAt = time.Now()
		return true
	}
	return false
}

// IsOpen reports whether the breaker is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
}

// RecordFailure counts a failure, opening the breaker at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.open = true
		cb.openedAt = time.Now()
	}
}
