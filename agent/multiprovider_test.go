package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAdapter fails its first failures calls, then succeeds with the
// configured content.
type scriptedAdapter struct {
	content  string
	failures int
	err      error
	calls    int
}

func (a *scriptedAdapter) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, a.err
	}
	return &CompletionResponse{Content: a.content, Model: req.Model, FinishReason: "stop"}, nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, req *CompletionRequest, onChunk func(string)) (*CompletionResponse, error) {
	resp, err := a.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(resp.Content)
	}
	return resp, nil
}

func newTestRouter(t *testing.T, strategy FallbackStrategy, providers ...ProviderConfig) *MultiProvider {
	t.Helper()
	mp, err := NewMultiProvider(&MultiProviderConfig{
		Providers:               providers,
		FallbackStrategy:        strategy,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   50 * time.Millisecond,
	})
	require.NoError(t, err)
	return mp
}

func provider(name string, adapter LLMAdapter) ProviderConfig {
	return ProviderConfig{
		Name:       name,
		Type:       name,
		Model:      name + "-model",
		Adapter:    adapter,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}
}

func TestMultiProvider_SingleProviderSucceeds(t *testing.T) {
	primary := &scriptedAdapter{content: "hello"}
	mp := newTestRouter(t, FallbackStrategyFailFast, provider("openai", primary))

	got, err := mp.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, ProviderStatusHealthy, mp.GetProviderStatus()["openai"])
}

func TestMultiProvider_FallsBackToSecondaryWhenPrimaryFails(t *testing.T) {
	primary := &scriptedAdapter{failures: 10, err: errors.New("connection refused")}
	secondary := &scriptedAdapter{content: "from gemini"}
	mp := newTestRouter(t, FallbackStrategyFailFast,
		provider("openai", primary), provider("gemini", secondary))

	got, err := mp.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "from gemini", got)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)

	status := mp.GetProviderStatus()
	assert.Equal(t, ProviderStatusDegraded, status["openai"])
	assert.Equal(t, ProviderStatusHealthy, status["gemini"])
}

func TestMultiProvider_AllProvidersFailing(t *testing.T) {
	primary := &scriptedAdapter{failures: 10, err: errors.New("connection refused")}
	secondary := &scriptedAdapter{failures: 10, err: errors.New("service unavailable")}
	mp := newTestRouter(t, FallbackStrategyFailFast,
		provider("openai", primary), provider("gemini", secondary))

	_, err := mp.Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestMultiProvider_RetryWithBackoffRetriesTransientErrors(t *testing.T) {
	// Fails once with a retryable error, then succeeds within the same
	// provider's retry budget: the fallback is never consulted.
	primary := &scriptedAdapter{content: "recovered", failures: 1, err: errors.New("timeout talking upstream")}
	secondary := &scriptedAdapter{content: "unused"}
	mp := newTestRouter(t, FallbackStrategyRetryWithBackoff,
		provider("openai", primary), provider("gemini", secondary))

	got, err := mp.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestMultiProvider_RetryWithBackoffSkipsNonRetryableErrors(t *testing.T) {
	primary := &scriptedAdapter{failures: 10, err: errors.New("invalid api key")}
	secondary := &scriptedAdapter{content: "fallback"}
	mp := newTestRouter(t, FallbackStrategyRetryWithBackoff,
		provider("openai", primary), provider("gemini", secondary))

	got, err := mp.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
	// An auth error must not burn the retry budget.
	assert.Equal(t, 1, primary.calls)
}

func TestMultiProvider_CircuitBreakerOpensAndRecovers(t *testing.T) {
	primary := &scriptedAdapter{failures: 2, err: errors.New("connection refused"), content: "back online"}
	secondary := &scriptedAdapter{content: "fallback"}
	mp := newTestRouter(t, FallbackStrategyFailFast,
		provider("openai", primary), provider("gemini", secondary))

	// Two failures trip the threshold-2 breaker.
	for i := 0; i < 2; i++ {
		got, err := mp.Ask(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "fallback", got)
	}
	assert.Equal(t, ProviderStatusUnhealthy, mp.GetProviderStatus()["openai"])

	// While open, the primary is skipped without being called.
	callsBefore := primary.calls
	_, err := mp.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, callsBefore, primary.calls)

	// After the breaker timeout a probe goes through; the adapter has
	// exhausted its scripted failures, so the probe succeeds and the
	// primary serves traffic again.
	time.Sleep(60 * time.Millisecond)
	got, err := mp.Ask(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "back online", got)
	assert.Equal(t, ProviderStatusHealthy, mp.GetProviderStatus()["openai"])
}

func TestMultiProvider_StreamRoutesThroughFailover(t *testing.T) {
	primary := &scriptedAdapter{failures: 10, err: errors.New("connection refused")}
	secondary := &scriptedAdapter{content: "streamed"}
	mp := newTestRouter(t, FallbackStrategyFailFast,
		provider("openai", primary), provider("gemini", secondary))

	var chunks []string
	resp, err := mp.Stream(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(delta string) { chunks = append(chunks, delta) })
	require.NoError(t, err)
	assert.Equal(t, "streamed", resp.Content)
	assert.Equal(t, []string{"streamed"}, chunks)
}

func TestMultiProvider_RequestModelDefaultsPerProvider(t *testing.T) {
	primary := &scriptedAdapter{content: "ok"}
	mp := newTestRouter(t, FallbackStrategyFailFast, provider("openai", primary))

	resp, err := mp.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai-model", resp.Model)

	resp, err = mp.Complete(context.Background(), &CompletionRequest{
		Model:    "explicit-model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit-model", resp.Model)
}

func TestNewMultiProvider_Validation(t *testing.T) {
	_, err := NewMultiProvider(nil)
	require.Error(t, err)

	_, err = NewMultiProvider(&MultiProviderConfig{})
	require.Error(t, err)

	_, err = NewMultiProvider(&MultiProviderConfig{Providers: []ProviderConfig{
		{Name: "openai", Model: "m"},
	}})
	require.Error(t, err, "missing adapter must be rejected")

	_, err = NewMultiProvider(&MultiProviderConfig{Providers: []ProviderConfig{
		{Name: "openai", Model: "m", Adapter: &scriptedAdapter{}},
		{Name: "openai", Model: "m", Adapter: &scriptedAdapter{}},
	}})
	require.Error(t, err, "duplicate provider names must be rejected")
}
