package llmrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coordinator "github.com/agentmesh/coordinator"
	"github.com/agentmesh/coordinator/provider"
)

type fakeAdapter struct {
	name         string
	available    bool
	content      string
	err          error
	capabilities provider.Capabilities
}

func (f *fakeAdapter) Generate(_ context.Context, _ []provider.Message, _ provider.Options) (provider.Response, error) {
	if f.err != nil {
		return provider.Response{}, f.err
	}
	return provider.Response{Content: f.content}, nil
}
func (f *fakeAdapter) IsAvailable(_ context.Context) bool   { return f.available }
func (f *fakeAdapter) Capabilities() provider.Capabilities { return f.capabilities }
func (f *fakeAdapter) Provider() string                    { return f.name }
func (f *fakeAdapter) Model() string                       { return f.name + "-model" }

func TestRouterFallsBackOnUnavailable(t *testing.T) {
	r := New(Config{DefaultProvider: "ollama", Fallbacks: []string{"perplexity"}})
	r.Register("ollama", &fakeAdapter{name: "ollama", available: true, err: provider.NewError(provider.ErrUnavailable, "ollama", "down", nil)})
	r.Register("perplexity", &fakeAdapter{name: "perplexity", available: true, content: "X"})

	resp, decision, err := r.Generate(context.Background(), "hello", []provider.Message{{Role: "user", Content: "hello"}}, provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "X", resp.Content)
	assert.Equal(t, "perplexity", decision.Provider)
}

func TestRouterAllProvidersFailed(t *testing.T) {
	r := New(Config{DefaultProvider: "ollama"})
	r.Register("ollama", &fakeAdapter{name: "ollama", available: true, err: provider.NewError(provider.ErrUnavailable, "ollama", "down", nil)})

	_, _, err := r.Generate(context.Background(), "hello", nil, provider.Options{})
	require.Error(t, err)
	code, ok := coordinator.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, coordinator.ErrAllProvidersFailed, code)
}

func TestRouterNoHealthyProviderUnavailable(t *testing.T) {
	r := New(Config{DefaultProvider: "ollama"})
	r.Register("ollama", &fakeAdapter{name: "ollama", available: false})

	_, _, err := r.Generate(context.Background(), "hello", nil, provider.Options{})
	require.Error(t, err)
	code, _ := coordinator.CodeOf(err)
	assert.Equal(t, coordinator.ErrLLMUnavailable, code)
}

func TestRuleSelectsTargetProviderByPriority(t *testing.T) {
	r := New(Config{
		DefaultProvider: "ollama",
		Rules: []Rule{
			{Name: "debug-to-gpt4", Condition: Condition{TaskTypes: []provider.TaskType{provider.TaskDebugging}}, TargetProvider: "openai", Priority: 10, Reason: "debugging task"},
		},
	})
	r.Register("ollama", &fakeAdapter{name: "ollama", available: true, content: "ollama-answer"})
	r.Register("openai", &fakeAdapter{name: "openai", available: true, content: "openai-answer"})

	resp, decision, err := r.Generate(context.Background(), "please debug this function", nil, provider.Options{})
	require.NoError(t, err)
	assert.Equal(t, "openai-answer", resp.Content)
	assert.Equal(t, "openai", decision.Provider)
	assert.Equal(t, "debugging task", decision.Reason)
}

func TestArchitectRoleBoostsComplexityToCritical(t *testing.T) {
	e := newTokenEstimator()
	tc := e.estimateCharacteristics("short prompt", provider.Options{Role: "architect"})
	assert.Equal(t, provider.ComplexityCritical, tc.Complexity)
}

func TestHealthCacheServesFromCacheWithinTTL(t *testing.T) {
	c := newHealthCache()
	a := &fakeAdapter{name: "p", available: true}

	assert.True(t, c.isHealthy(context.Background(), "p", a))
	// The adapter now reports unavailable; within the TTL the cached
	// healthy result is still served.
	a.available = false
	assert.True(t, c.isHealthy(context.Background(), "p", a))
}

func TestRateLimitMarksProviderUnhealthyForCooldown(t *testing.T) {
	c := newHealthCache()
	a := &fakeAdapter{name: "p", available: true}
	assert.True(t, c.isHealthy(context.Background(), "p", a))

	c.markRateLimited("p")
	assert.False(t, c.isHealthy(context.Background(), "p", a))
}
