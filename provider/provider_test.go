package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDoer struct {
	status int
	body   string
	err    error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewBufferString(f.body)),
	}, nil
}

func TestOpenAIAdapterGenerateSuccess(t *testing.T) {
	a := NewOpenAIAdapter(OpenAIConfig{
		APIKey: "k",
		Model:  "gpt-4",
		Client: &fakeDoer{status: 200, body: `{"choices":[{"message":{"role":"assistant","content":"hi"}}],"usage":{"total_tokens":5}}`},
	})

	resp, err := a.Generate(context.Background(), []Message{{Role: "user", Content: "hello"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, 5, resp.Tokens)
}

func TestOpenAIAdapterRateLimitClassified(t *testing.T) {
	a := NewOpenAIAdapter(OpenAIConfig{
		APIKey: "k",
		Client: &fakeDoer{status: 429, body: `{}`},
	})

	_, err := a.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrRateLimit, kind)
}

func TestOpenAIAdapterAuthClassified(t *testing.T) {
	a := NewOpenAIAdapter(OpenAIConfig{
		APIKey: "bad",
		Client: &fakeDoer{status: 401, body: `{}`},
	})

	_, err := a.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, ErrAuthentication, kind)
}

func TestAnthropicAdapterGenerateSuccess(t *testing.T) {
	a := NewAnthropicAdapter(AnthropicConfig{
		APIKey: "k",
		Model:  "claude-3",
		Client: &fakeDoer{status: 200, body: `{"content":[{"text":"hi there"}],"usage":{"input_tokens":2,"output_tokens":3}}`},
	})

	resp, err := a.Generate(context.Background(), []Message{{Role: "user", Content: "hello"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 5, resp.Tokens)
}

func TestOllamaAdapterUnavailableClassified(t *testing.T) {
	a := NewOllamaAdapter(OllamaConfig{
		Model:  "llama3",
		Client: &fakeDoer{status: 503, body: `{}`},
	})

	_, err := a.Generate(context.Background(), []Message{{Role: "user", Content: "hi"}}, Options{})
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, ErrUnavailable, kind)
	assert.False(t, a.IsAvailable(context.Background()))
}
