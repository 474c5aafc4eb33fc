package provider

import (
	"context"
	"strings"
)

const ollamaDefaultHost = "http://localhost:11434"

// OllamaConfig configures an OllamaAdapter.
type OllamaConfig struct {
	Model  string
	Host   string
	Client Doer
}

// OllamaAdapter talks to a local Ollama daemon. Its free, self-hosted
// nature makes it the natural default/cost-optimized provider.
//
// Grounded on the teacher's llms.OllamaProvider.
type OllamaAdapter struct {
	cfg  OllamaConfig
	host string
}

func NewOllamaAdapter(cfg OllamaConfig) *OllamaAdapter {
	host := cfg.Host
	if host == "" {
		host = ollamaDefaultHost
	}
	if cfg.Client == nil {
		cfg.Client = defaultClient()
	}
	return &OllamaAdapter{cfg: cfg, host: strings.TrimSuffix(host, "/")}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

func (a *OllamaAdapter) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	model := a.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	req := ollamaChatRequest{
		Model:  model,
		Stream: false,
		Options: &ollamaOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	var out ollamaChatResponse
	if err := postJSON(ctx, a.cfg.Client, "ollama", a.host+"/api/chat", nil, req, &out); err != nil {
		return Response{}, err
	}
	if out.Error != "" {
		return Response{}, NewError(ErrGeneric, "ollama", out.Error, nil)
	}
	return Response{Content: out.Message.Content, Model: model}, nil
}

func (a *OllamaAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.Generate(ctx, []Message{{Role: "user", Content: "ping"}}, Options{MaxTokens: 1})
	if err == nil {
		return true
	}
	kind, ok := KindOf(err)
	return ok && kind != ErrUnavailable
}

func (a *OllamaAdapter) Capabilities() Capabilities {
	return Capabilities{
		Modalities:      []Modality{ModalityText},
		MaxContextSize:  8192,
		Streaming:       true,
		FunctionCalling: true,
		Vision:          false,
		CostTier:        CostFree,
	}
}

func (a *OllamaAdapter) Provider() string { return "ollama" }
func (a *OllamaAdapter) Model() string    { return a.cfg.Model }
