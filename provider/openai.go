package provider

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const openAIDefaultHost = "https://api.openai.com/v1"

// OpenAIConfig configures an OpenAIAdapter.
type OpenAIConfig struct {
	APIKey string
	Model  string
	Host   string // defaults to openAIDefaultHost
	Client Doer   // defaults to defaultClient(), a retrying *http.Client wrapper
}

// OpenAIAdapter talks to the OpenAI chat completions API.
//
// Grounded on the teacher's llms.OpenAIProvider; narrowed to the
// generate/health/capability surface the router needs.
type OpenAIAdapter struct {
	cfg  OpenAIConfig
	host string
}

func NewOpenAIAdapter(cfg OpenAIConfig) *OpenAIAdapter {
	host := cfg.Host
	if host == "" {
		host = openAIDefaultHost
	}
	if cfg.Client == nil {
		cfg.Client = defaultClient()
	}
	return &OpenAIAdapter{cfg: cfg, host: strings.TrimSuffix(host, "/")}
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	Stop        []string            `json:"stop,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *OpenAIAdapter) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	model := a.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	req := openAIChatRequest{
		Model:       model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIChatMessage{Role: m.Role, Content: m.Content})
	}

	var out openAIChatResponse
	headers := map[string]string{"Authorization": "Bearer " + a.cfg.APIKey}
	if err := postJSON(ctx, a.cfg.Client, "openai", a.host+"/chat/completions", headers, req, &out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 {
		return Response{}, NewError(ErrGeneric, "openai", "empty response", nil)
	}
	return Response{Content: out.Choices[0].Message.Content, Tokens: out.Usage.TotalTokens, Model: model}, nil
}

func (a *OpenAIAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.Generate(ctx, []Message{{Role: "user", Content: "ping"}}, Options{MaxTokens: 1})
	if err == nil {
		return true
	}
	kind, ok := KindOf(err)
	return ok && kind != ErrUnavailable && kind != ErrAuthentication
}

func (a *OpenAIAdapter) Capabilities() Capabilities {
	return Capabilities{
		Modalities:      []Modality{ModalityText, ModalityImage},
		MaxContextSize:  128000,
		Streaming:       true,
		FunctionCalling: true,
		Vision:          true,
		CostTier:        CostMedium,
	}
}

func (a *OpenAIAdapter) Provider() string { return "openai" }
func (a *OpenAIAdapter) Model() string    { return a.cfg.Model }

// openAIRateLimitHeaders reads OpenAI's request/token rate limit
// headers, preferring a token reset over a request reset since token
// budgets usually bind first on chat completions.
func openAIRateLimitHeaders(h http.Header) rateLimitInfo {
	info := rateLimitInfo{}

	if retryAfter := h.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.retryAfter = time.Duration(seconds) * time.Second
		}
	}

	for _, header := range []string{"x-ratelimit-reset-tokens", "x-ratelimit-reset-requests"} {
		if resetStr := h.Get(header); resetStr != "" {
			if resetTime, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
				info.resetTime = resetTime
				break
			}
		}
	}

	return info
}
