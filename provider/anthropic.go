package provider

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const anthropicDefaultHost = "https://api.anthropic.com/v1"

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey string
	Model  string
	Host   string
	Client Doer
}

// AnthropicAdapter talks to the Anthropic messages API.
//
// Grounded on the teacher's llms.AnthropicProvider.
type AnthropicAdapter struct {
	cfg  AnthropicConfig
	host string
}

func NewAnthropicAdapter(cfg AnthropicConfig) *AnthropicAdapter {
	host := cfg.Host
	if host == "" {
		host = anthropicDefaultHost
	}
	if cfg.Client == nil {
		cfg.Client = defaultClient()
	}
	return &AnthropicAdapter{cfg: cfg, host: strings.TrimSuffix(host, "/")}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
	TopP        float64             `json:"top_p,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *AnthropicAdapter) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	model := a.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	req := anthropicRequest{
		Model:         model,
		MaxTokens:     maxTokens,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: opts.Stop,
	}
	for _, m := range messages {
		if m.Role == "system" {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	var out anthropicResponse
	headers := map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := postJSON(ctx, a.cfg.Client, "anthropic", a.host+"/messages", headers, req, &out); err != nil {
		return Response{}, err
	}
	if len(out.Content) == 0 {
		return Response{}, NewError(ErrGeneric, "anthropic", "empty response", nil)
	}
	var text strings.Builder
	for _, c := range out.Content {
		text.WriteString(c.Text)
	}
	return Response{
		Content: text.String(),
		Tokens:  out.Usage.InputTokens + out.Usage.OutputTokens,
		Model:   model,
	}, nil
}

func (a *AnthropicAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.Generate(ctx, []Message{{Role: "user", Content: "ping"}}, Options{MaxTokens: 1})
	if err == nil {
		return true
	}
	kind, ok := KindOf(err)
	return ok && kind != ErrUnavailable && kind != ErrAuthentication
}

func (a *AnthropicAdapter) Capabilities() Capabilities {
	return Capabilities{
		Modalities:      []Modality{ModalityText, ModalityImage},
		MaxContextSize:  200000,
		Streaming:       true,
		FunctionCalling: true,
		Vision:          true,
		CostTier:        CostHigh,
	}
}

func (a *AnthropicAdapter) Provider() string { return "anthropic" }
func (a *AnthropicAdapter) Model() string    { return a.cfg.Model }

// anthropicRateLimitHeaders reads Anthropic's per-resource rate limit
// headers (requests, input tokens, output tokens each reset
// independently), preferring whichever reset header is present first.
func anthropicRateLimitHeaders(h http.Header) rateLimitInfo {
	info := rateLimitInfo{}

	if retryAfter := h.Get("retry-after"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.retryAfter = time.Duration(seconds) * time.Second
		}
	}

	for _, header := range []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	} {
		if resetStr := h.Get(header); resetStr != "" {
			if resetTime, err := time.Parse(time.RFC3339, resetStr); err == nil {
				info.resetTime = resetTime.Unix()
				break
			}
		}
	}

	return info
}
