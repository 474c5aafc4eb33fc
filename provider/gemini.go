package provider

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiAdapter.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiAdapter talks to Google's Gemini API via the official genai SDK,
// rather than hand-rolled HTTP like the other adapters, since the SDK is
// the idiomatic client for this backend.
//
// Grounded on the teacher's llms.GeminiProvider (same request shape,
// different transport).
type GeminiAdapter struct {
	cfg    GeminiConfig
	client *genai.Client
}

func NewGeminiAdapter(ctx context.Context, cfg GeminiConfig) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError(ErrGeneric, "gemini", "failed to create client", err)
	}
	return &GeminiAdapter{cfg: cfg, client: client}, nil
}

func (a *GeminiAdapter) Generate(ctx context.Context, messages []Message, opts Options) (Response, error) {
	model := a.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemInstruction *genai.Content
	for _, m := range messages {
		part := genai.NewPartFromText(m.Content)
		if m.Role == "system" {
			systemInstruction = genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser)
			continue
		}
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(opts.Temperature)),
		TopP:              genai.Ptr(float32(opts.TopP)),
		SystemInstruction: systemInstruction,
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return Response{}, NewError(classifyGeminiErr(err), "gemini", "generation failed", err)
	}

	text := resp.Text()
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return Response{Content: text, Tokens: tokens, Model: model}, nil
}

// classifyGeminiErr narrows the SDK's generic error into one of our
// typed kinds by inspecting its message; the SDK doesn't expose a
// structured status code today.
func classifyGeminiErr(err error) ErrKind {
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "quota"):
		return ErrRateLimit
	case containsAny(msg, "401", "403", "unauthorized", "permission"):
		return ErrAuthentication
	case containsAny(msg, "503", "unavailable", "timeout"):
		return ErrUnavailable
	default:
		return ErrGeneric
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (a *GeminiAdapter) IsAvailable(ctx context.Context) bool {
	_, err := a.Generate(ctx, []Message{{Role: "user", Content: "ping"}}, Options{MaxTokens: 1})
	if err == nil {
		return true
	}
	kind, ok := KindOf(err)
	return ok && kind != ErrUnavailable && kind != ErrAuthentication
}

func (a *GeminiAdapter) Capabilities() Capabilities {
	return Capabilities{
		Modalities:      []Modality{ModalityText, ModalityImage, ModalityAudio},
		MaxContextSize:  1000000,
		Streaming:       true,
		FunctionCalling: true,
		Vision:          true,
		CostTier:        CostMedium,
	}
}

func (a *GeminiAdapter) Provider() string { return "gemini" }
func (a *GeminiAdapter) Model() string    { return a.cfg.Model }
