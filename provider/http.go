package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Doer is the minimal HTTP surface an adapter needs; satisfied by
// *http.Client, by *retryingClient, and by test doubles.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultClient wraps a retrying transport with provider rate limit
// header parsing, so a 429 from either Anthropic or OpenAI backs off
// using the server's own Retry-After guidance instead of a fixed delay.
func defaultClient() Doer {
	return newRetryingClient(
		withTimeout(30*time.Second),
		withHeaderParser(providerHeaderParser),
	)
}

// providerHeaderParser tries Anthropic's header names first, then
// OpenAI's, falling back to the bare Retry-After header any backend
// might set; unset headers parse to zero values, so trying each is
// harmless.
func providerHeaderParser(h http.Header) rateLimitInfo {
	switch {
	case h.Get("anthropic-ratelimit-requests-remaining") != "" || h.Get("anthropic-ratelimit-requests-reset") != "":
		return anthropicRateLimitHeaders(h)
	case h.Get("x-ratelimit-remaining-requests") != "" || h.Get("x-ratelimit-reset-requests") != "":
		return openAIRateLimitHeaders(h)
	default:
		return genericRateLimitHeaders(h)
	}
}

// genericRateLimitHeaders reads the one header every backend is
// expected to honor when throttling, for adapters with no
// provider-specific rate limit headers of their own.
func genericRateLimitHeaders(h http.Header) rateLimitInfo {
	info := rateLimitInfo{}
	if retryAfter := h.Get("Retry-After"); retryAfter != "" {
		if seconds, err := parseSeconds(retryAfter); err == nil {
			info.retryAfter = time.Duration(seconds) * time.Second
		}
	}
	return info
}

func parseSeconds(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// postJSON posts body as JSON to url with the given headers, decodes the
// response into out, and classifies HTTP failures into typed provider
// errors.
func postJSON(ctx context.Context, doer Doer, providerName, url string, headers map[string]string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return NewError(ErrGeneric, providerName, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return NewError(ErrGeneric, providerName, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return NewError(ErrUnavailable, providerName, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if kind := classifyStatus(resp.StatusCode); kind != "" {
		switch kind {
		case ErrRateLimit:
			return NewError(ErrRateLimit, providerName, "rate limited", fmt.Errorf("status %d", resp.StatusCode))
		case ErrAuthentication:
			return NewError(ErrAuthentication, providerName, "authentication failed", fmt.Errorf("status %d", resp.StatusCode))
		case ErrUnavailable:
			return NewError(ErrUnavailable, providerName, "server error", fmt.Errorf("status %d", resp.StatusCode))
		case ErrGeneric:
			return NewError(ErrGeneric, providerName, "request rejected", fmt.Errorf("status %d: %s", resp.StatusCode, extractErrorDetail(respBody)))
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return NewError(ErrGeneric, providerName, "failed to decode response", err)
	}
	return nil
}

// extractErrorDetail tries to surface a backend's own error message
// before falling back to a truncated raw body.
func extractErrorDetail(body []byte) string {
	var errorResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Error.Message != "" {
		return errorResp.Error.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
