package provider

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// rateLimitInfo is what a header parser extracts from a failed
// response, used to pace the next retry attempt.
type rateLimitInfo struct {
	retryAfter time.Duration
	resetTime  int64
}

// headerParser extracts rateLimitInfo from a provider's response
// headers; each adapter family that speaks rate-limit headers supplies
// its own.
type headerParser func(http.Header) rateLimitInfo

// retryingClient retries a request when the response classifies (via
// classifyStatus/ErrKind) as rate limiting or transient unavailability
// — the two failure modes the router's fallback chain can't recover
// from any faster by itself. Authentication and generic 4xx failures
// are returned immediately; retrying those only burns time before the
// router moves on to the next provider.
type retryingClient struct {
	inner        *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	headerParser headerParser
}

// retryOption configures a retryingClient.
type retryOption func(*retryingClient)

func withTimeout(d time.Duration) retryOption {
	return func(c *retryingClient) { c.inner.Timeout = d }
}

func withHeaderParser(p headerParser) retryOption {
	return func(c *retryingClient) { c.headerParser = p }
}

// withTLS installs a transport built from tlsConfig, for adapters that
// need a custom CA (self-hosted gateways) or, in test-only setups, a
// relaxed certificate check.
func withTLS(cfg tlsConfig) retryOption {
	return func(c *retryingClient) {
		transport, err := cfg.transport()
		if err != nil {
			slog.Warn("provider: failed to configure TLS, using default transport", "error", err)
			return
		}
		c.inner.Transport = transport
	}
}

func newRetryingClient(opts ...retryOption) *retryingClient {
	c := &retryingClient{
		inner:      &http.Client{Timeout: 120 * time.Second},
		maxRetries: 5,
		baseDelay:  2 * time.Second,
		maxDelay:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req, retrying with backoff while classifyStatus keeps
// returning ErrRateLimit or ErrUnavailable and attempts remain. Any
// other outcome — success, a non-retryable status, or a transport-level
// error — returns immediately.
func (c *retryingClient) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("provider: read request body: %w", err)
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	var last *http.Response
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			return nil, err
		}

		kind := classifyStatus(resp.StatusCode)
		if kind != ErrRateLimit && kind != ErrUnavailable {
			return resp, nil
		}
		if attempt >= c.maxRetries {
			return resp, nil
		}

		var info rateLimitInfo
		if c.headerParser != nil {
			info = c.headerParser(resp.Header)
		}
		delay := c.delayFor(kind, attempt, info)
		slog.Info("provider: retrying request", "status", resp.StatusCode, "kind", kind, "attempt", attempt+1, "max", c.maxRetries, "delay", delay)
		last = resp
		last.Body.Close()
		time.Sleep(delay)
	}
	return last, fmt.Errorf("provider: exhausted %d retries", c.maxRetries)
}

func (c *retryingClient) delayFor(kind ErrKind, attempt int, info rateLimitInfo) time.Duration {
	if kind == ErrUnavailable {
		// Transient server errors get a short linear backoff (2s, 3s, 4s,
		// ...) rather than exponential growth; they're usually resolved in a beat or not
		// at all, and the router's own fallback chain is the better
		// remedy for a provider that's down for longer than that.
		return time.Duration(2+attempt) * time.Second
	}

	if info.retryAfter > 0 {
		return info.retryAfter
	}
	if info.resetTime > 0 {
		if d := time.Until(time.Unix(info.resetTime, 0)); d > 0 {
			return min(d, c.maxDelay)
		}
	}
	delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
	return min(delay+jitter, c.maxDelay)
}

// tlsConfig is a minimal custom-CA/insecure-skip-verify knob, for
// adapters pointed at a self-hosted gateway in front of a provider
// rather than the public API.
type tlsConfig struct {
	insecureSkipVerify bool
	caCertificatePath  string
}

func (cfg tlsConfig) transport() (*http.Transport, error) {
	transport := &http.Transport{TLSClientConfig: &tls.Config{}}

	if cfg.caCertificatePath != "" {
		pem, err := os.ReadFile(cfg.caCertificatePath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate %s: %w", cfg.caCertificatePath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse CA certificate %s", cfg.caCertificatePath)
		}
		transport.TLSClientConfig.RootCAs = pool
	}
	if cfg.insecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
		slog.Warn("provider: TLS certificate verification disabled, do not use in production")
	}
	return transport, nil
}
