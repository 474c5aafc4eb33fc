package provider

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryingClientRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newRetryingClient(withHeaderParser(genericRateLimitHeaders))
	c.baseDelay = time.Millisecond
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
}

func TestRetryingClientStopsOnAuthFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newRetryingClient()
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, calls, "non-retryable status should not be retried")
}

func TestRetryingClientReplaysRequestBody(t *testing.T) {
	var calls int
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newRetryingClient()
	req, err := http.NewRequest(http.MethodPost, srv.URL, bytes.NewBufferString("payload"))
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestDelayForRateLimitPrefersRetryAfterHeader(t *testing.T) {
	c := newRetryingClient()
	d := c.delayFor(ErrRateLimit, 0, rateLimitInfo{retryAfter: 3 * time.Second})
	assert.Equal(t, 3*time.Second, d)
}

func TestDelayForUnavailableIsLinearBackoff(t *testing.T) {
	c := newRetryingClient()
	assert.Equal(t, 2*time.Second, c.delayFor(ErrUnavailable, 0, rateLimitInfo{}))
	assert.Equal(t, 3*time.Second, c.delayFor(ErrUnavailable, 1, rateLimitInfo{}))
}

func TestAnthropicRateLimitHeadersParsesResetAndRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "5")
	h.Set("anthropic-ratelimit-requests-reset", time.Now().Add(time.Minute).Format(time.RFC3339))
	info := anthropicRateLimitHeaders(h)
	assert.Equal(t, 5*time.Second, info.retryAfter)
	assert.NotZero(t, info.resetTime)
}

func TestOpenAIRateLimitHeadersParsesTokenReset(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-reset-tokens", "1700000000")
	info := openAIRateLimitHeaders(h)
	assert.Equal(t, int64(1700000000), info.resetTime)
}

func TestProviderHeaderParserPicksAnthropicOverOpenAI(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-remaining", "10")
	h.Set("x-ratelimit-remaining-requests", "20")
	h.Set("anthropic-ratelimit-requests-reset", time.Now().Add(time.Minute).Format(time.RFC3339))
	info := providerHeaderParser(h)
	assert.NotZero(t, info.resetTime)
}

func TestTLSConfigTransportRejectsUnreadableCA(t *testing.T) {
	cfg := tlsConfig{caCertificatePath: "/nonexistent/ca.pem"}
	_, err := cfg.transport()
	require.Error(t, err)
}

func TestTLSConfigTransportAppliesInsecureSkipVerify(t *testing.T) {
	cfg := tlsConfig{insecureSkipVerify: true}
	transport, err := cfg.transport()
	require.NoError(t, err)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
}
