package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/pii-gateway/internal/config"
)

func testConfig(baseURL string) config.GeneratorConfig {
	cfg := config.GetDefaults().Generator
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.Timeout = 2 * time.Second
	cfg.RateLimit = config.RateLimitConfig{}
	return cfg
}

func TestChatClientGenerate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello <PERSON>"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := NewChatClient(testConfig(srv.URL+"/"), nil, nil)
	out, err := client.Generate(context.Background(), "Greet <PERSON>", "Preserve placeholders")
	require.NoError(t, err)
	assert.Equal(t, "Hello <PERSON>", out)

	assert.Equal(t, "llama-3.3-70b-versatile", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Preserve placeholders", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Greet <PERSON>", got.Messages[1].Content)
}

func TestChatClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		reason  string
		wantErr int
	}{
		{"upstream error", http.StatusUnauthorized, `{"error":{"type":"invalid_api_key","message":"bad key for prompt Greet Alice"}}`, "upstream error invalid_api_key", 401},
		{"opaque error", http.StatusBadGateway, `oops Greet Alice`, "upstream returned an error", 502},
		{"no choices", http.StatusOK, `{"choices":[]}`, "response has no choices", 200},
		{"garbage", http.StatusOK, `not json`, "decoding response", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewChatClient(testConfig(srv.URL), nil, nil).Generate(context.Background(), "Greet Alice", "")
			require.Error(t, err)

			var genErr *Error
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, "groq", genErr.Provider)
			assert.Equal(t, tt.wantErr, genErr.StatusCode)
			assert.Equal(t, tt.reason, genErr.Reason)
			assert.NotContains(t, err.Error(), "Alice")
		})
	}
}

func TestChatClientMissingKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = ""

	_, err := NewChatClient(cfg, nil, nil).Generate(context.Background(), "hi", "")
	var genErr *Error
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "missing API key", genErr.Reason)
}

func TestChatClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewChatClient(testConfig(url), nil, nil).Generate(context.Background(), "hi", "")
	var genErr *Error
	require.True(t, errors.As(err, &genErr))
	assert.Zero(t, genErr.StatusCode)
	assert.Equal(t, "request failed", genErr.Reason)
}

func TestChatClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewChatClient(testConfig(srv.URL), nil, nil).Generate(ctx, "hi", "")
	var genErr *Error
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "request timed out", genErr.Reason)
}

func TestChatClientRateLimitHonorsContext(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	client := NewChatClient(cfg, nil, nil)

	// Drain the single token.
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Generate(ctx, "hi", "")
	var genErr *Error
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "rate limit wait aborted", genErr.Reason)
}

func TestFuncAdapter(t *testing.T) {
	var g Generator = Func(func(_ context.Context, prompt, _ string) (string, error) { return prompt, nil })
	out, err := g.Generate(context.Background(), "echo", "")
	require.NoError(t, err)
	assert.Equal(t, "echo", out)
}
