package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/logger"
)

const maxResponseBytes = 4 << 20

// ChatClient talks to an OpenAI-compatible chat completions endpoint
// (Groq by default). Each Generate is a single attempt.
type ChatClient struct {
	provider    string
	baseURL     string
	model       string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *logger.Logger
}

// NewChatClient builds a client from cfg. httpClient may be nil.
func NewChatClient(cfg config.GeneratorConfig, httpClient *http.Client, log *logger.Logger) *ChatClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Nop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "openai-compatible"
	}

	return &ChatClient{
		provider:    provider,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      log.WithComponent("generator"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

// Generate sends prompt as the user message and directive as the system
// message.
func (c *ChatClient) Generate(ctx context.Context, prompt, directive string) (string, error) {
	if c.apiKey == "" {
		return "", c.fail(0, "missing API key", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", c.fail(0, "rate limit wait aborted", err)
	}

	messages := make([]chatMessage, 0, 2)
	if directive != "" {
		messages = append(messages, chatMessage{Role: "system", Content: directive})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Temperature: c.temperature})
	if err != nil {
		return "", c.fail(0, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", c.fail(0, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "request failed"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "request timed out"
		}
		return "", c.fail(0, reason, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", c.fail(resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := "upstream returned an error"
		var apiErr apiErrorBody
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Type != "" {
			reason = "upstream error " + apiErr.Error.Type
		}
		return "", c.fail(resp.StatusCode, reason, nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", c.fail(resp.StatusCode, "decoding response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", c.fail(resp.StatusCode, "response has no choices", nil)
	}

	content := parsed.Choices[0].Message.Content
	c.logger.Debug("Generation complete",
		zap.String("model", c.model),
		zap.Int("prompt_length", len(prompt)),
		zap.Int("response_length", len(content)),
		zap.Duration("duration", time.Since(start)),
	)
	return content, nil
}

func (c *ChatClient) fail(status int, reason string, err error) *Error {
	c.logger.Warn("Generation failed",
		zap.String("provider", c.provider),
		zap.Int("status", status),
		zap.String("reason", reason),
	)
	return &Error{Provider: c.provider, StatusCode: status, Reason: reason, Err: err}
}

// String identifies the client in logs and info endpoints.
func (c *ChatClient) String() string {
	return fmt.Sprintf("%s/%s", c.provider, c.model)
}
