package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
)

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	limit := cfg.RateLimit
	if limit == 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = defaultBurst
	}

	return &anthropicClient{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		maxRetries: maxRetries,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a request to the Messages API with rate limiting and
// retries.
func (a *anthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter error: %w", err)
	}

	blocks := []anthropicBlock{{Type: "text", Text: req.Content}}
	for _, img := range req.Images {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.maxTokens
	}

	temperature := 0.3
	if req.Deterministic {
		temperature = 0
	}

	apiReq := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
	}

	return withRetries(ctx, a.maxRetries, func() (Response, error) {
		return a.doRequest(ctx, apiReq)
	})
}

func (a *anthropicClient) doRequest(ctx context.Context, req anthropicRequest) (Response, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// Network failures and client timeouts are retryable.
		return Response{}, &RetryableError{Err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body, parseAnthropicError); err != nil {
		return Response{}, err
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Response{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Content) == 0 {
		return Response{}, fmt.Errorf("empty response from API")
	}

	return Response{Text: apiResp.Content[0].Text}, nil
}

func parseAnthropicError(body []byte) string {
	var errResp anthropicError
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(body)
}

// classifyStatus maps HTTP status codes onto the error taxonomy.
func classifyStatus(status int, body []byte, parseMsg func([]byte) string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: API error (%d): %s", ErrAuth, status, parseMsg(body))
	case status == http.StatusTooManyRequests:
		return &RetryableError{Err: fmt.Errorf("rate limited (429)")}
	case status == http.StatusRequestTimeout:
		return &RetryableError{Err: fmt.Errorf("request timeout (408)")}
	case status >= 500:
		return &RetryableError{Err: fmt.Errorf("server error (%d): %s", status, parseMsg(body))}
	case status >= 400:
		return fmt.Errorf("%w: API error (%d): %s", ErrBadRequest, status, parseMsg(body))
	default:
		return fmt.Errorf("unexpected status (%d): %s", status, parseMsg(body))
	}
}

// Available returns true if the client is configured.
func (a *anthropicClient) Available() bool {
	return a.apiKey != ""
}

var _ Client = (*anthropicClient)(nil)
