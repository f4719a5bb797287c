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
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// openAIClient implements Client using OpenAI's Chat Completions API.
type openAIClient struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
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

	return &openAIClient{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		maxRetries: maxRetries,
	}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string        `json:"role"`
	Content []openAIBlock `json:"content"`
}

type openAIBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a request to the Chat Completions API with rate
// limiting and retries.
func (o *openAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter error: %w", err)
	}

	blocks := []openAIBlock{{Type: "text", Text: req.Content}}
	for _, img := range req.Images {
		blocks = append(blocks, openAIBlock{
			Type: "image_url",
			ImageURL: &openAIImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", img.MediaType,
					base64.StdEncoding.EncodeToString(img.Data)),
			},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.maxTokens
	}

	temperature := 0.3
	if req.Deterministic {
		temperature = 0
	}

	apiReq := openAIRequest{
		Model:       o.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []openAIMessage{
			{Role: "system", Content: []openAIBlock{{Type: "text", Text: req.System}}},
			{Role: "user", Content: blocks},
		},
	}

	return withRetries(ctx, o.maxRetries, func() (Response, error) {
		return o.doRequest(ctx, apiReq)
	})
}

func (o *openAIClient) doRequest(ctx context.Context, req openAIRequest) (Response, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, &RetryableError{Err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body, parseOpenAIError); err != nil {
		return Response{}, err
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Response{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(apiResp.Choices) == 0 {
		return Response{}, fmt.Errorf("empty response from API")
	}

	return Response{Text: apiResp.Choices[0].Message.Content}, nil
}

func parseOpenAIError(body []byte) string {
	var errResp openAIError
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(body)
}

// Available returns true if the client is configured.
func (o *openAIClient) Available() bool {
	return o.apiKey != ""
}

var _ Client = (*openAIClient)(nil)
