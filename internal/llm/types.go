// Package llm provides a thin client adapter for external language-model
// providers, with rate limiting and retry-with-backoff.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Image is an inline image attached to a request.
type Image struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// Request describes one completion call.
type Request struct {
	// System carries the system instructions.
	System string

	// Content is the user-visible text content.
	Content string

	// Images are optional inline images.
	Images []Image

	// MaxTokens bounds the output size. Zero uses the provider default.
	MaxTokens int

	// Deterministic requests temperature-zero sampling.
	Deterministic bool
}

// Response is the provider's reply.
type Response struct {
	Text string
}

// Client is the provider adapter consumed by extractors and the
// validation synthesis layer.
type Client interface {
	// Complete sends a request and returns the text response. Retryable
	// failures (rate limit, timeout, transient server error) are retried
	// internally with exponential backoff; auth and bad-request errors
	// surface immediately.
	Complete(ctx context.Context, req Request) (Response, error)

	// Available returns true if the client is configured and ready.
	Available() bool
}

// Config holds provider configuration.
type Config struct {
	Provider   string  `koanf:"provider"` // "anthropic" or "openai"
	Model      string  `koanf:"model"`
	APIKey     string  `koanf:"api_key"`
	BaseURL    string  `koanf:"base_url"`
	MaxTokens  int     `koanf:"max_tokens"`
	Timeout    int     `koanf:"timeout"` // seconds
	MaxRetries int     `koanf:"max_retries"`
	RateLimit  float64 `koanf:"rate_limit"` // requests per second
	Burst      int     `koanf:"burst"`
}

// Error taxonomy. Auth and bad-request errors are non-retryable and
// fatal to the current call; everything wrapped in RetryableError is
// retried up to the attempt limit.
var (
	ErrAuth       = errors.New("provider authentication failed")
	ErrBadRequest = errors.New("provider rejected request")
)

// RetryableError wraps an error to indicate it can be retried.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// New creates a client for the configured provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
