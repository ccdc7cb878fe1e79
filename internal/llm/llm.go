// Package llm talks to text-completion services.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Request is a single-prompt completion request
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into text
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError describes a failed completion call.
// StatusCode is 0 when no HTTP response was received.
// Malformed marks a success status whose body could not be read as a completion.
type APIError struct {
	StatusCode int
	Timeout    bool
	Malformed  bool
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request timeout: %s", e.Message)
	case e.Malformed:
		return fmt.Sprintf("malformed response (status %d): %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("request failed: %s", e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Transient reports whether retrying the call may succeed
func (e *APIError) Transient() bool {
	return e.Timeout || e.Malformed || e.StatusCode >= 500
}

// IsClientError reports whether err is a 4xx response
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}

// Config selects and configures a completion client
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// New builds the Completer for cfg.Provider ("anthropic" or "openai")
func New(cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key not set", cfg.Provider)
	}
	hc := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropic(hc, cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "openai":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai base URL not set")
		}
		return NewOpenAI(hc, cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	}
	return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
}

func transportError(err error) *APIError {
	var to interface{ Timeout() bool }
	timeout := errors.As(err, &to) && to.Timeout()
	if errors.Is(err, context.DeadlineExceeded) {
		timeout = true
	}
	return &APIError{Timeout: timeout, Message: err.Error(), Err: err}
}

func malformedResponse(status int, err error) *APIError {
	return &APIError{StatusCode: status, Malformed: true, Message: err.Error(), Err: err}
}
