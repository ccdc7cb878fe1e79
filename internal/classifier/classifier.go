// Package classifier asks a completion service which category a note belongs to.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pbaille/leaknote/internal/domain"
	"github.com/pbaille/leaknote/internal/llm"
	"github.com/pbaille/leaknote/internal/logging"
	"github.com/pbaille/leaknote/internal/metrics"
)

// MaxAttempts bounds completion calls per classification
const MaxAttempts = 3

// ErrMalformed marks a response that is not the expected JSON object
var ErrMalformed = errors.New("malformed classification response")

// Options tune the classifier
type Options struct {
	Temperature float64
	MaxTokens   int
	// RetryDelay is multiplied by the attempt number between attempts
	RetryDelay time.Duration
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Classifier handles note classification via a completion service
type Classifier struct {
	llm     llm.Completer
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a Classifier on top of c
func New(c llm.Completer, opts Options) *Classifier {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	return &Classifier{
		llm:     c,
		opts:    opts,
		logger:  logging.OrNop(opts.Logger).Named("classifier"),
		metrics: opts.Metrics,
	}
}

// Classify returns the model's reading of text. Timeouts, 5xx responses and
// malformed JSON are retried; everything else fails on the spot. When retries
// run out the last error is returned.
func (c *Classifier) Classify(ctx context.Context, text string) (*domain.Classification, error) {
	req := llm.Request{
		Prompt:      buildPrompt(text),
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}

	var result *domain.Classification
	attempt := 0

	op := func() error {
		attempt++
		resp, err := c.llm.Complete(ctx, req)
		if err != nil {
			if retryable(err) {
				c.metrics.ClassifyAttempt("transient_error")
				return err
			}
			c.metrics.ClassifyAttempt("fatal_error")
			return backoff.Permanent(err)
		}

		parsed, err := parseResponse(resp)
		if err != nil {
			c.metrics.ClassifyAttempt("malformed")
			return err
		}

		c.metrics.ClassifyAttempt("ok")
		result = parsed
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("classification attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: c.opts.RetryDelay}, MaxAttempts-1),
		ctx,
	)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	c.logger.Debug("classified note",
		zap.String("category", result.Category),
		zap.Float64("confidence", result.Confidence),
		zap.Int("attempts", attempt))
	return result, nil
}

func retryable(err error) bool {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		// No response at all (connection reset, DNS) is treated like a timeout
		return apiErr.Transient() || apiErr.StatusCode == 0
	}
	return false
}

// linearBackOff waits base, 2*base, 3*base, ...
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

func parseResponse(resp string) (*domain.Classification, error) {
	resp = stripFences(resp)

	var result domain.Classification
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrMalformed, err, logging.Preview(resp))
	}
	if result.Extracted == nil {
		result.Extracted = map[string]any{}
	}
	return &result, nil
}

// stripFences removes a Markdown code fence wrapped around the JSON
func stripFences(resp string) string {
	resp = strings.TrimSpace(resp)
	if !strings.HasPrefix(resp, "```") {
		return resp
	}
	resp = strings.TrimPrefix(resp, "```")
	// Drop the info string ("json") on the opening line
	if nl := strings.IndexByte(resp, '\n'); nl >= 0 && !strings.ContainsAny(resp[:nl], "{[") {
		resp = resp[nl+1:]
	} else {
		resp = strings.TrimPrefix(resp, "json")
	}
	resp = strings.TrimSuffix(strings.TrimSpace(resp), "```")
	return strings.TrimSpace(resp)
}
