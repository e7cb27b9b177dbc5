package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for completion calls.
type RetryConfig struct {
	MaxRetries      int           // maximum retry attempts after the first call
	InitialInterval time.Duration // initial backoff interval
	MaxInterval     time.Duration // backoff ceiling
}

// DefaultRetryConfig returns the defaults used when Config.Retry is
// zero.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError reports whether an error is worth retrying: rate
// limits, transient server errors and network flakes. Everything else
// fails immediately.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()

	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}

	return false
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// completeWithRetry performs one completion call with exponential
// backoff. Each attempt is rate-limited individually. In streaming mode
// a call that has already emitted partial text is never retried —
// replaying it would duplicate output the client has seen.
func (c *Chat) completeWithRetry(ctx context.Context, msgs []Message, onText StreamFunc) (*Turn, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	emitted := false
	var wrapped StreamFunc
	if onText != nil {
		wrapped = func(ctx context.Context, text string) error {
			emitted = true
			return onText(ctx, text)
		}
	}

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		var turn *Turn
		var err error
		if onText != nil {
			turn, err = c.completer.CompleteStream(ctx, msgs, c.tools, wrapped)
		} else {
			turn, err = c.completer.Complete(ctx, msgs, c.tools)
		}
		if err == nil {
			if attempt > 0 {
				c.logger.Debug("completion succeeded after retry",
					"attempts", attempt+1,
					"elapsed", time.Since(start),
				)
			}
			return turn, nil
		}

		lastErr = err

		if emitted || !retryableError(err) {
			return nil, err
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying completion",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("completion after %d retries (elapsed: %v): %w",
		c.retry.MaxRetries, time.Since(start), lastErr)
}
