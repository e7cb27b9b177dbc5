package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/recall/internal/log"
	"github.com/koopa0/recall/internal/tracing"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"quota", errors.New("quota exceeded for project"), true},
		{"server error", errors.New("upstream returned 503"), true},
		{"unavailable", errors.New("service Unavailable"), true},
		{"network flake", errors.New("read: connection reset by peer"), true},
		{"timeout", errors.New("context deadline exceeded: timeout"), true},
		{"auth failure", errors.New("401 invalid api key"), false},
		{"bad request", errors.New("invalid request payload"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

// flakyCompleter fails the first failCount calls with failErr, then
// answers with text.
type flakyCompleter struct {
	failCount int
	failErr   error
	text      string

	calls int
}

func (f *flakyCompleter) attempt() (*Turn, error) {
	f.calls++
	if f.calls <= f.failCount {
		return nil, f.failErr
	}
	return &Turn{Text: f.text}, nil
}

func (f *flakyCompleter) Complete(ctx context.Context, msgs []Message, tools []ToolDef) (*Turn, error) {
	return f.attempt()
}

func (f *flakyCompleter) CompleteStream(ctx context.Context, msgs []Message, tools []ToolDef, onText StreamFunc) (*Turn, error) {
	f.calls++
	if f.text != "" {
		if err := onText(ctx, f.text); err != nil {
			return nil, err
		}
	}
	if f.calls <= f.failCount {
		return nil, f.failErr
	}
	return &Turn{Text: f.text}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newRetryChat(t *testing.T, completer Completer) *Chat {
	t.Helper()
	c, err := New(Config{
		Completer: completer,
		Knowledge: &fakeKnowledge{},
		Tracer:    tracing.NewNop(),
		Logger:    log.NewNop(),
		Retry:     fastRetry(),
	})
	require.NoError(t, err)
	return c
}

func TestCompletionRetries(t *testing.T) {
	t.Run("transient failure retried to success", func(t *testing.T) {
		completer := &flakyCompleter{
			failCount: 2,
			failErr:   errors.New("429 rate limit"),
			text:      "recovered answer",
		}
		c := newRetryChat(t, completer)

		answer, err := c.Execute(context.Background(), userHistory("hi"))
		require.NoError(t, err)
		assert.Equal(t, "recovered answer", answer)
		assert.Equal(t, 3, completer.calls)
	})

	t.Run("non-retryable failure fails on first attempt", func(t *testing.T) {
		completer := &flakyCompleter{
			failCount: 10,
			failErr:   errors.New("401 invalid api key"),
		}
		c := newRetryChat(t, completer)

		_, err := c.Execute(context.Background(), userHistory("hi"))
		assert.ErrorIs(t, err, ErrCompletion)
		assert.Equal(t, 1, completer.calls)
	})

	t.Run("retries exhausted surfaces last error", func(t *testing.T) {
		completer := &flakyCompleter{
			failCount: 10,
			failErr:   errors.New("503 unavailable"),
		}
		c := newRetryChat(t, completer)

		_, err := c.Execute(context.Background(), userHistory("hi"))
		assert.ErrorIs(t, err, ErrCompletion)
		assert.Equal(t, 4, completer.calls, "initial attempt plus MaxRetries")
	})

	t.Run("stream with emitted text is never retried", func(t *testing.T) {
		// The first streaming attempt delivers text before failing with
		// a retryable error; replaying would duplicate client-visible
		// output, so the request must fail after one attempt.
		completer := &flakyCompleter{
			failCount: 10,
			failErr:   errors.New("connection reset"),
			text:      "partial chunk",
		}
		c := newRetryChat(t, completer)

		var chunks []string
		_, err := c.ExecuteStream(context.Background(), userHistory("hi"),
			func(ctx context.Context, text string) error {
				chunks = append(chunks, text)
				return nil
			})
		assert.ErrorIs(t, err, ErrCompletion)
		assert.Equal(t, 1, completer.calls)
		assert.Equal(t, []string{"partial chunk"}, chunks)
	})
}
