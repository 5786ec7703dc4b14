// Package llm wraps the hosted language models used for classification
// behind a single prompt-in, text-out interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

// Completer sends one prompt and returns the model's text reply
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Provider names accepted by New
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a backend
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int64
	MaxRetries int
	HTTPClient *http.Client
}

// New builds the configured backend wrapped in a retry policy. It returns
// nil when no provider is configured.
func New(cfg Config) (Completer, error) {
	var completer Completer

	switch cfg.Provider {
	case "":
		return nil, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		completer = NewOpenAI(cfg)
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		completer = NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}

	return WithRetry(completer, cfg.MaxRetries), nil
}

// ErrEmptyCompletion is returned when the model produced no text
var ErrEmptyCompletion = errors.New("model returned an empty completion")

type retryingCompleter struct {
	next   Completer
	policy retrypolicy.RetryPolicy[string]
}

// WithRetry retries transient failures with jittered exponential backoff.
// Client errors other than 429 are returned immediately.
func WithRetry(next Completer, maxRetries int) Completer {
	if maxRetries < 0 {
		maxRetries = 0
	}

	policy := retrypolicy.NewBuilder[string]().
		WithBackoff(500*time.Millisecond, 10*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ string, err error) bool {
			return err != nil && isRetryable(err)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[string]) {
			logrus.Warnf("Retrying classifier call (attempt %d): %v", e.Attempts(), e.LastError())
		}).
		ReturnLastFailure().
		Build()

	return &retryingCompleter{next: next, policy: policy}
}

func (r *retryingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return failsafe.With[string](r.policy).WithContext(ctx).Get(func() (string, error) {
		return r.next.Complete(ctx, prompt)
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *httpStatusError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
	}
	return true
}

// httpStatusError normalises SDK errors so retry decisions see one type
type httpStatusError struct {
	status int
	err    error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }
