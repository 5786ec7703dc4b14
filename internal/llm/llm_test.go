package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	errs  []error
	calls int
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return "ok", nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantNil bool
		wantErr bool
	}{
		{name: "No provider", cfg: Config{}, wantNil: true},
		{name: "OpenAI", cfg: Config{Provider: ProviderOpenAI, APIKey: "k"}},
		{name: "Anthropic", cfg: Config{Provider: ProviderAnthropic, APIKey: "k"}},
		{name: "Missing key", cfg: Config{Provider: ProviderOpenAI}, wantErr: true},
		{name: "Unknown provider", cfg: Config{Provider: "bard", APIKey: "k"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, c)
			} else {
				assert.NotNil(t, c)
			}
		})
	}
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	inner := &scriptedCompleter{errs: []error{
		&httpStatusError{status: http.StatusServiceUnavailable, err: errors.New("unavailable")},
	}}

	out, err := WithRetry(inner, 2).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, inner.calls)
}

func TestWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	inner := &scriptedCompleter{errs: []error{
		&httpStatusError{status: http.StatusUnauthorized, err: errors.New("bad key")},
	}}

	_, err := WithRetry(inner, 3).Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	boom := &httpStatusError{status: http.StatusTooManyRequests, err: errors.New("slow down")}
	inner := &scriptedCompleter{errs: []error{boom, boom}}

	_, err := WithRetry(inner, 1).Complete(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestOpenAI_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"sentiment\":\"positive\"}"}}]}`))
	}))
	defer server.Close()

	c := NewOpenAI(Config{APIKey: "test-key", Model: "test-model", BaseURL: server.URL})
	out, err := c.Complete(context.Background(), "classify")
	require.NoError(t, err)
	assert.Equal(t, `{"sentiment":"positive"}`, out)
}

func TestAnthropic_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer server.Close()

	c := NewAnthropic(Config{APIKey: "test-key", BaseURL: server.URL})
	out, err := c.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestAnthropic_ErrorStatusIsExposed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`))
	}))
	defer server.Close()

	_, err := NewAnthropic(Config{APIKey: "k", BaseURL: server.URL}).Complete(context.Background(), "hi")
	require.Error(t, err)

	var statusErr *httpStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.status)
	assert.False(t, isRetryable(err))
}
