package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Turnstyle/ria-hunter-sub007/internal/config"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

// scriptedProvider returns the queued errors before succeeding.
type scriptedProvider struct {
	errs      []error
	calls     int
	fragments []string
	failAfter int // stream: fail after emitting this many fragments (-1 disables)
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) GenerateText(_ context.Context, _ Request) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return "ok", nil
}

func (s *scriptedProvider) StreamText(_ context.Context, _ Request, onFragment func(string) error) error {
	s.calls++
	for i, f := range s.fragments {
		if s.failAfter >= 0 && i == s.failAfter {
			return &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "dropped"}
		}
		if err := onFragment(f); err != nil {
			return err
		}
	}
	return nil
}

func newTestRetry(p Provider, retries int) *RetryProvider {
	r := WithRetry(p, RetryConfig{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		observability.NopLogger()).(*RetryProvider)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRetryProvider_RetriesTransient(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
		&openai.APIError{HTTPStatusCode: http.StatusBadGateway},
	}}
	r := newTestRetry(inner, 3)

	out, err := r.GenerateText(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryProvider_StopsOnPermanent(t *testing.T) {
	inner := &scriptedProvider{errs: []error{&openai.APIError{HTTPStatusCode: http.StatusUnauthorized}}}
	r := newTestRetry(inner, 3)

	_, err := r.GenerateText(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, domain.IsType(err, domain.ErrorTypeUpstream))
}

func TestRetryProvider_StreamNotRetriedAfterDelivery(t *testing.T) {
	inner := &scriptedProvider{fragments: []string{"a", "b", "c"}, failAfter: 2}
	r := newTestRetry(inner, 3)

	var got []string
	err := r.StreamText(context.Background(), Request{}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestRetryProvider_StreamRetriedBeforeDelivery(t *testing.T) {
	inner := &scriptedProvider{fragments: []string{"a"}, failAfter: 0}
	r := newTestRetry(inner, 2)

	err := r.StreamText(context.Background(), Request{}, func(string) error { return nil })
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&openai.APIError{HTTPStatusCode: 429}, true},
		{&openai.APIError{HTTPStatusCode: 503}, true},
		{&openai.APIError{HTTPStatusCode: 400}, false},
		{&openai.RequestError{HTTPStatusCode: 504, Err: errors.New("gateway")}, true},
		{fmt.Errorf("wrapped: %w", context.Canceled), false},
		{errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRetry(tt.err))
		})
	}
}

func TestWithRetry_NilStaysNil(t *testing.T) {
	assert.Nil(t, WithRetry(nil, DefaultRetryConfig(), observability.NopLogger()))
}

func TestNewFromConfig(t *testing.T) {
	logger := observability.NopLogger()

	p, err := NewFromConfig(config.GenerationConfig{Provider: "none"}, logger)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewFromConfig(config.GenerationConfig{Provider: "openai"}, logger)
	require.NoError(t, err)
	assert.Nil(t, p, "missing credentials means not configured")

	p, err = NewFromConfig(config.GenerationConfig{Provider: "anthropic", APIKey: "k", Model: "claude-3-5-haiku-latest"}, logger)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "anthropic", p.Name())

	_, err = NewFromConfig(config.GenerationConfig{Provider: "gemini"}, logger)
	assert.Error(t, err)
}

func TestOpenAIProvider_GenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		require.NotNil(t, req.ResponseFormat)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: `{"semantic_query":"x"}`},
			}},
		})
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := p.GenerateText(context.Background(), Request{System: "sys", Prompt: "q", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"semantic_query":"x"}`, out)
}

func TestOpenAIProvider_StreamText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{"1. ", "ACME ", "Capital"} {
			chunk := openai.ChatCompletionStreamResponse{
				Choices: []openai.ChatCompletionStreamChoice{{Delta: openai.ChatCompletionStreamChoiceDelta{Content: frag}}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	var b strings.Builder
	err = p.StreamText(context.Background(), Request{Prompt: "q"}, func(s string) error {
		b.WriteString(s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1. ACME Capital", b.String())
}
