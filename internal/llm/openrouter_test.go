package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearity-app/clearity/internal/apperrors"
	"github.com/clearity-app/clearity/internal/retry"
)

func noRetry() retry.Config {
	return retry.Config{MaxAttempts: 1}
}

func completionBody(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5},
	})
	return string(raw)
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(completionBody("hello there")))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("key-123",
		WithBaseURL(srv.URL), WithModels("fast-model", "deep-model"), WithRetry(noRetry()))

	resp, err := p.Complete(context.Background(), Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Tier:     TierDeep,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "deep-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, RoleSystem, gotReq.Messages[0].Role)
}

func TestCompleteJSONStripsFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("```json\n{\"answer\": 42}\n```")))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("k", WithBaseURL(srv.URL), WithRetry(noRetry()))

	var out struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, p.CompleteJSON(context.Background(), Request{Tier: TierFast}, &out))
	assert.Equal(t, 42, out.Answer)
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("k", WithBaseURL(srv.URL), WithRetry(noRetry()))

	_, err := p.Complete(context.Background(), Request{Tier: TierFast})
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ProviderRateLimited, pe.Kind)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCompleteRetriesTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(completionBody("recovered")))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("k", WithBaseURL(srv.URL),
		WithRetry(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))

	resp, err := p.Complete(context.Background(), Request{Tier: TierFast})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("k", WithBaseURL(srv.URL),
		WithTimeout(20*time.Millisecond), WithRetry(noRetry()))

	_, err := p.Complete(context.Background(), Request{Tier: TierFast})
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ProviderTimeout, pe.Kind)
}

func TestCompleteMalformedNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("k", WithBaseURL(srv.URL),
		WithRetry(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}))

	_, err := p.Complete(context.Background(), Request{Tier: TierFast})
	var pe *apperrors.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, apperrors.ProviderMalformedOutput, pe.Kind)
	assert.Equal(t, 1, attempts, "deterministic failures are not retried")
	assert.False(t, apperrors.IsRetryable(err))
}

func TestCompleteJSONMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("this is not json at all")))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("k", WithBaseURL(srv.URL), WithRetry(noRetry()))

	var out map[string]any
	err := p.CompleteJSON(context.Background(), Request{Tier: TierFast}, &out)
	var pe *apperrors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, apperrors.ProviderMalformedOutput, pe.Kind)
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, StripFences(in))
	}
}
