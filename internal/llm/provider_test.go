package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/retry"
)

func TestNewSelectsProvider(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New(config.LLMConfig{Provider: "anthropic", APIKey: "k", Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = New(config.LLMConfig{Provider: "bard"})
	assert.Error(t, err)
}

func TestOpenAIGenerateResponse(t *testing.T) {
	var captured openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Front: What is Go?"}}]}`))
	}))
	defer srv.Close()

	p := newOpenAI(config.LLMConfig{
		Provider: "openai",
		APIKey:   "test-key",
		Model:    "gpt-4o-mini",
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
	})

	history := []Message{
		{Role: "user", Content: "make cards about Go"},
		{Role: "assistant", Content: "sure"},
	}
	out, err := p.GenerateResponse(context.Background(), "one more", history)
	require.NoError(t, err)
	assert.Equal(t, "Front: What is Go?", out)

	// history precedes the new prompt, oldest first
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "make cards about Go", captured.Messages[0].Content)
	assert.Equal(t, "one more", captured.Messages[2].Content)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
}

func TestOpenAIServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", Model: "m", BaseURL: srv.URL, Timeout: 2 * time.Second})
	_, err := p.GenerateResponse(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.True(t, retry.Transient(err))
}

func TestOpenAIAuthErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	p := newOpenAI(config.LLMConfig{APIKey: "k", Model: "m", BaseURL: srv.URL, Timeout: 2 * time.Second})
	_, err := p.GenerateResponse(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.False(t, retry.Transient(err))
}

func TestAnthropicGenerateResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Back: A programming language."}]}`))
	}))
	defer srv.Close()

	p := newAnthropic(config.LLMConfig{
		APIKey:  "test-key",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	})

	out, err := p.GenerateResponse(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Back: A programming language.", out)
}

func TestAnthropicRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newAnthropic(config.LLMConfig{APIKey: "k", Model: "m", BaseURL: srv.URL, Timeout: 2 * time.Second})
	_, err := p.GenerateResponse(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.True(t, retry.Transient(err))
}
