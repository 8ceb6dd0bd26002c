package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IliaW/name-check-worker/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(&config.LlmConfig{Provider: "openai"})
	require.ErrorIs(t, err, ErrNoAPIKey)

	p, err := NewProvider(&config.LlmConfig{Provider: "anthropic", ApiKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())

	_, err = NewProvider(&config.LlmConfig{Provider: "bard", ApiKey: "k"})
	require.Error(t, err)
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "gpt-test", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "json_object", gjson.GetBytes(body, "response_format.type").String())
		assert.Equal(t, "system", gjson.GetBytes(body, "messages.0.role").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,
			"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(&config.LlmConfig{ApiKey: "secret", BaseURL: srv.URL, MaxTokens: 256})
	got, err := p.Complete(context.Background(), "gpt-test", "sys", "user")

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
}

func TestClaudeProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "claude-test", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "sys", gjson.GetBytes(body, "system.0.text").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"{\"ok\":true}"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":3,"output_tokens":4}}`))
	}))
	defer srv.Close()

	p := NewClaudeProvider(&config.LlmConfig{ApiKey: "secret", BaseURL: srv.URL, MaxTokens: 256})
	got, err := p.Complete(context.Background(), "claude-test", "sys", "user")

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got)
}
