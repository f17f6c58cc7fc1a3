package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type capturedRequest struct {
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
	System    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"system"`
	Messages []capturedMessage `json:"messages"`
}

func TestAnthropicClientComplete(t *testing.T) {
	var got capturedRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, err := io.ReadAll(r.Body)
		if err == nil {
			_ = json.Unmarshal(body, &got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "Olá, tudo bem?"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`)
	}))
	defer srv.Close()

	c, err := newAnthropicClient("test-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		System: "Você é a Clara.",
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "oi"},
			{Role: RoleAssistant, Content: "Oi! Tudo certo?"},
			{Role: RoleUser, Content: "tudo sim"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "Olá, tudo bem?", resp.Content)
	assert.Equal(t, "claude-3-5-haiku-20241022", resp.Model)
	assert.Equal(t, 10, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)
	assert.Equal(t, "end_turn", resp.StopReason)

	assert.Equal(t, defaultAnthropicModel, got.Model)
	assert.Equal(t, int64(512), got.MaxTokens)
	require.Len(t, got.System, 1)
	assert.Equal(t, "Você é a Clara.", got.System[0].Text)
	require.Len(t, got.Messages, 3)
	roles := []string{got.Messages[0].Role, got.Messages[1].Role, got.Messages[2].Role}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles)
	require.Len(t, got.Messages[1].Content, 1)
	assert.Equal(t, "text", got.Messages[1].Content[0].Type)
	assert.Equal(t, "Oi! Tudo certo?", got.Messages[1].Content[0].Text)
}

func TestAnthropicClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	c, err := newAnthropicClient("test-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "oi"}},
	})
	assert.Error(t, err)
}
