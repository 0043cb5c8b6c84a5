package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetAnthropicBaseURL() string        { return c.baseURL }
func (c testConfig) GetAnthropicToken() (string, error) { return "test-key", nil }
func (c testConfig) GetAnthropicModel() string          { return "" }

var conversation = []llmchat.Message{
	{Role: llmchat.RoleSystem, Content: "Be brief."},
	{Role: llmchat.RoleUser, Content: "2+2?"},
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, req MessagesAPIRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, AnthropicVersion, r.Header.Get("anthropic-version"))

		var req MessagesAPIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req)
	}))
}

func TestProvider_StreamCompletion(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, req MessagesAPIRequest) {
		assert.True(t, req.Stream)
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, "Be brief.", req.System)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		for _, text := range []string{"4", " is"} {
			fmt.Fprintf(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":%q}}\n\n", text)
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	})
	defer upstream.Close()

	p, err := NewProvider(testConfig{baseURL: upstream.URL})
	require.NoError(t, err)

	var got []string
	err = p.StreamCompletion(context.Background(), conversation, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", " is"}, got)
}

func TestProvider_StreamCompletionError(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, req MessagesAPIRequest) {
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	})
	defer upstream.Close()

	p, err := NewProvider(testConfig{baseURL: upstream.URL})
	require.NoError(t, err)

	err = p.StreamCompletion(context.Background(), conversation, func(string) error { return nil })
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "overloaded_error", apiErr.Type)
}

func TestProvider_Complete(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, req MessagesAPIRequest) {
		assert.False(t, req.Stream)
		assert.Equal(t, 20, req.MaxTokens)
		if assert.NotNil(t, req.Temperature) {
			assert.InDelta(t, 0.7, *req.Temperature, 0.001)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","content":[{"type":"text","text":"Simple Math"}]}`)
	})
	defer upstream.Close()

	p, err := NewProvider(testConfig{baseURL: upstream.URL})
	require.NoError(t, err)

	title, err := p.Complete(context.Background(), conversation, 20, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "Simple Math", title)
}

func TestProvider_HTTPError(t *testing.T) {
	upstream := newUpstream(t, func(w http.ResponseWriter, req MessagesAPIRequest) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})
	defer upstream.Close()

	p, err := NewProvider(testConfig{baseURL: upstream.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), conversation, 20, 0.7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid x-api-key")
	assert.Contains(t, err.Error(), "HTTP 401")
}
