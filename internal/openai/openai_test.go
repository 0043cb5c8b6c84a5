package openai

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
	model   string
}

func (c testConfig) GetOpenAIBaseURL() string        { return c.baseURL }
func (c testConfig) GetOpenAIToken() (string, error) { return "test-token", nil }
func (c testConfig) GetOpenAIModel() string          { return c.model }

func newUpstream(t *testing.T, fragments []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)

		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Simple Math Question"},"finish_reason":"stop"}]}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestProvider_StreamCompletion(t *testing.T) {
	upstream := newUpstream(t, []string{"4", " is"})
	defer upstream.Close()

	p, err := NewProvider(testConfig{baseURL: upstream.URL, model: "test-model"})
	require.NoError(t, err)

	var got []string
	err = p.StreamCompletion(context.Background(), []llmchat.Message{{Role: llmchat.RoleUser, Content: "2+2?"}}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", " is"}, got)
}

func TestProvider_Complete(t *testing.T) {
	upstream := newUpstream(t, nil)
	defer upstream.Close()

	p, err := NewProvider(testConfig{baseURL: upstream.URL, model: "test-model"})
	require.NoError(t, err)

	title, err := p.Complete(context.Background(), []llmchat.Message{{Role: llmchat.RoleUser, Content: "title?"}}, 20, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "Simple Math Question", title)
}

func TestNewProvider_DefaultModel(t *testing.T) {
	p, err := NewProvider(testConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.Model())
}
