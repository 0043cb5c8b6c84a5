// Package anthropic adapts Anthropic's Messages API to the assistant
// server's Completer interface.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/longkey1/llmchat/internal/llmchat"
)

const (
	ProviderName     = "anthropic"
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-3-5-sonnet-20241022"
	AnthropicVersion = "2023-06-01"

	defaultMaxTokens = 4096
)

// MessagesAPIRequest represents the request body for Anthropic's Messages API
type MessagesAPIRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"` // System prompt (optional)
	Messages    []MessageInput `json:"messages"`
	Temperature *float32       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// MessageInput represents a message in the conversation
type MessageInput struct {
	Role    string    `json:"role"`    // "user" or "assistant"
	Content []Content `json:"content"` // Array of content blocks
}

// Content represents a content block
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessagesAPIResponse represents the response from Anthropic's Messages API
type MessagesAPIResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Content    []Content `json:"content"`
	Model      string    `json:"model"`
	StopReason string    `json:"stop_reason"`
	Error      *APIError `json:"error,omitempty"`
}

// StreamEvent is the data of one server-sent event of a streamed response
type StreamEvent struct {
	Type  string    `json:"type"` // "content_block_delta", "message_stop", "error", ...
	Delta *Delta    `json:"delta,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// Delta is the incremental content of a content_block_delta event
type Delta struct {
	Type string `json:"type"` // "text_delta"
	Text string `json:"text,omitempty"`
}

// APIError represents an error in the API response
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%s]: %s", e.Type, e.Message)
}

// Config defines the configuration interface for the Anthropic provider
type Config interface {
	GetAnthropicBaseURL() string
	GetAnthropicToken() (string, error)
	GetAnthropicModel() string
}

// Provider implements assistant.Completer for Anthropic
type Provider struct {
	baseURL    string
	token      string
	model      string
	httpClient *http.Client
}

// NewProvider creates a new Anthropic provider instance
func NewProvider(config Config) (*Provider, error) {
	token, err := config.GetAnthropicToken()
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(config.GetAnthropicBaseURL(), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := config.GetAnthropicModel()
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		baseURL:    baseURL,
		token:      token,
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

// Model returns the model requests are sent to
func (p *Provider) Model() string {
	return p.model
}

// StreamCompletion streams a reply and calls emit for each text fragment
func (p *Provider) StreamCompletion(ctx context.Context, messages []llmchat.Message, emit func(string) error) error {
	reqBody := p.newRequest(messages, defaultMaxTokens)
	reqBody.Stream = true

	resp, err := p.post(ctx, reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// "event:" lines repeat the type carried in the data
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
			return fmt.Errorf("failed to parse stream event: %v", err)
		}

		switch ev.Type {
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" {
				if err := emit(ev.Delta.Text); err != nil {
					return err
				}
			}
		case "message_stop":
			return nil
		case "error":
			if ev.Error != nil {
				return ev.Error
			}
			return fmt.Errorf("stream error")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error receiving stream: %w", err)
	}
	return nil
}

// Complete returns a single non-streamed reply
func (p *Provider) Complete(ctx context.Context, messages []llmchat.Message, maxTokens int, temperature float32) (string, error) {
	reqBody := p.newRequest(messages, maxTokens)
	reqBody.Temperature = &temperature

	resp, err := p.post(ctx, reqBody)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result MessagesAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse API response: %v", err)
	}
	if result.Error != nil {
		return "", result.Error
	}

	var text strings.Builder
	for _, content := range result.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text content in response")
	}
	return text.String(), nil
}

// newRequest moves system messages into the system field,
// which the Messages API takes separately
func (p *Provider) newRequest(messages []llmchat.Message, maxTokens int) MessagesAPIRequest {
	var system []string
	input := make([]MessageInput, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llmchat.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		input = append(input, MessageInput{
			Role:    msg.Role,
			Content: []Content{{Type: "text", Text: msg.Content}},
		})
	}

	return MessagesAPIRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    strings.Join(system, "\n\n"),
		Messages:  input,
	}
}

func (p *Provider) post(ctx context.Context, reqBody MessagesAPIRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.token)
	req.Header.Set("anthropic-version", AnthropicVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		var errResp MessagesAPIResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("%w (HTTP %d)", errResp.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("API request failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
