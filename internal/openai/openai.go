// Package openai adapts an OpenAI-compatible chat completions API to the
// assistant server's Completer interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/longkey1/llmchat/internal/llmchat"
	openaiapi "github.com/sashabaranov/go-openai"
)

const (
	ProviderName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-3.5-turbo"
)

// Config defines the configuration interface for the OpenAI provider
type Config interface {
	GetOpenAIBaseURL() string
	GetOpenAIToken() (string, error)
	GetOpenAIModel() string
}

// Provider implements assistant.Completer with go-openai
type Provider struct {
	api   chatAPI
	model string
}

// chatAPI is the subset of the go-openai client the provider uses
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openaiapi.ChatCompletionRequest) (openaiapi.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openaiapi.ChatCompletionRequest) (*openaiapi.ChatCompletionStream, error)
}

// NewProvider creates a new OpenAI provider instance
func NewProvider(config Config) (*Provider, error) {
	token, err := config.GetOpenAIToken()
	if err != nil {
		return nil, err
	}

	clientConfig := openaiapi.DefaultConfig(token)
	if baseURL := config.GetOpenAIBaseURL(); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}

	model := config.GetOpenAIModel()
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		api:   openaiapi.NewClientWithConfig(clientConfig),
		model: model,
	}, nil
}

// Model returns the model requests are sent to
func (p *Provider) Model() string {
	return p.model
}

// StreamCompletion streams a chat completion and calls emit for each content fragment
func (p *Provider) StreamCompletion(ctx context.Context, messages []llmchat.Message, emit func(string) error) error {
	stream, err := p.api.CreateChatCompletionStream(ctx, openaiapi.ChatCompletionRequest{
		Model:    p.model,
		Messages: toAPIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("error creating stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error receiving stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if err := emit(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

// Complete returns a single non-streamed completion
func (p *Provider) Complete(ctx context.Context, messages []llmchat.Message, maxTokens int, temperature float32) (string, error) {
	resp, err := p.api.CreateChatCompletion(ctx, openaiapi.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toAPIMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toAPIMessages(msgs []llmchat.Message) []openaiapi.ChatCompletionMessage {
	res := make([]openaiapi.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, openaiapi.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return res
}
