// Package assistant implements both sides of the assistant service HTTP API:
// the client used by llmchat and a server that fronts an upstream LLM.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longkey1/llmchat/internal/llmchat"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the address of a locally running assistant service
	DefaultBaseURL = "http://localhost:8000"

	chatPath          = "/chat"
	generateTitlePath = "/generate-title"
	requestIDHeader   = "X-Request-Id"
)

// ErrNoTitle is returned when the title endpoint answers without a title
var ErrNoTitle = errors.New("no title in response")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP error! status: %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// ChatMessage is a message as sent on the wire
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// TitleRequest is the body of POST /generate-title
type TitleRequest struct {
	UserMessage string `json:"userMessage"`
	AIResponse  string `json:"aiResponse"`
}

// TitleResponse is the body returned by POST /generate-title
type TitleResponse struct {
	Title string `json:"title"`
}

// Client talks to the assistant service
type Client struct {
	baseURL      string
	httpClient   *http.Client
	titleTimeout time.Duration
	logger       *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTitleTimeout bounds title requests. Zero means no extra bound.
func WithTitleTimeout(d time.Duration) Option {
	return func(c *Client) { c.titleTimeout = d }
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// no overall timeout: streamed replies can take arbitrarily long
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ llmchat.Client = (*Client)(nil)

// StreamChat posts the conversation to /chat and returns the event stream.
// The request is aborted when ctx is cancelled.
func (c *Client) StreamChat(ctx context.Context, messages []llmchat.Message) (io.ReadCloser, error) {
	reqBody := ChatRequest{Messages: make([]ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		reqBody.Messages = append(reqBody.Messages, ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	req, err := c.newRequest(ctx, chatPath, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("Sending chat request",
		zap.String("request_id", req.Header.Get(requestIDHeader)),
		zap.Int("messages", len(reqBody.Messages)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("error reading response: empty body")
	}
	return resp.Body, nil
}

// GenerateTitle asks /generate-title for a title
func (c *Client) GenerateTitle(ctx context.Context, userMessage, aiResponse string) (string, error) {
	if c.titleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.titleTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, generateTitlePath, TitleRequest{
		UserMessage: userMessage,
		AIResponse:  aiResponse,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var result TitleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	title := strings.TrimSpace(result.Title)
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	return req, nil
}

// checkResponse closes the body and returns a StatusError for non-2xx responses
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
