// Package llmchat provides the core types shared by the llmchat client.
// Conversations and messages are defined here; storage, streaming and
// orchestration live in the sub-packages.
package llmchat

import (
	"context"
	"io"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	// DefaultSystemPrompt is the system message every new conversation starts with
	DefaultSystemPrompt = "You are a helpful assistant."

	// DefaultTitle is the title of a conversation that has not been named yet
	DefaultTitle = "New Chat"

	// fallbackTitleLength is the number of characters kept by FallbackTitle
	fallbackTitleLength = 30
)

// Conversation is a persisted chat history record
type Conversation struct {
	ID        string    `json:"id"`        // Creation time in milliseconds, as a string
	Title     string    `json:"title"`     // Display title
	Messages  []Message `json:"messages"`  // Ordered conversation
	CreatedAt int64     `json:"createdAt"` // Unix milliseconds
}

// NewConversation creates a conversation holding a single system message.
// The ID is derived from now; callers that need uniqueness within a collection
// should use UniqueID.
func NewConversation(systemPrompt string, now time.Time) Conversation {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	ms := now.UnixMilli()
	return Conversation{
		ID:        strconv.FormatInt(ms, 10),
		Title:     DefaultTitle,
		Messages:  []Message{{Role: RoleSystem, Content: systemPrompt}},
		CreatedAt: ms,
	}
}

// UniqueID returns id if taken reports false for it, otherwise the next
// larger numeric id that is free. Non-numeric ids get a numeric suffix.
func UniqueID(id string, taken func(string) bool) string {
	if !taken(id) {
		return id
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		for i := 1; ; i++ {
			candidate := id + "-" + strconv.Itoa(i)
			if !taken(candidate) {
				return candidate
			}
		}
	}
	for {
		n++
		candidate := strconv.FormatInt(n, 10)
		if !taken(candidate) {
			return candidate
		}
	}
}

// CreatedTime returns CreatedAt as a time.Time
func (c *Conversation) CreatedTime() time.Time {
	return time.UnixMilli(c.CreatedAt)
}

// GetDisplayName returns the title, or the ID if the title is empty
func (c *Conversation) GetDisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}

// MessageCount returns the number of user and assistant messages
func (c *Conversation) MessageCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Role != RoleSystem {
			n++
		}
	}
	return n
}

// Client defines the interface of the remote assistant service.
//
// Example usage:
//
//	client := assistant.NewClient("http://localhost:8000")
//	body, err := client.StreamChat(ctx, messages)
//	title, err := client.GenerateTitle(ctx, "Hi", "Hello!")
type Client interface {
	// StreamChat posts the conversation and returns the event stream body.
	// The caller must close the returned reader.
	StreamChat(ctx context.Context, messages []Message) (io.ReadCloser, error)

	// GenerateTitle asks the service for a short title for a conversation.
	GenerateTitle(ctx context.Context, userMessage, aiResponse string) (string, error)
}

// FallbackTitle derives a title from the first user message.
// Messages longer than 30 characters are cut and suffixed with "...".
func FallbackTitle(userMessage string) string {
	if utf8.RuneCountInString(userMessage) <= fallbackTitleLength {
		return userMessage
	}
	runes := []rune(userMessage)
	return string(runes[:fallbackTitleLength]) + "..."
}
