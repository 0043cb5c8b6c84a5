package llmchat

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	Role        string `json:"role"`                  // "system", "user" or "assistant"
	Content     string `json:"content"`               // Message content
	IsStreaming bool   `json:"isStreaming,omitempty"` // Set while the assistant reply is still arriving
}

// AppendMessage returns a new slice with msg added after messages.
// The input slice is never modified.
func AppendMessage(messages []Message, msg Message) []Message {
	out := make([]Message, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, msg)
}

// ReplaceLast returns a copy of messages whose last element has the given content.
// If streaming is non-nil the IsStreaming flag is replaced as well.
// An empty slice is returned unchanged.
func ReplaceLast(messages []Message, content string, streaming *bool) []Message {
	if len(messages) == 0 {
		return messages
	}
	out := CloneMessages(messages)
	last := &out[len(out)-1]
	last.Content = content
	if streaming != nil {
		last.IsStreaming = *streaming
	}
	return out
}

// CloneMessages returns a copy of messages that shares no backing array with the input
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// FirstContent returns the content of the first message with the given role
func FirstContent(messages []Message, role string) string {
	for _, msg := range messages {
		if msg.Role == role {
			return msg.Content
		}
	}
	return ""
}
