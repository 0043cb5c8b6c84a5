package conversation

import "github.com/longkey1/llmchat/internal/llmchat"

// State is the in-memory view of the active conversation
type State struct {
	ChatID     string
	Title      string
	Messages   []llmchat.Message
	Loading    bool // a reply is being generated
	NeedsTitle bool // the first exchange has not been titled yet
}

// LastMessage returns the last message, or false for an empty conversation
func (s State) LastMessage() (llmchat.Message, bool) {
	if len(s.Messages) == 0 {
		return llmchat.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// EventKind tags the result of background work
type EventKind int

const (
	// EventDelta carries the reply accumulated so far
	EventDelta EventKind = iota
	// EventDone carries the complete reply
	EventDone
	// EventError carries the partial reply with the error marker appended
	EventError
	// EventTitle carries the generated or fallback title
	EventTitle
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	case EventTitle:
		return "title"
	default:
		return "unknown"
	}
}

// Event is posted by stream and title workers and applied with Controller.Handle.
//
// Content is the accumulated reply for stream events and the new title for
// EventTitle. Err is set for EventError, and for EventTitle when the fallback
// title was used.
type Event struct {
	Kind    EventKind
	ChatID  string
	Content string
	Err     error

	gen uint64
}
