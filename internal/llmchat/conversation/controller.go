// Package conversation drives the submit, stream, stop and title flow of the
// active conversation on top of the history store.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/longkey1/llmchat/internal/llmchat/history"
	"github.com/longkey1/llmchat/internal/llmchat/stream"
	"go.uber.org/zap"
)

// StopMarker is appended to a reply the user stopped
const StopMarker = "\n[Generation stopped]"

const eventBufferSize = 64

var (
	// ErrBusy is returned by Submit while a reply is being generated
	ErrBusy = errors.New("a reply is still being generated")
	// ErrEmptyMessage is returned by Submit for blank input
	ErrEmptyMessage = errors.New("message is empty")
	// ErrEmptyTitle is returned by Rename for a blank title
	ErrEmptyTitle = errors.New("title is empty")
)

// Controller owns the conversation state.
//
// All methods except Events must be called from a single goroutine. Stream
// and title workers never touch the state; they post Events which the owner
// applies with Handle.
type Controller struct {
	store        *history.Store
	client       llmchat.Client
	logger       *zap.Logger
	systemPrompt string
	now          func() time.Time

	state  State
	gen    uint64
	cancel context.CancelFunc

	// chat IDs with a title request in flight
	titlePending map[string]bool

	events     chan Event
	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures a Controller
type Option func(*Controller)

// WithSystemPrompt sets the system message of conversations created without one
func WithSystemPrompt(prompt string) Option {
	return func(c *Controller) {
		c.systemPrompt = prompt
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller. Call Init before anything else.
func NewController(store *history.Store, client llmchat.Client, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:        store,
		client:       client,
		logger:       logger,
		systemPrompt: llmchat.DefaultSystemPrompt,
		now:          time.Now,
		titlePending: make(map[string]bool),
		events:       make(chan Event, eventBufferSize),
		root:         root,
		rootCancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the channel background work reports on
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns a snapshot of the active conversation
func (c *Controller) State() State {
	s := c.state
	s.Messages = llmchat.CloneMessages(c.state.Messages)
	return s
}

// Conversations returns the stored conversations, newest first
func (c *Controller) Conversations() []llmchat.Conversation {
	return c.store.Load()
}

// Busy reports whether a reply or a title request is still outstanding
func (c *Controller) Busy() bool {
	return c.state.Loading || len(c.titlePending) > 0
}

// Init activates the most recent conversation, creating one if there is none
func (c *Controller) Init() error {
	conversations := c.store.Load()
	if len(conversations) == 0 {
		_, err := c.Create("")
		return err
	}
	c.activate(conversations[0])
	return nil
}

// Create starts a new conversation and makes it active.
// An empty systemPrompt uses the controller's default.
func (c *Controller) Create(systemPrompt string) (llmchat.Conversation, error) {
	c.Stop()

	if systemPrompt == "" {
		systemPrompt = c.systemPrompt
	}
	conv, err := c.store.Prepend(llmchat.NewConversation(systemPrompt, c.now()))
	if err != nil {
		return conv, fmt.Errorf("creating conversation: %w", err)
	}
	c.logger.Debug("Conversation created", zap.String("id", conv.ID))
	c.activate(conv)
	return conv, nil
}

// Select makes the stored conversation with the given ID active
func (c *Controller) Select(id string) error {
	conv, err := c.store.Find(id)
	if err != nil {
		return err
	}
	c.Stop()
	c.activate(*conv)
	return nil
}

// Delete removes a conversation. Deleting the active one activates the
// newest remaining conversation, or a new one when none is left.
func (c *Controller) Delete(id string) error {
	active := id == c.state.ChatID
	if active {
		c.Stop()
	}

	remaining, err := c.store.Remove(id)
	if err != nil {
		return err
	}
	c.logger.Debug("Conversation deleted", zap.String("id", id))

	if !active {
		return nil
	}
	if len(remaining) == 0 {
		_, err := c.Create("")
		return err
	}
	c.activate(remaining[0])
	return nil
}

// Rename sets the title of a stored conversation
func (c *Controller) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if err := c.store.SetTitle(id, title); err != nil {
		return err
	}
	if id == c.state.ChatID {
		c.state.Title = title
	}
	return nil
}

// SaveCurrent persists the active conversation's messages.
// The stored title is only replaced when title is non-empty.
func (c *Controller) SaveCurrent(title string) error {
	if err := c.store.Upsert(c.state.ChatID, c.state.Messages, title, c.now()); err != nil {
		return fmt.Errorf("saving conversation %s: %w", c.state.ChatID, err)
	}
	if title != "" {
		c.state.Title = title
	}
	return nil
}

// Submit sends text as a user message and starts streaming the reply
func (c *Controller) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if c.state.Loading {
		return ErrBusy
	}

	request := llmchat.AppendMessage(c.state.Messages, llmchat.Message{Role: llmchat.RoleUser, Content: text})
	c.state.Messages = llmchat.AppendMessage(request, llmchat.Message{Role: llmchat.RoleAssistant, IsStreaming: true})
	c.state.Loading = true
	if countRole(request, llmchat.RoleUser) == 1 {
		c.state.NeedsTitle = true
	}

	persistErr := c.SaveCurrent("")

	c.cancelStream()
	c.gen++
	ctx, cancel := context.WithCancel(c.root)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runStream(ctx, c.gen, c.state.ChatID, request)

	return persistErr
}

// Stop aborts the reply being generated, marks it as stopped and persists it.
// It reports whether anything was stopped.
func (c *Controller) Stop() bool {
	if !c.state.Loading {
		return false
	}
	c.cancelStream()
	// events already queued for the aborted stream are stale from now on
	c.gen++

	content := ""
	if last, ok := c.state.LastMessage(); ok {
		content = last.Content
	}
	if err := c.finish(content + StopMarker); err != nil {
		c.logger.Error("Failed to save stopped reply", zap.Error(err))
	}
	c.logger.Debug("Generation stopped", zap.String("id", c.state.ChatID))
	return true
}

// Handle applies an event posted by background work. It reports whether the
// event was applied; stream events of a stopped, replaced or switched-away
// generation are dropped. Title events are always applied.
func (c *Controller) Handle(ev Event) (bool, error) {
	if ev.Kind == EventTitle {
		return true, c.applyTitle(ev)
	}

	if ev.gen != c.gen || ev.ChatID != c.state.ChatID || !c.state.Loading {
		c.logger.Debug("Ignoring stale stream event", zap.Stringer("kind", ev.Kind), zap.String("id", ev.ChatID))
		return false, nil
	}

	switch ev.Kind {
	case EventDelta:
		c.state.Messages = llmchat.ReplaceLast(c.state.Messages, ev.Content, nil)
		return true, nil
	case EventError:
		c.logger.Warn("Reply failed", zap.String("id", ev.ChatID), zap.Error(ev.Err))
	}

	c.cancelStream()
	return true, c.finish(ev.Content)
}

// Close cancels outstanding work and waits for the workers to exit
func (c *Controller) Close() {
	c.rootCancel()
	c.wg.Wait()
}

// finish finalizes the streaming reply with content, persists, and
// requests a title when the conversation is ready for one
func (c *Controller) finish(content string) error {
	streaming := false
	c.state.Messages = llmchat.ReplaceLast(c.state.Messages, content, &streaming)
	c.state.Loading = false

	err := c.SaveCurrent("")
	c.maybeGenerateTitle()
	return err
}

func (c *Controller) maybeGenerateTitle() {
	s := c.state
	if !s.NeedsTitle || s.Loading || len(s.Messages) < 3 || c.titlePending[s.ChatID] {
		return
	}
	userMessage := llmchat.FirstContent(s.Messages, llmchat.RoleUser)
	aiResponse := llmchat.FirstContent(s.Messages, llmchat.RoleAssistant)
	if userMessage == "" || aiResponse == "" {
		return
	}

	c.titlePending[s.ChatID] = true
	c.wg.Add(1)
	go c.runTitle(s.ChatID, userMessage, aiResponse)
}

func (c *Controller) applyTitle(ev Event) error {
	delete(c.titlePending, ev.ChatID)
	if ev.ChatID == c.state.ChatID {
		c.state.NeedsTitle = false
		c.state.Title = ev.Content
	}

	if ev.Err != nil {
		c.logger.Debug("Title generation failed, using fallback", zap.String("id", ev.ChatID), zap.Error(ev.Err))
	}
	if err := c.store.SetTitle(ev.ChatID, ev.Content); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			// deleted while the title was being generated
			return nil
		}
		return fmt.Errorf("saving title: %w", err)
	}
	return nil
}

func (c *Controller) runStream(ctx context.Context, gen uint64, chatID string, messages []llmchat.Message) {
	defer c.wg.Done()

	post := func(ev stream.Event) {
		out := Event{ChatID: chatID, Content: ev.Content, Err: ev.Err, gen: gen}
		switch ev.Kind {
		case stream.KindDelta:
			out.Kind = EventDelta
		case stream.KindDone:
			out.Kind = EventDone
		default:
			out.Kind = EventError
		}
		c.post(ctx, out)
	}

	body, err := c.client.StreamChat(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		post(stream.Event{Kind: stream.KindError, Content: stream.ErrorMarker, Err: err})
		return
	}
	defer body.Close()

	stream.Run(ctx, body, c.logger, post)
}

func (c *Controller) runTitle(chatID, userMessage, aiResponse string) {
	defer c.wg.Done()

	ev := Event{Kind: EventTitle, ChatID: chatID}
	title, err := c.client.GenerateTitle(c.root, userMessage, aiResponse)
	title = strings.TrimSpace(title)
	if err == nil && title == "" {
		err = errors.New("empty title")
	}
	if err != nil {
		title = llmchat.FallbackTitle(userMessage)
		ev.Err = err
	}
	ev.Content = title
	c.post(c.root, ev)
}

func (c *Controller) post(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Controller) cancelStream() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) activate(conv llmchat.Conversation) {
	c.state = State{
		ChatID:   conv.ID,
		Title:    conv.Title,
		Messages: llmchat.CloneMessages(conv.Messages),
	}
}

func countRole(messages []llmchat.Message, role string) int {
	n := 0
	for _, m := range messages {
		if m.Role == role {
			n++
		}
	}
	return n
}
