// Package history persists the list of conversations in a single key-value slot
// and notifies subscribers whenever the list changes.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/longkey1/llmchat/internal/kv"
	"github.com/longkey1/llmchat/internal/llmchat"
	"go.uber.org/zap"
)

// SlotKey is the key the conversation list is stored under
const SlotKey = "chatHistory"

// ErrNotFound is returned when no conversation has the requested ID
var ErrNotFound = errors.New("conversation not found")

// Listener is called after the stored list changed
type Listener func()

// Store reads and writes the conversation list.
// Reads never fail: a missing or corrupted slot is an empty list.
type Store struct {
	slot   kv.Store
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store on top of slot
func NewStore(slot kv.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		slot:      slot,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Location returns the file the list is persisted in
func (s *Store) Location() string {
	return s.slot.Location(SlotKey)
}

// Load returns all conversations sorted by CreatedAt (newest first)
func (s *Store) Load() []llmchat.Conversation {
	data, err := s.slot.Get(SlotKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Error("Failed to load chat history", zap.Error(err))
		}
		return []llmchat.Conversation{}
	}

	var conversations []llmchat.Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		s.logger.Error("Failed to parse chat history", zap.Error(err))
		return []llmchat.Conversation{}
	}
	if conversations == nil {
		conversations = []llmchat.Conversation{}
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt > conversations[j].CreatedAt
	})
	return conversations
}

// Save replaces the stored list with conversations, in the given order
func (s *Store) Save(conversations []llmchat.Conversation) error {
	if conversations == nil {
		conversations = []llmchat.Conversation{}
	}
	data, err := json.Marshal(conversations)
	if err != nil {
		s.logger.Error("Failed to serialize chat history", zap.Error(err))
		return fmt.Errorf("failed to serialize chat history: %w", err)
	}
	if err := s.slot.Set(SlotKey, data); err != nil {
		s.logger.Error("Failed to save chat history", zap.Error(err))
		return fmt.Errorf("failed to save chat history: %w", err)
	}
	return nil
}

// Subscribe registers fn to be called on every change notification.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// NotifyChanged calls every subscribed listener
func (s *Store) NotifyChanged() {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Find returns the conversation with the given ID
func (s *Store) Find(id string) (*llmchat.Conversation, error) {
	for _, conv := range s.Load() {
		if conv.ID == id {
			return &conv, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Prepend inserts conv in front of the stored list.
// If the ID is already taken a free one is assigned; the stored record is returned.
func (s *Store) Prepend(conv llmchat.Conversation) (llmchat.Conversation, error) {
	current := s.Load()
	conv.ID = llmchat.UniqueID(conv.ID, func(id string) bool {
		return indexOf(current, id) != -1
	})

	updated := append([]llmchat.Conversation{conv}, current...)
	if err := s.Save(updated); err != nil {
		return conv, err
	}
	s.NotifyChanged()
	return conv, nil
}

// Remove deletes the conversation with the given ID and returns the remaining list
func (s *Store) Remove(id string) ([]llmchat.Conversation, error) {
	current := s.Load()
	idx := indexOf(current, id)
	if idx == -1 {
		return current, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := make([]llmchat.Conversation, 0, len(current)-1)
	updated = append(updated, current[:idx]...)
	updated = append(updated, current[idx+1:]...)
	if err := s.Save(updated); err != nil {
		return current, err
	}
	s.NotifyChanged()
	return updated, nil
}

// SetTitle updates the title of the conversation with the given ID
func (s *Store) SetTitle(id, title string) error {
	current := s.Load()
	idx := indexOf(current, id)
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	current[idx].Title = title
	if err := s.Save(current); err != nil {
		return err
	}
	s.NotifyChanged()
	return nil
}

// Upsert stores messages under id.
// An existing record keeps its title unless title is non-empty.
// A missing record is inserted in front with title, or the default title.
func (s *Store) Upsert(id string, messages []llmchat.Message, title string, now time.Time) error {
	current := s.Load()
	idx := indexOf(current, id)

	if idx != -1 {
		current[idx].Messages = llmchat.CloneMessages(messages)
		if title != "" {
			current[idx].Title = title
		}
	} else {
		if title == "" {
			title = llmchat.DefaultTitle
		}
		current = append([]llmchat.Conversation{{
			ID:        id,
			Title:     title,
			Messages:  llmchat.CloneMessages(messages),
			CreatedAt: now.UnixMilli(),
		}}, current...)
	}

	if err := s.Save(current); err != nil {
		return err
	}
	s.NotifyChanged()
	return nil
}

// ClearBefore deletes conversations created before t and returns how many were removed.
// A zero t deletes every conversation.
func (s *Store) ClearBefore(t time.Time) (int, error) {
	current := s.Load()
	kept := make([]llmchat.Conversation, 0, len(current))
	for _, conv := range current {
		if !t.IsZero() && !conv.CreatedTime().Before(t) {
			kept = append(kept, conv)
		}
	}

	removed := len(current) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.Save(kept); err != nil {
		return 0, err
	}
	s.NotifyChanged()
	return removed, nil
}

func indexOf(conversations []llmchat.Conversation, id string) int {
	for i, conv := range conversations {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

// Resolve finds a conversation by ID.
// The special reference "latest" returns the most recently created conversation.
func (s *Store) Resolve(ref string) (*llmchat.Conversation, error) {
	if ref == "latest" {
		conversations := s.Load()
		if len(conversations) == 0 {
			return nil, fmt.Errorf("%w: no conversations yet", ErrNotFound)
		}
		return &conversations[0], nil
	}
	return s.Find(ref)
}
