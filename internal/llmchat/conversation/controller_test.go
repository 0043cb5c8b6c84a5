package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/longkey1/llmchat/internal/kv"
	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/longkey1/llmchat/internal/llmchat/history"
	"github.com/longkey1/llmchat/internal/llmchat/stream"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(data string) string {
	return `data: {"status":"processing","data":"` + data + `"}` + "\n\n"
}

const finishedFrame = `data: {"status":"complete","data":"Stream finished"}` + "\n\n"

type fakeClient struct {
	mu sync.Mutex

	// body returned by StreamChat; nil means block until the context is done
	body      string
	streamErr error
	requests  [][]llmchat.Message

	title      string
	titleErr   error
	titleCalls int
}

func (f *fakeClient) StreamChat(ctx context.Context, messages []llmchat.Message) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, llmchat.CloneMessages(messages))
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.body != "" {
		return io.NopCloser(strings.NewReader(f.body)), nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte(frame("Hel")))
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
	}()
	return pr, nil
}

func (f *fakeClient) GenerateTitle(ctx context.Context, userMessage, aiResponse string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	return f.title, f.titleErr
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titleCalls
}

func newTestController(t *testing.T, client llmchat.Client) (*Controller, *history.Store) {
	t.Helper()
	slot, err := kv.NewFileStore(afero.NewMemMapFs(), "/history")
	require.NoError(t, err)
	store := history.NewStore(slot, nil)

	var tick int64 = 1000
	c := NewController(store, client, nil, WithClock(func() time.Time {
		tick++
		return time.UnixMilli(tick)
	}))
	t.Cleanup(c.Close)
	require.NoError(t, c.Init())
	return c, store
}

// drain applies events until nothing is outstanding
func drain(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for c.Busy() {
		select {
		case ev := <-c.Events():
			_, err := c.Handle(ev)
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
}

// waitFor applies events until one of the given kind has been handled
func waitFor(t *testing.T, c *Controller, kind EventKind) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			_, err := c.Handle(ev)
			require.NoError(t, err)
			if ev.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestController_InitCreatesConversation(t *testing.T) {
	c, store := newTestController(t, &fakeClient{})

	s := c.State()
	assert.NotEmpty(t, s.ChatID)
	assert.Equal(t, llmchat.DefaultTitle, s.Title)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, llmchat.RoleSystem, s.Messages[0].Role)
	assert.Len(t, store.Load(), 1)
}

func TestController_InitSelectsNewest(t *testing.T) {
	slot, err := kv.NewFileStore(afero.NewMemMapFs(), "/history")
	require.NoError(t, err)
	store := history.NewStore(slot, nil)
	require.NoError(t, store.Save([]llmchat.Conversation{
		{ID: "1", Title: "old", Messages: []llmchat.Message{{Role: llmchat.RoleSystem, Content: "s"}}, CreatedAt: 1},
		{ID: "2", Title: "new", Messages: []llmchat.Message{{Role: llmchat.RoleSystem, Content: "s"}}, CreatedAt: 2},
	}))

	c := NewController(store, &fakeClient{}, nil)
	defer c.Close()
	require.NoError(t, c.Init())

	assert.Equal(t, "2", c.State().ChatID)
	assert.Len(t, store.Load(), 2)
}

func TestController_SubmitStreamsReply(t *testing.T) {
	client := &fakeClient{body: frame("4") + frame(" is") + finishedFrame, title: "Simple Math"}
	c, store := newTestController(t, client)

	require.NoError(t, c.Submit("2+2?"))
	s := c.State()
	assert.True(t, s.Loading)
	assert.True(t, s.NeedsTitle)
	last, _ := s.LastMessage()
	assert.True(t, last.IsStreaming)

	drain(t, c)

	s = c.State()
	assert.False(t, s.Loading)
	assert.False(t, s.NeedsTitle)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, llmchat.Message{Role: llmchat.RoleAssistant, Content: "4 is"}, s.Messages[2])
	assert.Equal(t, "Simple Math", s.Title)

	stored, err := store.Find(s.ChatID)
	require.NoError(t, err)
	assert.Equal(t, s.Messages, stored.Messages)
	assert.Equal(t, "Simple Math", stored.Title)

	// the placeholder is never sent
	require.Len(t, client.requests, 1)
	assert.Len(t, client.requests[0], 2)
	assert.Equal(t, 1, client.calls())
}

func TestController_SubmitValidation(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{})

	assert.ErrorIs(t, c.Submit("   "), ErrEmptyMessage)

	require.NoError(t, c.Submit("first"))
	assert.ErrorIs(t, c.Submit("second"), ErrBusy)
	assert.Len(t, c.State().Messages, 3)
}

func TestController_StopAppendsMarkerOnce(t *testing.T) {
	c, store := newTestController(t, &fakeClient{title: "t"})

	require.NoError(t, c.Submit("Hi"))
	waitFor(t, c, EventDelta)

	assert.True(t, c.Stop())
	assert.False(t, c.Stop())

	s := c.State()
	assert.False(t, s.Loading)
	last, _ := s.LastMessage()
	assert.Equal(t, "Hel"+StopMarker, last.Content)
	assert.False(t, last.IsStreaming)
	assert.Equal(t, 1, strings.Count(last.Content, StopMarker))

	drain(t, c)
	stored, err := store.Find(s.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Hel"+StopMarker, stored.Messages[2].Content)
	assert.False(t, stored.Messages[2].IsStreaming)
}

func TestController_StreamErrorAppendsMarker(t *testing.T) {
	client := &fakeClient{streamErr: errors.New("connection refused"), titleErr: errors.New("down")}
	c, store := newTestController(t, client)

	require.NoError(t, c.Submit("Hi"))
	drain(t, c)

	s := c.State()
	assert.False(t, s.Loading)
	last, _ := s.LastMessage()
	assert.Equal(t, stream.ErrorMarker, last.Content)
	assert.False(t, last.IsStreaming)
	assert.Equal(t, "Hi", s.Title)

	stored, err := store.Find(s.ChatID)
	require.NoError(t, err)
	assert.Equal(t, stream.ErrorMarker, stored.Messages[2].Content)
}

func TestController_TitleFallbackOnFailure(t *testing.T) {
	long := strings.Repeat("x", 40)
	client := &fakeClient{body: frame("ok") + finishedFrame, titleErr: errors.New("boom")}
	c, store := newTestController(t, client)

	require.NoError(t, c.Submit(long))
	drain(t, c)

	want := strings.Repeat("x", 30) + "..."
	assert.Equal(t, want, c.State().Title)
	stored, err := store.Find(c.State().ChatID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Title)
}

func TestController_TitleRequestedAtMostOnce(t *testing.T) {
	client := &fakeClient{title: "Greeting"}
	c, _ := newTestController(t, client)

	c.state.Messages = []llmchat.Message{
		{Role: llmchat.RoleSystem, Content: "sys"},
		{Role: llmchat.RoleUser, Content: "Hi"},
		{Role: llmchat.RoleAssistant, Content: "Hello"},
	}
	c.state.NeedsTitle = true

	c.maybeGenerateTitle()
	c.maybeGenerateTitle()
	drain(t, c)
	c.maybeGenerateTitle()

	assert.Equal(t, 1, client.calls())
	assert.False(t, c.State().NeedsTitle)
}

func TestController_SecondTurnDoesNotRetitle(t *testing.T) {
	client := &fakeClient{body: frame("a") + finishedFrame, title: "First"}
	c, _ := newTestController(t, client)

	require.NoError(t, c.Submit("one"))
	drain(t, c)
	require.NoError(t, c.Submit("two"))
	drain(t, c)

	assert.Equal(t, 1, client.calls())
	assert.Len(t, c.State().Messages, 5)
}

func TestController_StaleEventsIgnored(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{})
	require.NoError(t, c.Submit("Hi"))
	waitFor(t, c, EventDelta)

	before := c.State()
	stale := []Event{
		{Kind: EventDone, ChatID: before.ChatID, Content: "old", gen: c.gen - 1},
		{Kind: EventDelta, ChatID: "other", Content: "other", gen: c.gen},
	}
	for _, ev := range stale {
		applied, err := c.Handle(ev)
		require.NoError(t, err)
		assert.False(t, applied, "%s event for %s", ev.Kind, ev.ChatID)
	}
	assert.Equal(t, before, c.State())

	applied, err := c.Handle(Event{Kind: EventDelta, ChatID: before.ChatID, Content: "Hello", gen: c.gen})
	require.NoError(t, err)
	assert.True(t, applied)

	c.Stop()
	for _, kind := range []EventKind{EventDelta, EventError} {
		applied, err := c.Handle(Event{Kind: kind, ChatID: before.ChatID, Content: "late", Err: errors.New("late"), gen: c.gen})
		require.NoError(t, err)
		assert.False(t, applied, "%s after stop", kind)
	}
	last, _ := c.State().LastMessage()
	assert.Equal(t, "Hello"+StopMarker, last.Content)
}

func TestController_DeleteOnlyConversation(t *testing.T) {
	c, store := newTestController(t, &fakeClient{})
	old := c.State().ChatID

	require.NoError(t, c.Delete(old))

	s := c.State()
	assert.NotEqual(t, old, s.ChatID)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, llmchat.RoleSystem, s.Messages[0].Role)
	convs := store.Load()
	require.Len(t, convs, 1)
	assert.Equal(t, s.ChatID, convs[0].ID)
}

func TestController_DeleteActiveSelectsNewestRemaining(t *testing.T) {
	c, store := newTestController(t, &fakeClient{})
	first := c.State().ChatID
	second, err := c.Create("")
	require.NoError(t, err)
	third, err := c.Create("")
	require.NoError(t, err)

	require.NoError(t, c.Delete(third.ID))
	assert.Equal(t, second.ID, c.State().ChatID)

	require.NoError(t, c.Delete(first))
	assert.Equal(t, second.ID, c.State().ChatID)
	assert.Len(t, store.Load(), 1)

	assert.ErrorIs(t, c.Delete("missing"), history.ErrNotFound)
}

func TestController_SelectStopsStream(t *testing.T) {
	c, store := newTestController(t, &fakeClient{title: "t"})
	first := c.State().ChatID
	_, err := c.Create("")
	require.NoError(t, err)
	streaming := c.State().ChatID

	require.NoError(t, c.Submit("Hi"))
	waitFor(t, c, EventDelta)
	require.NoError(t, c.Select(first))

	assert.Equal(t, first, c.State().ChatID)
	assert.False(t, c.State().Loading)

	drain(t, c)
	stored, err := store.Find(streaming)
	require.NoError(t, err)
	assert.Equal(t, "Hel"+StopMarker, stored.Messages[2].Content)
	assert.Equal(t, "t", stored.Title)
}

func TestController_Rename(t *testing.T) {
	c, store := newTestController(t, &fakeClient{})
	id := c.State().ChatID

	require.NoError(t, c.Rename(id, "  Renamed "))
	assert.Equal(t, "Renamed", c.State().Title)
	stored, err := store.Find(id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)

	assert.ErrorIs(t, c.Rename(id, " "), ErrEmptyTitle)
	assert.ErrorIs(t, c.Rename("missing", "x"), history.ErrNotFound)
}

func TestController_CreateUsesSystemPrompt(t *testing.T) {
	c, _ := newTestController(t, &fakeClient{})

	conv, err := c.Create("You are terse.")
	require.NoError(t, err)
	assert.Equal(t, "You are terse.", conv.Messages[0].Content)
	assert.Equal(t, conv.ID, c.State().ChatID)
}
