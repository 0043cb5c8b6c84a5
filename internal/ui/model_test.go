package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/longkey1/llmchat/internal/kv"
	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/longkey1/llmchat/internal/llmchat/conversation"
	"github.com/longkey1/llmchat/internal/llmchat/history"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	body string
}

func (c stubClient) StreamChat(ctx context.Context, messages []llmchat.Message) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(c.body)), nil
}

func (c stubClient) GenerateTitle(ctx context.Context, userMessage, aiResponse string) (string, error) {
	return "Arithmetic", nil
}

type downClient struct{}

func (downClient) StreamChat(ctx context.Context, messages []llmchat.Message) (io.ReadCloser, error) {
	return nil, errors.New("connection refused")
}

func (downClient) GenerateTitle(ctx context.Context, userMessage, aiResponse string) (string, error) {
	return "", errors.New("connection refused")
}

func newTestModel(t *testing.T) (*Model, *conversation.Controller, *history.Store) {
	t.Helper()
	body := `data: {"status":"processing","data":"4"}` + "\n\n" +
		`data: {"status":"complete","data":"Stream finished"}` + "\n\n"
	return newTestModelWithClient(t, stubClient{body: body})
}

func newTestModelWithClient(t *testing.T, client llmchat.Client) (*Model, *conversation.Controller, *history.Store) {
	t.Helper()
	slot, err := kv.NewFileStore(afero.NewMemMapFs(), "/history")
	require.NoError(t, err)
	store := history.NewStore(slot, nil)

	ctrl := conversation.NewController(store, client, nil)
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.Init())

	m := NewModel(ctrl, store, nil)
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, ctrl, store
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// pump feeds controller events into the model until nothing is outstanding
func pump(t *testing.T, m *Model, ctrl *conversation.Controller) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for ctrl.Busy() {
		select {
		case ev := <-ctrl.Events():
			m.Update(eventMsg{ev})
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestModel_SendMessage(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	typeText(m, "2+2?")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, ctrl.State().Loading)
	assert.Equal(t, "", m.input.Value())

	pump(t, m, ctrl)

	state := ctrl.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, "4", state.Messages[2].Content)
	assert.Equal(t, "Arithmetic", state.Title)

	view := m.View()
	assert.Contains(t, view, "2+2?")
	assert.Contains(t, view, "Arithmetic")
	assert.NotContains(t, view, llmchat.DefaultSystemPrompt)
}

func TestModel_EmptyInputIgnored(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, ctrl.State().Loading)
	assert.Empty(t, m.status)
}

func TestModel_NewConversation(t *testing.T) {
	m, ctrl, store := newTestModel(t)
	first := ctrl.State().ChatID

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.NotEqual(t, first, ctrl.State().ChatID)
	assert.Len(t, m.conversations, 2)
	assert.Len(t, store.Load(), 2)
}

func TestModel_SidebarDeleteNeedsConfirmation(t *testing.T) {
	m, ctrl, store := newTestModel(t)
	only := ctrl.State().ChatID

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusSidebar, m.focus)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	assert.Equal(t, only, ctrl.State().ChatID)
	assert.Contains(t, m.status, "Press d again")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	assert.NotEqual(t, only, ctrl.State().ChatID)
	convs := store.Load()
	require.Len(t, convs, 1)
	assert.Equal(t, ctrl.State().ChatID, convs[0].ID)
}

func TestModel_SidebarRename(t *testing.T) {
	m, ctrl, store := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.Equal(t, focusRename, m.focus)

	m.rename.SetValue("Renamed")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, focusSidebar, m.focus)
	assert.Equal(t, "Renamed", ctrl.State().Title)
	stored, err := store.Find(ctrl.State().ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Title)
}

func TestModel_SidebarSelect(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	first := ctrl.State().ChatID
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	require.NotEqual(t, first, ctrl.State().ChatID)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, first, ctrl.State().ChatID)
	assert.Equal(t, focusInput, m.focus)
}

func TestModel_HistoryChangeReloads(t *testing.T) {
	m, _, store := newTestModel(t)

	_, err := store.Prepend(llmchat.NewConversation("", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	select {
	case <-m.changes:
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
	m.Update(historyChangedMsg{})
	assert.Len(t, m.conversations, 2)
}

func TestRenderMessages(t *testing.T) {
	out := renderMessages([]llmchat.Message{
		{Role: llmchat.RoleSystem, Content: "hidden system"},
		{Role: llmchat.RoleUser, Content: "Hi"},
		{Role: llmchat.RoleAssistant, Content: "Hel", IsStreaming: true},
	}, 40)

	assert.NotContains(t, out, "hidden system")
	assert.Contains(t, out, "Hi")
	assert.Contains(t, out, "Hel"+streamingCursor)
}

func TestModel_ReplyErrorShownInStatus(t *testing.T) {
	m, ctrl, _ := newTestModelWithClient(t, downClient{})

	typeText(m, "Hello")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	pump(t, m, ctrl)

	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "connection refused")
}

func TestModel_StaleErrorNotShown(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	// no reply is in flight, so the controller drops the event
	m.Update(eventMsg{conversation.Event{
		Kind:    conversation.EventError,
		ChatID:  ctrl.State().ChatID,
		Content: "late",
		Err:     errors.New("abandoned generation"),
	}})

	assert.False(t, m.statusErr)
	assert.NotContains(t, m.status, "abandoned generation")
	assert.NotContains(t, m.View(), "late")
}
