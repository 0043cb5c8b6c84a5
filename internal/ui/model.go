// Package ui implements the full-screen chat client on bubbletea.
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/longkey1/llmchat/internal/llmchat/conversation"
	"github.com/longkey1/llmchat/internal/llmchat/history"
	"go.uber.org/zap"
)

type focus int

const (
	focusInput focus = iota
	focusSidebar
	focusRename
)

// eventMsg carries background work results into the update loop
type eventMsg struct{ ev conversation.Event }

// historyChangedMsg reports that the stored history changed
type historyChangedMsg struct{}

// Subscriber is the change notification part of the history store
type Subscriber interface {
	Subscribe(fn history.Listener) func()
}

// Model is the bubbletea model of the chat screen
type Model struct {
	ctrl   *conversation.Controller
	logger *zap.Logger
	keys   KeyMap
	now    func() time.Time

	conversations []llmchat.Conversation
	cursor        int
	pendingDelete string

	changes     chan struct{}
	unsubscribe func()

	viewport viewport.Model
	input    textinput.Model
	rename   textinput.Model
	help     help.Model
	focus    focus

	status    string
	statusErr bool
	width     int
	height    int
	ready     bool
}

// NewModel creates the chat screen. ctrl must already be initialized.
// Changes announced by history refresh the conversation list.
func NewModel(ctrl *conversation.Controller, history Subscriber, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}

	input := textinput.New()
	input.Placeholder = "Send a message..."
	input.Prompt = "> "
	input.Focus()

	rename := textinput.New()
	rename.Prompt = "Title: "
	rename.CharLimit = 100

	m := &Model{
		ctrl:     ctrl,
		logger:   logger,
		keys:     DefaultKeyMap(),
		now:      time.Now,
		changes:  make(chan struct{}, 1),
		viewport: viewport.New(80, 20),
		input:    input,
		rename:   rename,
		help:     help.New(),
	}
	if history != nil {
		// the store calls back on the writer's goroutine; never block it
		m.unsubscribe = history.Subscribe(func() {
			select {
			case m.changes <- struct{}{}:
			default:
			}
		})
	}
	m.reloadConversations()
	return m
}

// Close stops listening for history changes
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent(), m.waitForChange())
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.ctrl.Events()
	return func() tea.Msg {
		return eventMsg{<-events}
	}
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return historyChangedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.refreshMessages()
		return m, nil

	case eventMsg:
		applied, err := m.ctrl.Handle(msg.ev)
		if err != nil {
			m.setError(err)
		}
		if applied && msg.ev.Kind == conversation.EventError {
			m.setError(msg.ev.Err)
		}
		m.refreshMessages()
		return m, m.waitForEvent()

	case historyChangedMsg:
		m.reloadConversations()
		return m, m.waitForChange()

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.focus {
		case focusSidebar:
			return m, m.updateSidebar(msg)
		case focusRename:
			return m, m.updateRename(msg)
		default:
			return m, m.updateInput(msg)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Send):
		text := m.input.Value()
		if err := m.ctrl.Submit(text); err != nil {
			if errors.Is(err, conversation.ErrEmptyMessage) {
				return nil
			}
			m.setError(err)
			return nil
		}
		m.input.Reset()
		m.setStatus("")
		m.refreshMessages()
		return nil

	case key.Matches(msg, m.keys.Stop):
		if m.ctrl.Stop() {
			m.setStatus("Generation stopped")
			m.refreshMessages()
		}
		return nil

	case key.Matches(msg, m.keys.New):
		m.newConversation()
		return nil

	case key.Matches(msg, m.keys.Focus):
		m.focus = focusSidebar
		m.input.Blur()
		m.cursor = m.activeIndex()
		return nil

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) updateSidebar(msg tea.KeyMsg) tea.Cmd {
	deleting := m.pendingDelete
	m.pendingDelete = ""

	switch {
	case key.Matches(msg, m.keys.Focus, m.keys.Stop):
		m.focusInput()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Select):
		if conv, ok := m.selected(); ok {
			if err := m.ctrl.Select(conv.ID); err != nil {
				m.setError(err)
				return nil
			}
			m.setStatus("")
			m.refreshMessages()
			m.focusInput()
		}

	case key.Matches(msg, m.keys.Delete):
		conv, ok := m.selected()
		if !ok {
			return nil
		}
		if deleting != conv.ID {
			m.pendingDelete = conv.ID
			m.setStatus(fmt.Sprintf("Press d again to delete %q", conv.GetDisplayName()))
			return nil
		}
		if err := m.ctrl.Delete(conv.ID); err != nil {
			m.setError(err)
			return nil
		}
		m.setStatus("Conversation deleted")
		m.reloadConversations()
		m.refreshMessages()

	case key.Matches(msg, m.keys.Rename):
		if conv, ok := m.selected(); ok {
			m.focus = focusRename
			m.rename.SetValue(conv.Title)
			m.rename.CursorEnd()
			m.rename.Focus()
		}

	case key.Matches(msg, m.keys.New):
		m.newConversation()
	}
	return nil
}

func (m *Model) updateRename(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Stop):
		m.rename.Blur()
		m.focus = focusSidebar
		return nil

	case key.Matches(msg, m.keys.Send):
		conv, ok := m.selected()
		if ok {
			if err := m.ctrl.Rename(conv.ID, m.rename.Value()); err != nil {
				if errors.Is(err, conversation.ErrEmptyTitle) {
					// empty titles are ignored and keep the edit open
					return nil
				}
				m.setError(err)
			}
		}
		m.rename.Blur()
		m.focus = focusSidebar
		m.reloadConversations()
		return nil
	}

	var cmd tea.Cmd
	m.rename, cmd = m.rename.Update(msg)
	return cmd
}

func (m *Model) newConversation() {
	if _, err := m.ctrl.Create(""); err != nil {
		m.setError(err)
		return
	}
	m.setStatus("")
	m.reloadConversations()
	m.refreshMessages()
	m.focusInput()
}

func (m *Model) focusInput() {
	m.focus = focusInput
	m.rename.Blur()
	m.input.Focus()
}

func (m *Model) selected() (llmchat.Conversation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.conversations) {
		return llmchat.Conversation{}, false
	}
	return m.conversations[m.cursor], true
}

func (m *Model) activeIndex() int {
	active := m.ctrl.State().ChatID
	for i, conv := range m.conversations {
		if conv.ID == active {
			return i
		}
	}
	return 0
}

func (m *Model) reloadConversations() {
	m.conversations = m.ctrl.Conversations()
	if m.cursor >= len(m.conversations) {
		m.cursor = len(m.conversations) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(err error) {
	if err == nil {
		return
	}
	m.logger.Warn("UI action failed", zap.Error(err))
	m.status = err.Error()
	m.statusErr = true
}

func (m *Model) sidebarWidth() int {
	w := m.width / 4
	if w < minSidebarWidth {
		w = minSidebarWidth
	}
	if w > maxSidebarWidth {
		w = maxSidebarWidth
	}
	return w
}

func (m *Model) mainWidth() int {
	// sidebar border and padding
	w := m.width - m.sidebarWidth() - 2
	if w < 10 {
		w = 10
	}
	return w
}

func (m *Model) layout() {
	w := m.mainWidth()
	// title, input box (3 lines), status and help lines
	h := m.height - 6
	if h < 1 {
		h = 1
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 4 - len(m.input.Prompt)
	m.rename.Width = m.sidebarWidth() - len(m.rename.Prompt) - 1
	m.help.Width = w
}

func (m *Model) refreshMessages() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderMessages(m.ctrl.State().Messages, m.viewport.Width))
	if atBottom || m.ctrl.State().Loading {
		m.viewport.GotoBottom()
	}
}

func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.viewSidebar(), m.viewMain())
}

func (m *Model) viewSidebar() string {
	width := m.sidebarWidth()
	active := m.ctrl.State().ChatID
	now := m.now()

	var b strings.Builder
	b.WriteString(titleStyle.Render("History"))
	b.WriteString("\n")

	// two lines per conversation below the header
	visible := (m.height - 2) / 2
	start := 0
	if m.cursor >= visible && visible > 0 {
		start = m.cursor - visible + 1
	}

	for i := start; i < len(m.conversations) && i-start < visible; i++ {
		conv := m.conversations[i]
		title := padRight(truncate(conv.GetDisplayName(), width-2), width-2)

		style := itemStyle
		if conv.ID == active {
			style = activeItemStyle
		}
		if m.focus != focusInput && i == m.cursor {
			style = selectedItemStyle
		}

		marker := "  "
		if conv.ID == active {
			marker = "● "
		}
		if m.focus == focusRename && i == m.cursor {
			b.WriteString(m.rename.View())
		} else {
			b.WriteString(marker + style.Render(title))
		}
		b.WriteString("\n  ")
		b.WriteString(dateStyle.Render(FormatDate(conv.CreatedTime(), now)))
		b.WriteString("\n")
	}

	s := sidebarStyle
	if m.focus != focusInput {
		s = sidebarFocusedStyle
	}
	return s.Width(width).Height(m.height).Render(b.String())
}

func (m *Model) viewMain() string {
	state := m.ctrl.State()
	width := m.mainWidth()

	title := state.Title
	if title == "" {
		title = llmchat.DefaultTitle
	}
	header := titleStyle.Render(truncate(title, width-2))

	var status string
	switch {
	case m.status != "" && m.statusErr:
		status = errorStyle.Render(truncate(m.status, width))
	case m.status != "":
		status = statusStyle.Render(truncate(m.status, width))
	case state.Loading:
		status = statusStyle.Render("Generating... (esc to stop)")
	}

	var keys help.KeyMap = inputHelp{m.keys}
	if m.focus != focusInput {
		keys = sidebarHelp{m.keys}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		inputStyle.Width(width-2).Render(m.input.View()),
		status,
		m.help.View(keys),
	)
}

func renderMessages(messages []llmchat.Message, width int) string {
	if width < 4 {
		width = 4
	}
	body := lipgloss.NewStyle().Width(width - 2).PaddingLeft(2)

	var parts []string
	for _, msg := range messages {
		var label string
		switch msg.Role {
		case llmchat.RoleUser:
			label = userLabel
		case llmchat.RoleAssistant:
			label = assistantLabel
		default:
			continue
		}

		content := msg.Content
		if msg.IsStreaming {
			content += streamingCursor
		}
		parts = append(parts, label+"\n"+body.Render(content))
	}
	if len(parts) == 0 {
		return statusStyle.Render("Start the conversation by typing a message below.")
	}
	return strings.Join(parts, "\n\n")
}
