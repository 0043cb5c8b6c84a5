package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/longkey1/llmchat/internal/llmchat/conversation"
	"go.uber.org/zap"
)

// Run shows the chat screen until the user quits or ctx is cancelled.
// A reply still being generated on exit is stopped and saved.
func Run(ctx context.Context, ctrl *conversation.Controller, history Subscriber, logger *zap.Logger) error {
	m := NewModel(ctrl, history, logger)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()

	if ctrl.Stop() {
		m.logger.Info("Stopped generation on exit")
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}
