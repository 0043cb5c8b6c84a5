package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/longkey1/llmchat/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start [conversation-id]",
	Short: "Open the full-screen chat client",
	Long: `Open the full-screen chat client with the conversation history in a sidebar.

The most recent conversation is opened unless an ID (or "latest") is given.
Changes made to the history by other llmchat processes show up automatically
when the file storage backend is used.

Logs are written to the configured log_file while the client is running.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		ctrl, err := a.newController()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		if len(args) > 0 {
			conv, err := a.store.Resolve(args[0])
			if err != nil {
				return fmt.Errorf("finding conversation: %w", err)
			}
			if err := ctrl.Select(conv.ID); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
		defer stop()

		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() {
			if err := a.store.Watch(watchCtx); err != nil {
				a.logger.Warn("History watcher stopped", zap.Error(err))
			}
		}()

		a.logger.Info("Starting chat client", zap.String("base_url", a.cfg.BaseURL), zap.String("conversation", ctrl.State().ChatID))
		if err := ui.Run(ctx, ctrl, a.store, a.logger.Named("ui")); err != nil {
			return err
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Logs written to %s\n", a.cfg.LogFile)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
