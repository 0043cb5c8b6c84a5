package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/longkey1/llmchat/internal/llmchat/conversation"
	"github.com/longkey1/llmchat/internal/llmchat/prompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	promptName string
	argFlags   []string
	useEditor  bool
	chatRef    string
	newChat    bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message and stream the reply",
	Long: `Send a message to the assistant service and print the reply as it streams in.
The exchange is added to the most recent conversation in the history unless
--new or --chat is given. Press Ctrl+C to stop the reply; what was received so
far is kept and marked as stopped.

For the full-screen client, use 'llmchat start' instead.

If no message is provided as an argument, it reads from stdin.
If --editor flag is set, it opens the default editor (from EDITOR environment variable) to compose the message.

The prompt file should be in TOML format with the following structure:
system = "System prompt with optional {{key}} placeholders"
user = "User prompt with optional {{input}} placeholder"

A prompt with a system part always starts a new conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatRef != "" && newChat {
			return fmt.Errorf("cannot specify both --chat and --new")
		}
		if chatRef != "" && promptName != "" {
			return fmt.Errorf("cannot use --prompt with an existing conversation")
		}

		message, err := readMessage(args)
		if err != nil {
			return err
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		systemPrompt := ""
		if promptName != "" {
			rendered, err := prompt.NewLibrary(nil, a.cfg.PromptDirs).Render(promptName, message, argFlags)
			if err != nil {
				return fmt.Errorf("formatting message with prompt: %w", err)
			}
			message = rendered.User
			systemPrompt = rendered.System
		}

		ctrl, err := a.newController()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		switch {
		case newChat || systemPrompt != "":
			if _, err := ctrl.Create(systemPrompt); err != nil {
				return err
			}
		case chatRef != "":
			conv, err := a.store.Resolve(chatRef)
			if err != nil {
				return fmt.Errorf("finding conversation: %w", err)
			}
			if err := ctrl.Select(conv.ID); err != nil {
				return err
			}
		}

		if verbose {
			fmt.Fprintf(os.Stderr, "Conversation: %s\n", ctrl.State().ChatID)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := streamReply(ctx, ctrl, message, cmd.OutOrStdout()); err != nil {
			return err
		}

		if newChat || systemPrompt != "" {
			state := ctrl.State()
			fmt.Fprintf(os.Stderr, "\nConversation created: %s (%s)\n", state.ChatID, state.Title)
			fmt.Fprintf(os.Stderr, "\nNext time, use:\n  llmchat chat --chat %s \"your message\"\n", state.ChatID)
		}
		return nil
	},
}

// streamReply submits message and writes the reply to w as it arrives.
// Cancelling ctx stops the reply. It returns once the reply and the title
// of a new conversation are settled.
func streamReply(ctx context.Context, ctrl *conversation.Controller, message string, w io.Writer) error {
	if err := ctrl.Submit(message); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	printed := ""
	flush := func(content string) {
		if strings.HasPrefix(content, printed) {
			fmt.Fprint(w, content[len(printed):])
		} else {
			fmt.Fprint(w, "\n"+content)
		}
		printed = content
	}

	stop := func() {
		if ctrl.Stop() {
			fmt.Fprint(w, conversation.StopMarker)
		}
		// the title request is bounded by title_timeout
		ctx = context.Background()
	}

	var replyErr error
	for ctrl.Busy() {
		select {
		case ev := <-ctrl.Events():
			// events queued before the cancellation belong to the stopped reply
			if ctx.Err() != nil {
				stop()
			}
			applied, err := ctrl.Handle(ev)
			if err != nil {
				return fmt.Errorf("saving conversation: %w", err)
			}
			if !applied {
				continue
			}
			switch ev.Kind {
			case conversation.EventDelta, conversation.EventDone:
				flush(ev.Content)
			case conversation.EventError:
				flush(ev.Content)
				replyErr = ev.Err
			}
		case <-ctx.Done():
			stop()
		}
	}
	fmt.Fprintln(w)

	if replyErr != nil {
		return fmt.Errorf("chat request failed: %w", replyErr)
	}
	return nil
}

// readMessage takes the message from the arguments, the editor or stdin
func readMessage(args []string) (string, error) {
	var message string
	switch {
	case useEditor:
		m, err := getMessageFromEditor()
		if err != nil {
			return "", fmt.Errorf("getting message from editor: %w", err)
		}
		message = m
	case len(args) > 0:
		message = strings.Join(args, " ")
	default:
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return "", errors.New("no message given: pass it as an argument, pipe it to stdin or use --editor")
		}
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading from stdin: %w", err)
		}
		message = strings.TrimSpace(string(input))
	}

	if strings.TrimSpace(message) == "" {
		return "", conversation.ErrEmptyMessage
	}
	return message, nil
}

// getMessageFromEditor opens the default editor and returns the edited message
func getMessageFromEditor() (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", fmt.Errorf("EDITOR environment variable is not set")
	}

	// Create a temporary file
	tmpFile, err := os.CreateTemp("", "llmchat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %v", err)
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	// Open the editor
	cmd := exec.Command(editor, tmpFile.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to open editor: %v", err)
	}

	// Read the edited content
	content, err := os.ReadFile(tmpFile.Name())
	if err != nil {
		return "", fmt.Errorf("failed to read edited content: %v", err)
	}

	return strings.TrimSpace(string(content)), nil
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&promptName, "prompt", "p", "", "Name of the prompt template (without .toml extension)")
	chatCmd.Flags().StringArrayVar(&argFlags, "arg", []string{}, "Key-value pairs for prompt template (format: key:value)")
	chatCmd.Flags().BoolVarP(&useEditor, "editor", "e", false, "Use default editor (from EDITOR environment variable) to compose message")
	chatCmd.Flags().StringVarP(&chatRef, "chat", "c", "", "Conversation ID, or 'latest' for the most recent conversation")
	chatCmd.Flags().BoolVarP(&newChat, "new", "n", false, "Start a new conversation")
}
