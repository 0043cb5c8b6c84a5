package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/spf13/cobra"
)

var assumeYes bool

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the conversation history",
	Long: `Manage the conversation history including listing, viewing, renaming and deleting conversations.

Conversations are referred to by ID, or "latest" for the most recent one.`,
}

// historyListCmd represents the history list command
var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all conversations",
	Long:  `List all conversations, most recently created first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		conversations := a.store.Load()
		if len(conversations) == 0 {
			fmt.Fprintln(out, "No conversations found.")
			fmt.Fprintln(out, "\nStart one with:")
			fmt.Fprintln(out, "  llmchat chat --new \"your message\"")
			return nil
		}

		printConversations(out, conversations)
		fmt.Fprintln(out, "\nUse 'llmchat history show <id>' to view a conversation.")
		return nil
	},
}

// historyShowCmd represents the history show command
var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation",
	Long:  `Show a conversation and all of its messages.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		conv, err := a.store.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}

		printConversation(cmd.OutOrStdout(), conv)
		fmt.Fprintf(cmd.OutOrStdout(), "\nContinue this conversation with:\n  llmchat chat --chat %s \"your message\"\n", conv.ID)
		return nil
	},
}

// historyNewCmd represents the history new command
var historyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty conversation",
	Long: `Create an empty conversation and make it the most recent one.

The system prompt defaults to the configured system_prompt.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		systemPrompt, _ := cmd.Flags().GetString("system")
		if systemPrompt == "" {
			systemPrompt = a.cfg.SystemPrompt
		}

		conv, err := a.store.Prepend(llmchat.NewConversation(systemPrompt, time.Now()))
		if err != nil {
			return fmt.Errorf("creating conversation: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation created: %s\n", conv.ID)
		return nil
	},
}

// historyDeleteCmd represents the history delete command
var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation permanently.

Warning: This action cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		conv, err := a.store.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}

		if !confirm(cmd, fmt.Sprintf("Are you sure you want to delete conversation %s (%s)?", conv.ID, conv.GetDisplayName())) {
			fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled.")
			return nil
		}

		if _, err := a.store.Remove(conv.ID); err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s deleted successfully.\n", conv.ID)
		return nil
	},
}

// historyRenameCmd represents the history rename command
var historyRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		title := strings.TrimSpace(args[1])
		if title == "" {
			return fmt.Errorf("title must not be empty")
		}

		conv, err := a.store.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("finding conversation: %w", err)
		}
		if err := a.store.SetTitle(conv.ID, title); err != nil {
			return fmt.Errorf("renaming conversation: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s renamed to \"%s\".\n", conv.ID, title)
		return nil
	},
}

// historyClearCmd represents the history clear command
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete old conversations",
	Long: `Delete conversations permanently.

Use --before to delete only conversations created before a date, or --all to
delete every conversation.

Warning: This action cannot be undone.

Examples:
  llmchat history clear --before 2024-01-01  # Delete conversations created before 2024-01-01
  llmchat history clear --before 2024-12     # Delete conversations created before 2024-12-01
  llmchat history clear --all                # Delete all conversations`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		beforeDateStr, _ := cmd.Flags().GetString("before")
		deleteAll, _ := cmd.Flags().GetBool("all")

		if deleteAll == (beforeDateStr != "") {
			return fmt.Errorf("specify exactly one of --before or --all")
		}

		var beforeDate time.Time
		if beforeDateStr != "" {
			var err error
			beforeDate, err = parseDate(beforeDateStr)
			if err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}
		}

		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		matching := 0
		for _, conv := range a.store.Load() {
			if deleteAll || conv.CreatedTime().Before(beforeDate) {
				matching++
			}
		}
		if matching == 0 {
			fmt.Fprintln(out, "No conversations to delete.")
			return nil
		}

		question := fmt.Sprintf("Are you sure you want to delete all %d conversations?", matching)
		if !deleteAll {
			question = fmt.Sprintf("Are you sure you want to delete %d conversations created before %s?", matching, beforeDate.Format("2006-01-02"))
		}
		if !confirm(cmd, question) {
			fmt.Fprintln(out, "Deletion cancelled.")
			return nil
		}

		deleted, err := a.store.ClearBefore(beforeDate)
		if err != nil {
			return fmt.Errorf("deleting conversations: %w", err)
		}
		fmt.Fprintf(out, "Successfully deleted %d conversations.\n", deleted)
		return nil
	},
}

// printConversations writes the conversation table
func printConversations(w io.Writer, conversations []llmchat.Conversation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tMESSAGES\tTITLE")
	fmt.Fprintln(tw, "--\t-------\t--------\t-----")
	for _, conv := range conversations {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			conv.ID,
			conv.CreatedTime().Format("2006-01-02 15:04"),
			conv.MessageCount(),
			conv.GetDisplayName(),
		)
	}
	tw.Flush()
}

// printConversation writes a conversation with its visible messages
func printConversation(w io.Writer, conv *llmchat.Conversation) {
	fmt.Fprintf(w, "Conversation: %s\n", conv.ID)
	fmt.Fprintf(w, "Title: %s\n", conv.GetDisplayName())
	fmt.Fprintf(w, "Created: %s\n", conv.CreatedTime().Format("2006-01-02 15:04:05"))
	if system := llmchat.FirstContent(conv.Messages, llmchat.RoleSystem); system != "" {
		fmt.Fprintf(w, "System Prompt: %s\n", system)
	}
	fmt.Fprintf(w, "Messages: %d\n", conv.MessageCount())

	if conv.MessageCount() == 0 {
		fmt.Fprintln(w, "\nNo messages in this conversation.")
		return
	}

	fmt.Fprintln(w, "\nMessage History:")
	fmt.Fprintln(w, "----------------")
	i := 0
	for _, msg := range conv.Messages {
		if msg.Role == llmchat.RoleSystem {
			continue
		}
		i++
		roleLabel := "You"
		if msg.Role == llmchat.RoleAssistant {
			roleLabel = "Assistant"
		}
		fmt.Fprintf(w, "\n[%d] %s:\n%s\n", i, roleLabel, msg.Content)
	}
}

// confirm asks a yes/no question on stdin unless --yes was given
func confirm(cmd *cobra.Command, question string) bool {
	if assumeYes {
		return true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	response = strings.TrimSpace(response)
	return response == "y" || response == "Y"
}

// parseDate parses a date string in various formats and returns a time.Time
// Supported formats: YYYY-MM-DD, YYYY-MM, YYYY
func parseDate(dateStr string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, dateStr, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD, YYYY-MM, or YYYY)", dateStr)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyNewCmd, historyDeleteCmd, historyRenameCmd, historyClearCmd)

	historyCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	historyNewCmd.Flags().String("system", "", "System prompt of the new conversation")
	historyClearCmd.Flags().String("before", "", "Delete conversations created before this date (YYYY-MM-DD, YYYY-MM or YYYY)")
	historyClearCmd.Flags().Bool("all", false, "Delete all conversations")
}
