package cmd

import (
	"fmt"

	"github.com/longkey1/llmchat/internal/llmchat/config"
	"github.com/longkey1/llmchat/internal/llmchat/prompt"
	"github.com/spf13/cobra"
)

var withDir bool

// promptCmd represents the prompt command
var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "List available prompt templates",
	Long: `List all available prompt templates from the configured prompt directories.
This command recursively scans all prompt directories specified in the configuration and displays
the names of available .toml prompt files, including those in subdirectories.

The prompt files should be in TOML format with the following structure:
system = "System prompt with optional {{key}} placeholders"
user = "User prompt with optional {{input}} placeholder"

Prompt names are displayed as relative paths from the prompt directory root.
For example, a file at ${prompt_dir}/foo/bar.toml will be displayed as "foo/bar".

If you want to see which directory each prompt comes from, use the --with-dir option.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		lib := prompt.NewLibrary(nil, cfg.PromptDirs)
		entries, err := lib.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No prompt templates found.")
			fmt.Fprintln(out, "Create .toml files in the following directories:")
			for _, dir := range lib.Dirs() {
				fmt.Fprintf(out, "  - %s\n", dir)
			}
			return nil
		}

		fmt.Fprintf(out, "Available prompt templates (%d found):\n\n", len(entries))
		for _, entry := range entries {
			if withDir {
				fmt.Fprintf(out, "  %s (from %s)\n", entry.Name, entry.Dir)
			} else {
				fmt.Fprintf(out, "  %s\n", entry.Name)
			}
		}

		fmt.Fprintf(out, "\nUse a prompt template with: llmchat chat --prompt <name> [message]\n")
		fmt.Fprintf(out, "Example: llmchat chat --prompt foo/bar --arg lang:French [message]\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().BoolVar(&withDir, "with-dir", false, "Show the directory each prompt was found in")
}
