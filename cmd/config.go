package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/longkey1/llmchat/internal/llmchat/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFields maps the field names accepted by 'llmchat config <field>' to their values
func configFields(cfg *config.Config) map[string]string {
	return map[string]string{
		"configfile":         viper.ConfigFileUsed(),
		"base_url":           cfg.BaseURL,
		"system_prompt":      cfg.SystemPrompt,
		"storage":            cfg.Storage,
		"history_dir":        cfg.HistoryDir,
		"history_path":       cfg.HistoryPath(),
		"title_timeout":      cfg.TitleTimeout,
		"request_timeout":    cfg.RequestTimeout,
		"prompt_dirs":        strings.Join(cfg.PromptDirs, ","),
		"log_level":          cfg.LogLevel,
		"log_file":           cfg.LogFile,
		"listen_addr":        cfg.ListenAddr,
		"openai_base_url":    cfg.OpenAIBaseURL,
		"openai_token":       maskToken(cfg.OpenAIToken),
		"openai_model":       cfg.OpenAIModel,
		"upstream":           cfg.Upstream,
		"anthropic_base_url": cfg.AnthropicBaseURL,
		"anthropic_token":    maskToken(cfg.AnthropicToken),
		"anthropic_model":    cfg.AnthropicModel,
	}
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file and environment variables.

If a field name is specified, only that field's value is displayed.

Examples:
  llmchat config                 # Show all configuration
  llmchat config base_url        # Show only the assistant service address
  llmchat config history_path    # Show where the history is stored
  llmchat config openai_token    # Show only the (masked) upstream token`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fields := configFields(cfg)
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		if len(args) > 0 {
			value, ok := fields[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown field: %s\nAvailable fields: %s", args[0], strings.Join(names, ", "))
			}
			fmt.Fprintln(out, value)
			return nil
		}

		printFields(out, names, fields)
		return nil
	},
}

func printFields(w io.Writer, names []string, fields map[string]string) {
	for _, name := range names {
		fmt.Fprintf(w, "%s: %s\n", name, fields[name])
	}
}

// maskToken returns a masked version of the token for security
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)
}
