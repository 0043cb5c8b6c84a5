package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/longkey1/llmchat/internal/llmchat/config"
	"github.com/longkey1/llmchat/internal/llmchat/prompt"
	"github.com/spf13/cobra"
)

const samplePromptName = "summarize"

var initForce bool

// initCmd writes a default config file, the history and prompt directories
// and a sample prompt template
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration",
	Long: `Create config.toml with default settings, the history and prompt
directories, and a sample "summarize" prompt template.

The file goes to $HOME/.config/llmchat/config.toml unless --config is given.
An existing file is left alone unless --force is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := cfgFile
		if configFile == "" {
			dir, err := userConfigDir()
			if err != nil {
				return err
			}
			configFile = filepath.Join(dir, "config.toml")
		}
		configDir := filepath.Dir(configFile)

		if _, err := os.Stat(configFile); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configFile)
		}

		cfg := config.NewDefaultConfig(configDir)
		for _, dir := range append([]string{configDir, cfg.HistoryDir}, cfg.PromptDirs...) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating directory %s: %w", dir, err)
			}
		}

		if err := writeTOML(configFile, cfg); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration file created at: %s\n", configFile)
		fmt.Fprintf(out, "History directory: %s\n", cfg.HistoryDir)

		samplePath := filepath.Join(cfg.PromptDirs[0], samplePromptName+".toml")
		if _, err := os.Stat(samplePath); err == nil {
			return nil
		}
		sample := prompt.Prompt{
			System: "You summarize text accurately and briefly.",
			User:   "Summarize the following in a few sentences:\n\n{{input}}",
		}
		if err := writeTOML(samplePath, sample); err != nil {
			return err
		}
		fmt.Fprintf(out, "Sample prompt created at: %s\n", samplePath)
		return nil
	},
}

func writeTOML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
}
