package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/longkey1/llmchat/internal/llmchat/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "llmchat",
	Short: "A terminal chat client for an LLM assistant service",
	Long: `llmchat is a terminal chat client for an LLM assistant service.
Replies are streamed as they are generated and every conversation is kept in
a local history that can be browsed, renamed and deleted.

Run 'llmchat start' for the full-screen client, 'llmchat chat' for one-shot
messages, and 'llmchat serve' to run the assistant service itself.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/llmchat/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("base-url", "", "assistant service address (overrides base_url)")
	rootCmd.PersistentFlags().String("storage", "", "history storage backend: file, bolt or sqlite (overrides storage)")

	cobra.CheckErr(viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url")))
	cobra.CheckErr(viper.BindPFlag("storage", rootCmd.PersistentFlags().Lookup("storage")))
}

// userConfigDir returns $HOME/.config/llmchat
func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %v", err)
	}
	return filepath.Join(home, ".config", "llmchat"), nil
}

// configDirs lists the directories searched for config.toml, lowest priority first
func configDirs(userDir string) []string {
	return []string{"/etc/llmchat", "/usr/local/etc/llmchat", userDir}
}

// initConfig layers defaults, config files and LLMCHAT_* environment variables.
// With --config only that file is read; otherwise every existing config.toml
// in configDirs is merged so user settings override system-wide ones.
func initConfig() {
	viper.SetEnvPrefix("LLMCHAT")
	viper.AutomaticEnv()

	userDir, err := userConfigDir()
	cobra.CheckErr(err)
	config.SetDefaults(viper.GetViper(), userDir)
	viper.SetConfigType("toml")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		return
	}

	for _, dir := range configDirs(userDir) {
		path := filepath.Join(dir, "config.toml")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		viper.SetConfigFile(path)
		if err := viper.MergeInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", path, err)
			continue
		}
		if verbose {
			fmt.Fprintln(os.Stderr, "Loaded config:", path)
		}
	}
}
