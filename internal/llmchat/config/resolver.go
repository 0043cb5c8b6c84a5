package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/longkey1/llmchat/internal/kv"
	"github.com/spf13/viper"
)

// expandEnvVar expands environment variable references in the given value
// Supports both $VAR and ${VAR} syntax, either for the whole value or as a
// leading path element ("$HOME/history").
// If the environment variable is not set, it expands to an empty string.
func expandEnvVar(value string) string {
	if !strings.HasPrefix(value, "$") {
		return value
	}

	// ${VAR} as the whole value
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") && !strings.Contains(value, "/") {
		return os.Getenv(value[2 : len(value)-1])
	}

	return os.Expand(value, os.Getenv)
}

// GetOpenAIToken returns the upstream API token
// Environment variables are already expanded during LoadConfig()
func (c *Config) GetOpenAIToken() (string, error) {
	if c.OpenAIToken == "" {
		return "", fmt.Errorf("openai token is not configured. Set it in config file (openai_token) or environment variable (LLMCHAT_OPENAI_TOKEN)")
	}
	return c.OpenAIToken, nil
}

// GetAnthropicToken returns the Anthropic API token
// Environment variables are already expanded during LoadConfig()
func (c *Config) GetAnthropicToken() (string, error) {
	if c.AnthropicToken == "" {
		return "", fmt.Errorf("anthropic token is not configured. Set it in config file (anthropic_token) or environment variable (LLMCHAT_ANTHROPIC_TOKEN)")
	}
	return c.AnthropicToken, nil
}

// HistoryPath returns the location handed to kv.Open for the configured backend
func (c *Config) HistoryPath() string {
	switch c.Storage {
	case kv.BackendBolt:
		return filepath.Join(c.HistoryDir, "history.db")
	case kv.BackendSQLite:
		return filepath.Join(c.HistoryDir, "history.sqlite")
	default:
		return c.HistoryDir
	}
}

// resolvePath converts a relative path to an absolute one based on the
// directory of the config file in use
func resolvePath(v *viper.Viper, path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}

	// Get config file directory as base directory
	configFile := v.ConfigFileUsed()
	if configFile == "" {
		// If no config file is used, fall back to current working directory
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current working directory: %v", err)
		}
		return filepath.Join(cwd, path), nil
	}

	// Use config file directory as base
	configDir := filepath.Dir(configFile)

	// If configDir is relative, make it absolute
	if !filepath.IsAbs(configDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("error getting current working directory: %v", err)
		}
		configDir = filepath.Join(cwd, configDir)
	}

	return filepath.Join(configDir, path), nil
}
