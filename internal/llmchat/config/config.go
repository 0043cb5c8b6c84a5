package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/longkey1/llmchat/internal/kv"
	"github.com/spf13/viper"
)

// Upstream completion APIs
const (
	UpstreamOpenAI    = "openai"
	UpstreamAnthropic = "anthropic"
)

// Config holds the configuration of the chat client and the assistant service
type Config struct {
	BaseURL        string   `toml:"base_url" mapstructure:"base_url"` // Assistant service address
	SystemPrompt   string   `toml:"system_prompt" mapstructure:"system_prompt"`
	Storage        string   `toml:"storage" mapstructure:"storage"` // "file", "bolt" or "sqlite"
	HistoryDir     string   `toml:"history_dir" mapstructure:"history_dir"`
	TitleTimeout   string   `toml:"title_timeout" mapstructure:"title_timeout"`     // e.g. "30s"
	RequestTimeout string   `toml:"request_timeout" mapstructure:"request_timeout"` // Wait for response headers, "0" = no limit
	PromptDirs     []string `toml:"prompt_dirs" mapstructure:"prompt_dirs"`
	LogLevel       string   `toml:"log_level" mapstructure:"log_level"`
	LogFile        string   `toml:"log_file" mapstructure:"log_file"` // Used by the full-screen UI
	ListenAddr     string   `toml:"listen_addr" mapstructure:"listen_addr"`
	OpenAIBaseURL  string   `toml:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIToken    string   `toml:"openai_token" mapstructure:"openai_token"`
	OpenAIModel    string   `toml:"openai_model" mapstructure:"openai_model"`

	Upstream         string `toml:"upstream" mapstructure:"upstream"` // Completion API used by serve: "openai" or "anthropic"
	AnthropicBaseURL string `toml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	AnthropicToken   string `toml:"anthropic_token" mapstructure:"anthropic_token"`
	AnthropicModel   string `toml:"anthropic_model" mapstructure:"anthropic_model"`
}

// NewDefaultConfig returns a new Config with default values rooted at configDir
func NewDefaultConfig(configDir string) *Config {
	return &Config{
		BaseURL:        "http://localhost:8000",
		SystemPrompt:   "You are a helpful assistant.",
		Storage:        kv.BackendFile,
		HistoryDir:     filepath.Join(configDir, "history"),
		TitleTimeout:   "30s",
		RequestTimeout: "60s",
		PromptDirs:     []string{filepath.Join(configDir, "prompts")},
		LogLevel:       "info",
		LogFile:        filepath.Join(configDir, "llmchat.log"),
		ListenAddr:     ":8000",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		OpenAIToken:    "$OPENAI_API_KEY", // Default to env var
		OpenAIModel:    "gpt-3.5-turbo",

		Upstream:         UpstreamOpenAI,
		AnthropicBaseURL: "https://api.anthropic.com/v1",
		AnthropicToken:   "$ANTHROPIC_API_KEY",
		AnthropicModel:   "claude-3-5-sonnet-20241022",
	}
}

// SetDefaults registers the values of NewDefaultConfig with v
func SetDefaults(v *viper.Viper, configDir string) {
	d := NewDefaultConfig(configDir)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("system_prompt", d.SystemPrompt)
	v.SetDefault("storage", d.Storage)
	v.SetDefault("history_dir", d.HistoryDir)
	v.SetDefault("title_timeout", d.TitleTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("prompt_dirs", d.PromptDirs)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("openai_base_url", d.OpenAIBaseURL)
	v.SetDefault("openai_token", d.OpenAIToken)
	v.SetDefault("openai_model", d.OpenAIModel)
	v.SetDefault("upstream", d.Upstream)
	v.SetDefault("anthropic_base_url", d.AnthropicBaseURL)
	v.SetDefault("anthropic_token", d.AnthropicToken)
	v.SetDefault("anthropic_model", d.AnthropicModel)
}

// LoadConfig loads configuration from the global viper instance
func LoadConfig() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v, expanding $VAR references and
// resolving relative paths against the config file directory.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %v", err)
	}

	for _, field := range []*string{&config.BaseURL, &config.OpenAIBaseURL, &config.OpenAIToken, &config.AnthropicBaseURL, &config.AnthropicToken, &config.HistoryDir, &config.LogFile} {
		*field = expandEnvVar(*field)
	}

	var err error
	if config.HistoryDir, err = resolvePath(v, config.HistoryDir); err != nil {
		return nil, fmt.Errorf("error resolving history directory path '%s': %v", config.HistoryDir, err)
	}
	if config.LogFile != "" {
		if config.LogFile, err = resolvePath(v, config.LogFile); err != nil {
			return nil, fmt.Errorf("error resolving log file path '%s': %v", config.LogFile, err)
		}
	}
	for i, promptDir := range config.PromptDirs {
		absPath, err := resolvePath(v, expandEnvVar(promptDir))
		if err != nil {
			return nil, fmt.Errorf("error resolving prompt directory path '%s': %v", promptDir, err)
		}
		config.PromptDirs[i] = absPath
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that cannot be verified by unmarshaling alone
func (c *Config) Validate() error {
	switch c.Storage {
	case kv.BackendFile, kv.BackendBolt, kv.BackendSQLite:
	default:
		return fmt.Errorf("unsupported storage backend: %s (expected %s, %s or %s)", c.Storage, kv.BackendFile, kv.BackendBolt, kv.BackendSQLite)
	}
	switch c.Upstream {
	case UpstreamOpenAI, UpstreamAnthropic:
	default:
		return fmt.Errorf("unsupported upstream: %s (expected %s or %s)", c.Upstream, UpstreamOpenAI, UpstreamAnthropic)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is not configured. Set it in config file (base_url) or environment variable (LLMCHAT_BASE_URL)")
	}
	if _, err := c.GetTitleTimeout(); err != nil {
		return err
	}
	if _, err := c.GetRequestTimeout(); err != nil {
		return err
	}
	return nil
}

// GetTitleTimeout returns the title request timeout
func (c *Config) GetTitleTimeout() (time.Duration, error) {
	return parseDuration("title_timeout", c.TitleTimeout)
}

// GetRequestTimeout returns how long to wait for response headers
func (c *Config) GetRequestTimeout() (time.Duration, error) {
	return parseDuration("request_timeout", c.RequestTimeout)
}

// GetOpenAIBaseURL returns the upstream API base URL used by the assistant service
func (c *Config) GetOpenAIBaseURL() string {
	return c.OpenAIBaseURL
}

// GetOpenAIModel returns the upstream model used by the assistant service
func (c *Config) GetOpenAIModel() string {
	return c.OpenAIModel
}

// GetAnthropicBaseURL returns the Anthropic API base URL used by the assistant service
func (c *Config) GetAnthropicBaseURL() string {
	return c.AnthropicBaseURL
}

// GetAnthropicModel returns the Anthropic model used by the assistant service
func (c *Config) GetAnthropicModel() string {
	return c.AnthropicModel
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, value)
	}
	return d, nil
}
