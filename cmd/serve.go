package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/longkey1/llmchat/internal/anthropic"
	"github.com/longkey1/llmchat/internal/assistant"
	"github.com/longkey1/llmchat/internal/llmchat/config"
	"github.com/longkey1/llmchat/internal/logging"
	"github.com/longkey1/llmchat/internal/openai"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant service",
	Long: `Run the assistant service the chat client talks to.

POST /chat streams a completion for the posted conversation as server-sent
events and POST /generate-title returns a short title for a conversation.
Completions come from any OpenAI-compatible API (openai_base_url,
openai_token, openai_model), or from Anthropic's Messages API with
upstream = "anthropic" (anthropic_base_url, anthropic_token, anthropic_model).

Example:
  llmchat serve --listen :8000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Verbose: verbose})
		if err != nil {
			return err
		}
		defer logger.Sync()

		provider, err := newCompleter(cfg)
		if err != nil {
			return fmt.Errorf("creating provider: %w", err)
		}

		server := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           assistant.NewServer(provider, cfg.SystemPrompt, logger.Named("server")).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting assistant service",
				zap.String("addr", cfg.ListenAddr),
				zap.String("upstream", cfg.Upstream),
				zap.String("model", provider.Model()))
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("Shutting down assistant service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	},
}

// completer is an upstream completion API
type completer interface {
	assistant.Completer
	Model() string
}

// newCompleter creates the provider for the configured upstream
func newCompleter(cfg *config.Config) (completer, error) {
	switch cfg.Upstream {
	case config.UpstreamAnthropic:
		return anthropic.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (overrides listen_addr)")
	cobra.CheckErr(viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen")))
}
