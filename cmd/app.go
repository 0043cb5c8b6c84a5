package cmd

import (
	"fmt"
	"net/http"

	"github.com/longkey1/llmchat/internal/assistant"
	"github.com/longkey1/llmchat/internal/kv"
	"github.com/longkey1/llmchat/internal/llmchat/config"
	"github.com/longkey1/llmchat/internal/llmchat/conversation"
	"github.com/longkey1/llmchat/internal/llmchat/history"
	"github.com/longkey1/llmchat/internal/logging"
	"go.uber.org/zap"
)

// app wires the configured dependencies of a command together
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	slot   kv.Store
	store  *history.Store
}

// newApp loads the configuration, builds the logger and opens the history.
// With logToFile the logger writes to the configured log file instead of stderr.
func newApp(logToFile bool) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	opts := logging.Options{Level: cfg.LogLevel, Verbose: verbose}
	if logToFile {
		opts.File = cfg.LogFile
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, err
	}

	slot, err := kv.Open(cfg.Storage, cfg.HistoryPath())
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("opening history: %w", err)
	}
	logger.Debug("History opened", zap.String("storage", cfg.Storage), zap.String("location", slot.Location(history.SlotKey)))

	return &app{
		cfg:    cfg,
		logger: logger,
		slot:   slot,
		store:  history.NewStore(slot, logger.Named("history")),
	}, nil
}

func (a *app) close() {
	if err := a.slot.Close(); err != nil {
		a.logger.Warn("Failed to close history", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newClient builds the assistant service client
func (a *app) newClient() (*assistant.Client, error) {
	titleTimeout, err := a.cfg.GetTitleTimeout()
	if err != nil {
		return nil, err
	}
	requestTimeout, err := a.cfg.GetRequestTimeout()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = requestTimeout

	return assistant.NewClient(a.cfg.BaseURL,
		assistant.WithHTTPClient(&http.Client{Transport: transport}),
		assistant.WithLogger(a.logger.Named("assistant")),
		assistant.WithTitleTimeout(titleTimeout),
	), nil
}

// newController builds an initialized conversation controller
func (a *app) newController() (*conversation.Controller, error) {
	client, err := a.newClient()
	if err != nil {
		return nil, err
	}
	ctrl := conversation.NewController(a.store, client, a.logger.Named("conversation"),
		conversation.WithSystemPrompt(a.cfg.SystemPrompt),
	)
	if err := ctrl.Init(); err != nil {
		ctrl.Close()
		return nil, err
	}
	return ctrl, nil
}
