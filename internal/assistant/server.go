package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/longkey1/llmchat/internal/llmchat"
	"github.com/longkey1/llmchat/internal/llmchat/stream"
	"go.uber.org/zap"
)

// Frame statuses written by the server
const (
	frameStatusProcessing = "processing"
	frameStatusComplete   = "complete"
	frameStatusError      = "error"
)

const (
	titleSystemPrompt  = "You are a helpful assistant that creates concise, descriptive titles."
	titleMaxTokens     = 20
	titleTemperature   = 0.7
	titleFallbackWords = 5
)

// Completer is the upstream model behind the server
type Completer interface {
	// StreamCompletion calls emit for every content fragment, in order.
	StreamCompletion(ctx context.Context, messages []llmchat.Message, emit func(fragment string) error) error

	// Complete returns a single non-streamed completion.
	Complete(ctx context.Context, messages []llmchat.Message, maxTokens int, temperature float32) (string, error)
}

// Server serves /chat and /generate-title on top of a Completer
type Server struct {
	completer    Completer
	systemPrompt string
	logger       *zap.Logger
}

// NewServer creates a server. An empty systemPrompt means llmchat.DefaultSystemPrompt.
func NewServer(completer Completer, systemPrompt string, logger *zap.Logger) *Server {
	if systemPrompt == "" {
		systemPrompt = llmchat.DefaultSystemPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{completer: completer, systemPrompt: systemPrompt, logger: logger}
}

// Handler returns the HTTP handler with all routes registered
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+chatPath, s.handleChat)
	mux.HandleFunc("POST "+generateTitlePath, s.handleGenerateTitle)
	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		s.logger.Debug("Request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("request_id", id))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	messages := make([]llmchat.Message, 0, len(req.Messages)+1)
	hasSystem := false
	for _, m := range req.Messages {
		if m.Role == llmchat.RoleSystem {
			hasSystem = true
		}
		messages = append(messages, llmchat.Message{Role: m.Role, Content: m.Content})
	}
	if !hasSystem {
		messages = append([]llmchat.Message{{Role: llmchat.RoleSystem, Content: s.systemPrompt}}, messages...)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	err := s.completer.StreamCompletion(ctx, messages, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		if err := writeFrame(w, frameStatusProcessing, fragment); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	if ctx.Err() != nil {
		s.logger.Info("Client disconnected, stopping generation", zap.String("request_id", w.Header().Get(requestIDHeader)))
		return
	}
	if err != nil {
		s.logger.Error("Upstream completion failed", zap.Error(err))
		_ = writeFrame(w, frameStatusError, err.Error())
		flusher.Flush()
		return
	}

	_ = writeFrame(w, frameStatusComplete, stream.FinishedSentinel)
	flusher.Flush()
}

func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	title, err := s.generateTitle(r.Context(), req)
	if err != nil {
		s.logger.Warn("Error generating title", zap.Error(err))
		title = fallbackWords(req.UserMessage)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TitleResponse{Title: title})
}

func (s *Server) generateTitle(ctx context.Context, req TitleRequest) (string, error) {
	aiResponse := req.AIResponse
	if runes := []rune(aiResponse); len(runes) > 100 {
		aiResponse = string(runes[:100])
	}

	messages := []llmchat.Message{
		{Role: llmchat.RoleSystem, Content: titleSystemPrompt},
		{Role: llmchat.RoleUser, Content: fmt.Sprintf(
			"Create a short, descriptive title (maximum 5 words) for a conversation that starts with this user message: '%s' and your first response begins with: '%s...'",
			req.UserMessage, aiResponse)},
	}

	title, err := s.completer.Complete(ctx, messages, titleMaxTokens, titleTemperature)
	if err != nil {
		return "", err
	}
	title = strings.ReplaceAll(strings.TrimSpace(title), `"`, "")
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

// fallbackWords keeps the first five words of msg
func fallbackWords(msg string) string {
	words := strings.Fields(msg)
	if len(words) <= titleFallbackWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleFallbackWords], " ") + "..."
}

// writeFrame writes one "data: <json>\n\n" frame without HTML escaping
func writeFrame(w http.ResponseWriter, status, data string) error {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stream.Payload{Status: status, Data: data}); err != nil {
		return err
	}
	// Encode appends a newline; frames end with exactly one blank line
	_, err := fmt.Fprintf(w, "data: %s\n\n", strings.TrimRight(sb.String(), "\n"))
	return err
}
