package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/koopa0/recall/internal/chat"
)

// ChatHandler handles the chat endpoint.
//
// POST /api/chat accepts {"messages": [{"role": "...", "content": "..."}]}
// and answers either as batch JSON {"answer": "..."} or, when the client
// sends Accept: text/event-stream, as an SSE stream of chunk/done/error
// events. Both modes run the same conversation loop.
type ChatHandler struct {
	orchestrator *chat.Chat
	logger       *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orchestrator *chat.Chat, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the POST /api/chat request body.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one inbound conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the batch-mode response body.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// SSEChunkData is the data for "chunk" events.
type SSEChunkData struct {
	Text string `json:"text"`
}

// SSEDoneData is the data for "done" events.
type SSEDoneData struct {
	Answer string `json:"answer"`
}

// SSEErrorData is the data for "error" events.
type SSEErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err), h.logger)
		return
	}

	history, err := convertHistory(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), h.logger)
		return
	}
	if len(history) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "messages must not be empty", h.logger)
		return
	}

	if wantsSSE(r) {
		h.serveStream(w, r, history)
		return
	}
	h.serveBatch(w, r, history)
}

// serveBatch runs the conversation to completion and returns one JSON
// document.
func (h *ChatHandler) serveBatch(w http.ResponseWriter, r *http.Request, history []chat.Message) {
	answer, err := h.orchestrator.Execute(r.Context(), history)
	if err != nil {
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "CHAT_FAILED", "chat completion failed", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: answer}, h.logger)
}

// serveStream runs the conversation in incremental-delivery mode over
// SSE. Errors after the stream has started are reported as error events;
// the HTTP status is already committed by then.
func (h *ChatHandler) serveStream(w http.ResponseWriter, r *http.Request, history []chat.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported by response writer")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	ctx := r.Context()
	onText := func(ctx context.Context, text string) error {
		// Stop producing when the client disconnects.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		h.writeEvent(w, flusher, "chunk", SSEChunkData{Text: text})
		return nil
	}

	answer, err := h.orchestrator.ExecuteStream(ctx, history, onText)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during stream")
			return
		}
		h.logger.Error("chat stream failed", "error", err)
		h.writeEvent(w, flusher, "error", SSEErrorData{Code: "STREAM_ERROR", Message: "chat completion failed"})
		return
	}

	h.writeEvent(w, flusher, "done", SSEDoneData{Answer: answer})
}

// writeEvent writes one SSE frame and flushes it.
func (h *ChatHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// wantsSSE reports whether the client asked for an event stream.
func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// convertHistory maps inbound wire messages onto orchestrator messages.
// Only user and assistant roles are accepted; the system prompt is owned
// by the orchestrator.
func convertHistory(msgs []ChatMessage) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(msgs))
	for i, m := range msgs {
		var role chat.Role
		switch m.Role {
		case "user":
			role = chat.RoleUser
		case "assistant":
			role = chat.RoleAssistant
		default:
			return nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
		if m.Content == "" {
			return nil, fmt.Errorf("message %d: content must not be empty", i)
		}
		out = append(out, chat.TextMessage(role, m.Content))
	}
	return out, nil
}
