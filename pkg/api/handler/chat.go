package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/dto"
	"github.com/yinzara/ha-config-ai-agent/pkg/runtime"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

// Chatter runs chat turns.
type Chatter interface {
	Configured() bool
	Chat(ctx context.Context, req runtime.ChatRequest) <-chan types.StreamEvent
}

// ChatHandler streams chat turns over SSE and WebSocket.
type ChatHandler struct {
	chat Chatter
	log  *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(chat Chatter, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{chat: chat, log: log}
}

func validChat(req dto.ChatRequest) bool {
	return strings.TrimSpace(req.Message) != ""
}

func toRuntime(req dto.ChatRequest) runtime.ChatRequest {
	return runtime.ChatRequest{Message: req.Message, History: req.ConversationHistory}
}

// Stream godoc
// @Summary      Chat
// @Description  Runs one chat turn and streams its events
// @Tags         chat
// @Accept       json
// @Produce      text/event-stream
// @Param        request body dto.ChatRequest true "Chat request"
// @Failure      400 {object} dto.ErrorResponse
// @Router       /api/chat [post]
func (h *ChatHandler) Stream(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || !validChat(req) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "message is required"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	failed := false
	for ev := range h.chat.Chat(c.Request.Context(), toRuntime(req)) {
		if failed {
			continue
		}
		if err := WriteSSE(c.Writer, ev); err != nil {
			// The request context is cancelled as well; drain until the
			// runtime closes the channel.
			h.log.Warn("sse write failed", "error", err)
			failed = true
		}
	}
}

// WriteSSE writes one event as "event: <type>\ndata: <json>\n\n" and
// flushes it.
func WriteSSE(w io.Writer, ev types.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType(), data); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
