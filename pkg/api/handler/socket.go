package handler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/dto"
	"github.com/yinzara/ha-config-ai-agent/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) send(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(dto.SocketFrame{Event: event, Data: data})
}

func (s *socket) sendError(msg string) error {
	return s.send(string(types.EventError), types.ErrorEvent{Error: msg})
}

// Socket runs chat turns over a WebSocket. Each text frame holds a
// dto.ChatRequest; the events of the turn are sent back as dto.SocketFrame.
// A socket runs one chat at a time.
func (h *ChatHandler) Socket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	s := &socket{conn: conn}
	// busy admits one request at a time into the buffered channel.
	var busy atomic.Bool
	requests := make(chan dto.ChatRequest, 1)

	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.log.Debug("websocket read ended", "error", err)
				}
				return
			}
			var req dto.ChatRequest
			if err := json.Unmarshal(data, &req); err != nil || !validChat(req) {
				_ = s.sendError("message is required")
				continue
			}
			if !busy.CompareAndSwap(false, true) {
				_ = s.sendError("a chat is already in progress")
				continue
			}
			requests <- req
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			h.runSocketChat(ctx, cancel, s, req, &busy)
		}
	}
}

func (h *ChatHandler) runSocketChat(ctx context.Context, cancel context.CancelFunc, s *socket, req dto.ChatRequest, busy *atomic.Bool) {
	failed := false
	for ev := range h.chat.Chat(ctx, toRuntime(req)) {
		if failed {
			continue
		}
		// The client may send its next message as soon as it sees a
		// terminal event; that message waits in the channel.
		switch ev.EventType() {
		case types.EventComplete, types.EventError:
			busy.Store(false)
		}
		if err := s.send(string(ev.EventType()), ev); err != nil {
			h.log.Warn("websocket write failed", "error", err)
			failed = true
			cancel()
		}
	}
}
