package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/we11as22/deepresearch/pkg/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The engine has no cross-origin auth story; deployments front this
	// with their own proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsInbound is a client frame. chat:send starts a stream, chat:cancel
// aborts one.
type wsInbound struct {
	Type      string `json:"type"`
	ChatID    string `json:"chatId,omitempty"`
	Message   string `json:"message,omitempty"`
	Mode      string `json:"mode,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// wsConn serialises writes; gorilla connections allow one writer at a
// time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleWebSocket speaks the chat:send / chat:cancel protocol and
// forwards the same typed event set as the SSE transport.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		var frame wsInbound
		if err := raw.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Type {
		case "chat:send":
			s.wsSend(ctx, conn, frame)
		case "chat:cancel":
			cancelled := s.engine.Cancel(ctx, frame.SessionID)
			conn.writeJSON(map[string]any{
				"type": "chat:cancelled", "sessionId": frame.SessionID, "ok": cancelled,
			})
		default:
			conn.writeJSON(map[string]any{"type": "error", "message": "unknown frame type"})
		}
	}
}

func (s *Server) wsSend(ctx context.Context, conn *wsConn, frame wsInbound) {
	gen, sessionID, mode, err := s.engine.StartStream(ctx, StreamRequest{
		ChatID:    frame.ChatID,
		Message:   frame.Message,
		Mode:      frame.Mode,
		MessageID: frame.MessageID,
	})
	if err != nil {
		s.logger.Error("ws stream start failed", "error", err)
		conn.writeJSON(map[string]any{"type": "error", "message": "failed to start stream"})
		return
	}

	conn.writeJSON(map[string]any{
		"type": "chat:started", "sessionId": sessionID, "mode": string(mode),
	})

	// Pump events concurrently so the read loop stays responsive to
	// chat:cancel frames.
	go func() {
		events, unsubscribe := gen.Subscribe(true)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case event, open := <-events:
				if !open {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if err := conn.writeJSON(json.RawMessage(data)); err != nil {
					return
				}
				if event.Type == streaming.EventDone {
					return
				}
			}
		}
	}()
}
