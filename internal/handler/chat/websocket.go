package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/brain"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Model   string `json:"model"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// handleWebSocket keeps a live chat socket open. Each {"type":"message"}
// frame is answered with a "reply" or an "error" frame.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go pingLoop(ctx, conn)

	h.send(conn, "connected", map[string]any{"history": h.history.Transcript(ctx, id.Owner())})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch msg.Type {
		case "message", "":
			reply, err := h.converse(ctx, id, msg.Message, msg.Model)
			if err != nil {
				h.sendError(conn, err)
				continue
			}
			h.send(conn, "reply", map[string]any{"reply": reply.Text, "message": reply})
		case "ping":
			h.send(conn, "pong", nil)
		default:
			h.send(conn, "error", map[string]string{"message": "unsupported message type: " + msg.Type})
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, kind string, data any) {
	msg := outgoingMessage{Type: kind, Data: data, Timestamp: time.Now().Unix()}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug("websocket write failed", zap.String("type", kind), zap.Error(err))
	}
}

func (h *Handler) sendError(conn *websocket.Conn, err error) {
	message := err.Error()
	if !errors.Is(err, errEmptyMessage) && !errors.Is(err, errTooLong) {
		_, message = brain.StatusFor(err)
	}
	h.send(conn, "error", map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
