package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/extract"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/model/chat"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/brain"
	chatService "github.com/aserras/web/backend/internal/service/chat"
	"github.com/aserras/web/backend/pkg/utils"
)

const (
	MaxMessageLength = 4000
	emptyReply       = "The assistant returned an empty response."
)

var (
	errEmptyMessage = errors.New("Message cannot be empty")
	errTooLong      = errors.New("Message is too long")
)

// Upstream is the part of the Brain API chat uses.
type Upstream interface {
	Text(ctx context.Context, token, prompt, model string) (map[string]any, error)
	History(ctx context.Context, token string) ([]any, error)
}

// Responder answers a message locally.
type Responder interface {
	Reply(ctx context.Context, history []chat.Message, message string) (string, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	history   *chatService.Service
	upstream  Upstream
	responder Responder
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// New 创建聊天处理器。upstream 为 nil 时使用本地 responder。
func New(history *chatService.Service, upstream Upstream, responder Responder) *Handler {
	return &Handler{
		history:   history,
		upstream:  upstream,
		responder: responder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logging.Named("chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由。调用方负责挂载鉴权中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/send", h.handleSend)
	r.Get("/chat/stream", h.handleStream)
	r.Get("/chat/ws", h.handleWebSocket)
	r.Get("/user/history", h.handleHistory)
	r.Get("/history", h.handleHistory)
}

type sendRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// handleSend 发送消息并返回回复与完整对话
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload sendRequest
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, _ := middleware.IdentityFrom(r.Context())
	reply, err := h.converse(r.Context(), id, payload.Message, payload.Model)
	if err != nil {
		h.respondFailure(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"reply":    reply.Text,
		"messages": h.history.Transcript(r.Context(), id.Owner()),
	})
}

// handleHistory 返回当前账号的对话历史
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())

	if h.upstream != nil {
		items, err := h.upstream.History(r.Context(), id.Token)
		if err != nil {
			h.respondFailure(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "messages": items})
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"messages": h.history.Transcript(r.Context(), id.Owner()),
	})
}

// converse validates message, obtains a reply and records the exchange.
func (h *Handler) converse(ctx context.Context, id account.Identity, message, model string) (chat.Message, error) {
	message, err := validate(message)
	if err != nil {
		return chat.Message{}, err
	}

	reply, err := h.reply(ctx, id, message, model)
	if err != nil {
		return chat.Message{}, err
	}

	_, ai, err := h.history.Append(ctx, id.Owner(), message, reply)
	return ai, err
}

func (h *Handler) reply(ctx context.Context, id account.Identity, message, model string) (string, error) {
	if h.upstream != nil {
		payload, err := h.upstream.Text(ctx, id.Token, message, model)
		if err != nil {
			return "", err
		}
		if reply := extract.Reply(payload); reply != "" {
			return reply, nil
		}
		return emptyReply, nil
	}

	reply, err := h.responder.Reply(ctx, h.history.Recent(ctx, id.Owner(), -1), message)
	if err != nil {
		h.log.Warn("local assistant failed", zap.Error(err))
		return "", brain.ErrUnavailable
	}
	if strings.TrimSpace(reply) == "" {
		return emptyReply, nil
	}
	return reply, nil
}

func (h *Handler) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errEmptyMessage) || errors.Is(err, errTooLong) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, message := brain.StatusFor(err)
	logging.LogHTTPRequest(r, status, err.Error())
	utils.RespondError(w, status, message)
}

func validate(message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errEmptyMessage
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return "", errTooLong
	}
	return message, nil
}
