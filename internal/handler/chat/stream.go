package chat

import (
	"context"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/model/chat"
	"github.com/aserras/web/backend/internal/service/ai"
	"github.com/aserras/web/backend/internal/service/brain"
	"github.com/aserras/web/backend/pkg/utils"
)

// Streamer is a Responder that can also stream its reply.
type Streamer interface {
	StreamingEnabled() bool
	StreamReply(ctx context.Context, history []chat.Message, message string) (*schema.StreamReader[*schema.Message], error)
}

// StreamEvent is the data of every SSE event.
type StreamEvent struct {
	Content  string         `json:"content,omitempty"`
	Message  *chat.Message  `json:"message,omitempty"`
	Messages []chat.Message `json:"messages,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// handleStream answers ?message= as Server-Sent Events: start, delta..., end.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	message, err := validate(r.URL.Query().Get("message"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	model := r.URL.Query().Get("model")
	id, _ := middleware.IdentityFrom(r.Context())
	ctx := r.Context()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEEvent(w, flusher, "start", StreamEvent{})

	delta := func(chunk string) {
		utils.SendSSEEvent(w, flusher, "delta", StreamEvent{Content: chunk})
	}

	var reply string
	if streamer, ok := h.responder.(Streamer); ok && h.upstream == nil && streamer.StreamingEnabled() {
		reply, err = h.streamLocal(ctx, streamer, id.Owner(), message, delta)
	} else {
		reply, err = h.reply(ctx, id, message, model)
		if err == nil {
			delta(reply)
		}
	}
	if err != nil {
		_, msg := brain.StatusFor(err)
		h.log.Warn("stream failed", zap.Error(err))
		utils.SendSSEEvent(w, flusher, "error", StreamEvent{Error: msg})
		return
	}

	_, aiMsg, err := h.history.Append(ctx, id.Owner(), message, reply)
	if err != nil {
		utils.SendSSEEvent(w, flusher, "error", StreamEvent{Error: err.Error()})
		return
	}
	utils.SendSSEEvent(w, flusher, "end", StreamEvent{
		Message:  &aiMsg,
		Messages: h.history.Transcript(ctx, id.Owner()),
	})
}

func (h *Handler) streamLocal(ctx context.Context, streamer Streamer, owner, message string, onChunk func(string)) (string, error) {
	stream, err := streamer.StreamReply(ctx, h.history.Recent(ctx, owner, -1), message)
	if err != nil {
		return "", brain.ErrUnavailable
	}
	reply, err := ai.Collect(stream, onChunk)
	if err != nil {
		return "", brain.ErrUnavailable
	}
	if reply == "" {
		reply = emptyReply
		onChunk(reply)
	}
	return reply, nil
}
