package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/model/chat"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/ai"
	"github.com/aserras/web/backend/internal/service/brain"
	chatservice "github.com/aserras/web/backend/internal/service/chat"
)

type fakeUpstream struct {
	reply   map[string]any
	err     error
	token   string
	history []any
}

func (f *fakeUpstream) Text(_ context.Context, token, prompt, model string) (map[string]any, error) {
	f.token = token
	return f.reply, f.err
}

func (f *fakeUpstream) History(_ context.Context, token string) ([]any, error) {
	f.token = token
	return f.history, f.err
}

type failingResponder struct{}

func (failingResponder) Reply(context.Context, []chat.Message, string) (string, error) {
	return "", errors.New("model offline")
}

func setupRouter(upstream Upstream, responder Responder) (*chi.Mux, *chatservice.Service) {
	history := chatservice.NewService(0)
	handler := New(history, upstream, responder)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := account.Identity{Email: "ada@example.com", Token: "tok-123"}
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), id)))
		})
	})
	handler.RegisterRoutes(r)
	return r, history
}

func postSend(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/send", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSendLocalEcho(t *testing.T) {
	r, history := setupRouter(nil, ai.Echo{})

	resp := postSend(r, `{"message":"  plan my week  "}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Status   string         `json:"status"`
		Reply    string         `json:"reply"`
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reply != ai.EchoReply("plan my week") {
		t.Fatalf("unexpected reply %q", body.Reply)
	}
	// welcome + user + ai
	if len(body.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(body.Messages))
	}
	if body.Messages[1].Text != "plan my week" || body.Messages[1].Role != chat.RoleUser {
		t.Fatalf("user turn not recorded: %+v", body.Messages[1])
	}
	if got := history.Recent(context.Background(), "ada@example.com", -1); len(got) != 2 {
		t.Fatalf("expected 2 stored turns, got %d", len(got))
	}
}

func TestSendValidation(t *testing.T) {
	r, _ := setupRouter(nil, ai.Echo{})

	resp := postSend(r, `{"message":"   "}`)
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "Message cannot be empty") {
		t.Fatalf("expected empty message rejection, got %d %s", resp.Code, resp.Body.String())
	}

	long, _ := json.Marshal(map[string]string{"message": strings.Repeat("a", MaxMessageLength+1)})
	resp = postSend(r, string(long))
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "Message is too long") {
		t.Fatalf("expected too long rejection, got %d %s", resp.Code, resp.Body.String())
	}

	resp = postSend(r, `{"message":`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.Code)
	}
}

func TestSendUpstreamReply(t *testing.T) {
	upstream := &fakeUpstream{reply: map[string]any{"data": map[string]any{"reply": "from brain"}}}
	r, _ := setupRouter(upstream, nil)

	resp := postSend(r, `{"message":"hi","model":"gpt"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"reply":"from brain"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if upstream.token != "tok-123" {
		t.Fatalf("expected caller token forwarded, got %q", upstream.token)
	}
}

func TestSendUpstreamFailures(t *testing.T) {
	upstream := &fakeUpstream{err: &brain.APIError{Status: http.StatusPaymentRequired, Detail: "Upgrade required"}}
	r, _ := setupRouter(upstream, nil)

	resp := postSend(r, `{"message":"hi"}`)
	if resp.Code != http.StatusPaymentRequired || !strings.Contains(resp.Body.String(), "Upgrade required") {
		t.Fatalf("expected relayed 402, got %d %s", resp.Code, resp.Body.String())
	}

	upstream.err = brain.ErrUnavailable
	resp = postSend(r, `{"message":"hi"}`)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestSendLocalResponderFailure(t *testing.T) {
	r, history := setupRouter(nil, failingResponder{})

	resp := postSend(r, `{"message":"hi"}`)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if got := history.Recent(context.Background(), "ada@example.com", -1); len(got) != 0 {
		t.Fatalf("failed exchange must not be stored, got %d", len(got))
	}
}

func TestHistoryLocalAndUpstream(t *testing.T) {
	r, _ := setupRouter(nil, ai.Echo{})
	req := httptest.NewRequest(http.MethodGet, "/user/history", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "welcome-ai") {
		t.Fatalf("expected seeded transcript, got %d %s", resp.Code, resp.Body.String())
	}

	upstream := &fakeUpstream{history: []any{map[string]any{"role": "assistant", "text": "old"}}}
	r, _ = setupRouter(upstream, nil)
	req = httptest.NewRequest(http.MethodGet, "/history", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"text":"old"`) {
		t.Fatalf("expected upstream history, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestStreamEmitsEvents(t *testing.T) {
	r, _ := setupRouter(nil, ai.Echo{})

	req := httptest.NewRequest(http.MethodGet, "/chat/stream?message=hello", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}
	body := resp.Body.String()
	for _, event := range []string{"event: start", "event: delta", "event: end"} {
		if !strings.Contains(body, event) {
			t.Fatalf("missing %q in %s", event, body)
		}
	}
	if strings.Index(body, "event: start") > strings.Index(body, "event: end") {
		t.Fatalf("events out of order: %s", body)
	}
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	r, _ := setupRouter(nil, ai.Echo{})

	req := httptest.NewRequest(http.MethodGet, "/chat/stream", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestStreamReportsUpstreamError(t *testing.T) {
	r, _ := setupRouter(&fakeUpstream{err: brain.ErrUnavailable}, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/stream?message=hello", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	body := resp.Body.String()
	if !strings.Contains(body, "event: error") || !strings.Contains(body, brain.MessageUnavailable) {
		t.Fatalf("expected error event, got %s", body)
	}
}

func TestWebSocketExchange(t *testing.T) {
	r, _ := setupRouter(nil, ai.Echo{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var msg outgoingMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connected" {
		t.Fatalf("expected connected frame, got %+v (%v)", msg, err)
	}

	if err := conn.WriteJSON(inboundMessage{Type: "message", Message: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "reply" {
		t.Fatalf("expected reply frame, got %+v (%v)", msg, err)
	}

	if err := conn.WriteJSON(inboundMessage{Type: "message", Message: " "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "error" {
		t.Fatalf("expected error frame, got %+v (%v)", msg, err)
	}
}
