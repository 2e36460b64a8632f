package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aserras/web/backend/internal/client/pageconfig"
)

type staticTokens string

func (s staticTokens) Token() (string, bool) { return string(s), s != "" }

type countingNotifier struct {
	calls []string
}

func (c *countingNotifier) Notify(category, message string) bool {
	c.calls = append(c.calls, category+":"+message)
	return true
}

func resolved(base, origin string) pageconfig.Resolved {
	cfg := pageconfig.Defaults()
	cfg.BaseAPIURL = base
	cfg.Origin = origin
	return cfg
}

func deadURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func TestCandidatesForPath(t *testing.T) {
	g := New(resolved("https://api.example.com/", "https://www.example.com"), nil)

	got := g.Candidates("api/chat/send")
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", got)
	}
	if got[0] != "https://api.example.com/api/chat/send" || got[1] != "https://www.example.com/api/chat/send" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestCandidatesForAbsoluteURL(t *testing.T) {
	g := New(resolved("", "https://www.example.com"), nil)

	got := g.Candidates("https://brain.example.com/v1/history?limit=5")
	if len(got) != 2 || got[1] != "https://www.example.com/v1/history?limit=5" {
		t.Fatalf("unexpected candidates: %v", got)
	}
}

func TestCandidatesDeduplicated(t *testing.T) {
	g := New(resolved("https://www.example.com", "https://www.example.com"), nil)
	if got := g.Candidates("/health"); len(got) != 1 {
		t.Fatalf("expected duplicates removed, got %v", got)
	}
}

func TestNoTargetsWithoutIO(t *testing.T) {
	g := New(resolved("", ""), nil)
	_, err := g.Request(context.Background(), "/api/chat/send", Options{})
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestAuthWithoutTokenFailsBeforeIO(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	g := New(resolved(srv.URL, ""), staticTokens(""))
	_, err := g.Request(context.Background(), "/api/chat/send", Options{Auth: true, Body: map[string]string{"message": "hi"}})

	var expired *SessionExpiredError
	if !errors.As(err, &expired) || expired.Status != 0 {
		t.Fatalf("expected SessionExpiredError without status, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no request should have been sent")
	}
}

func TestFallsThroughToOriginOnNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reply":"hello"}`))
	}))
	defer srv.Close()

	g := New(resolved(deadURL(), srv.URL), staticTokens("abc"))
	payload, err := g.Request(context.Background(), "/api/chat/send", Options{Auth: true, Body: map[string]string{"message": "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["reply"] != "hello" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHTTPErrorDoesNotFallThrough(t *testing.T) {
	var originHits int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&originHits, 1)
	}))
	defer origin.Close()
	base := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer base.Close()

	g := New(resolved(base.URL, origin.URL), nil)
	_, err := g.Request(context.Background(), "/x", Options{})

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Status != http.StatusBadRequest {
		t.Fatalf("expected ClientError 400, got %v", err)
	}
	if atomic.LoadInt32(&originHits) != 0 {
		t.Fatal("origin should not be tried after an HTTP answer")
	}
}

func TestAllCandidatesDownReturnsNetworkErrorAndToasts(t *testing.T) {
	notifier := &countingNotifier{}
	g := New(resolved(deadURL(), deadURL()), nil, WithNotifier(notifier))

	_, err := g.Request(context.Background(), "/health", Options{})
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected one toast, got %v", notifier.calls)
	}
}

func TestUnauthorizedInvokesExpiryHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var calls int
	var keep bool
	g := New(resolved(srv.URL, ""), staticTokens("abc"), WithExpiryHandler(func(k bool) {
		calls++
		keep = k
	}))

	_, err := g.Request(context.Background(), "/api/user/history", Options{Auth: true, KeepTokenOnExpiry: true})
	if !IsSessionExpired(err) {
		t.Fatalf("expected SessionExpiredError, got %v", err)
	}
	if calls != 1 || !keep {
		t.Fatalf("expiry hook calls=%d keep=%v", calls, keep)
	}
}

func TestServerErrorToastsService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"Brain unavailable"}`))
	}))
	defer srv.Close()

	notifier := &countingNotifier{}
	g := New(resolved(srv.URL, ""), nil, WithNotifier(notifier))

	_, err := g.Request(context.Background(), "/api/image", Options{})
	var serverErr *ServerError
	if !errors.As(err, &serverErr) || serverErr.Message != "Brain unavailable" {
		t.Fatalf("expected ServerError with detail, got %v", err)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != "service:"+MessageServer {
		t.Fatalf("unexpected toasts: %v", notifier.calls)
	}
}

func TestClientErrorMessageFallbacks(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"detail", "application/json", `{"detail":"Invalid credentials"}`, "Invalid credentials"},
		{"message", "application/json", `{"message":"Email taken"}`, "Email taken"},
		{"error", "application/json", `{"error":"bad input"}`, "bad input"},
		{"status text", "application/json", `{}`, "Unprocessable Entity"},
		{"plain text body", "text/plain; charset=utf-8", "Quota exceeded", "Quota exceeded"},
		{"html body", "text/html", "<html><body><h1>422</h1></body></html>", "Unprocessable Entity"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(resolved(srv.URL, ""), nil).Request(context.Background(), "/x", Options{})
			if got := UserMessage(err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResponseDecoding(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		contentType string
		body        string
		check       func(Payload) bool
	}{
		{"no content", http.StatusNoContent, "", "", func(p Payload) bool { return len(p) == 0 }},
		{"malformed json", http.StatusOK, "application/json", `{"reply":`, func(p Payload) bool { return len(p) == 0 }},
		{"json array", http.StatusOK, "application/json; charset=utf-8", `[1,2]`, func(p Payload) bool {
			list, ok := p["data"].([]any)
			return ok && len(list) == 2
		}},
		{"plain text", http.StatusOK, "text/plain", "pong", func(p Payload) bool { return p["text"] == "pong" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			payload, err := New(resolved(srv.URL, ""), nil).Request(context.Background(), "/x", Options{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.check(payload) {
				t.Fatalf("unexpected payload %v", payload)
			}
		})
	}
}

func TestRequestEndpointUnknownName(t *testing.T) {
	g := New(resolved("https://api.example.com", ""), nil)
	if _, err := g.RequestEndpoint(context.Background(), "nope", Options{}); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("expected ErrUnknownEndpoint, got %v", err)
	}
}

func TestUnauthorizedWithoutAuthIsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid credentials"}`))
	}))
	defer srv.Close()

	var calls int
	g := New(resolved(srv.URL, ""), nil, WithExpiryHandler(func(bool) { calls++ }))

	_, err := g.Request(context.Background(), "/api/auth/login", Options{Body: map[string]string{"email": "a@b.c"}})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Message != "Invalid credentials" {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if calls != 0 {
		t.Fatal("expiry hook must not run for unauthenticated requests")
	}
}
