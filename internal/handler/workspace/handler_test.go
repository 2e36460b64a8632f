package workspace

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/brain"
)

type fakeBrain struct {
	payload map[string]any
	err     error
	token   string
	size    string
}

func (f *fakeBrain) Image(_ context.Context, token, prompt, size string) (map[string]any, error) {
	f.token, f.size = token, size
	return f.payload, f.err
}

func (f *fakeBrain) Code(_ context.Context, token, instructions, language, model string) (map[string]any, error) {
	f.token = token
	return f.payload, f.err
}

type fakeCoder struct {
	code string
	err  error
}

func (f fakeCoder) GenerateCode(context.Context, string, string) (string, error) {
	return f.code, f.err
}

func setupRouter(upstream Upstream, coder Coder) *chi.Mux {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := account.Identity{Email: "ada@example.com", Token: "tok"}
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), id)))
		})
	})
	New(upstream, coder).RegisterRoutes(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestImageDefaultsSizeAndExtractsImages(t *testing.T) {
	upstream := &fakeBrain{payload: map[string]any{"data": []any{map[string]any{"url": "https://cdn/x.png"}}}}
	r := setupRouter(upstream, nil)

	resp := post(r, "/image", `{"prompt":"a lighthouse"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if upstream.size != DefaultImageSize || upstream.token != "tok" {
		t.Fatalf("unexpected forwarded request size=%q token=%q", upstream.size, upstream.token)
	}
	if !strings.Contains(resp.Body.String(), `"images":["https://cdn/x.png"]`) {
		t.Fatalf("expected normalised images, got %s", resp.Body.String())
	}
}

func TestImageValidation(t *testing.T) {
	r := setupRouter(&fakeBrain{payload: map[string]any{}}, nil)

	if resp := post(r, "/image", `{"prompt":"  "}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty prompt, got %d", resp.Code)
	}
	long := `{"prompt":"` + strings.Repeat("x", MaxPromptLength+1) + `"}`
	if resp := post(r, "/image", long); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for long prompt, got %d", resp.Code)
	}
}

func TestImageWithoutBrain(t *testing.T) {
	r := setupRouter(nil, fakeCoder{code: "x"})

	resp := post(r, "/image", `{"prompt":"a lighthouse"}`)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestCodeUpstreamError(t *testing.T) {
	r := setupRouter(&fakeBrain{err: &brain.APIError{Status: http.StatusForbidden, Detail: "Plan required"}}, nil)

	resp := post(r, "/code", `{"instructions":"sort a list"}`)
	if resp.Code != http.StatusForbidden || !strings.Contains(resp.Body.String(), "Plan required") {
		t.Fatalf("expected relayed 403, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestCodeLocalFallback(t *testing.T) {
	r := setupRouter(nil, fakeCoder{code: "print('hi')"})

	resp := post(r, "/code", `{"instructions":"say hi","language":"python"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"code":"print('hi')"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	r = setupRouter(nil, fakeCoder{err: errors.New("offline")})
	if resp := post(r, "/code", `{"instructions":"say hi"}`); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on model failure, got %d", resp.Code)
	}

	r = setupRouter(nil, nil)
	if resp := post(r, "/code", `{"instructions":"say hi"}`); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without any backend, got %d", resp.Code)
	}
}

func TestCodeValidation(t *testing.T) {
	r := setupRouter(nil, fakeCoder{code: "x"})

	if resp := post(r, "/code", `{"instructions":""}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	long := `{"instructions":"x","language":"` + strings.Repeat("l", MaxLanguageLength+1) + `"}`
	if resp := post(r, "/code", long); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for long language, got %d", resp.Code)
	}
}
