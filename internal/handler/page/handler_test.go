package page

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/web"
)

type staticResolver struct{ token string }

func (s staticResolver) Resolve(header string) (account.Identity, error) {
	if header == "Bearer "+s.token {
		return account.Identity{Token: s.token}, nil
	}
	return account.Identity{}, errors.New("bad token")
}

func setupRouter(t *testing.T, opts Options) *chi.Mux {
	t.Helper()
	h, err := New(web.FS, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.NotFound(h.NotFound)
	return r
}

func get(r http.Handler, path string, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestEveryPageRenders(t *testing.T) {
	r := setupRouter(t, Options{})
	for _, p := range pages {
		resp := get(r, p.path, "")
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", p.path, resp.Code)
		}
		if !strings.Contains(resp.Body.String(), "<title>"+p.title) {
			t.Fatalf("%s: missing title", p.path)
		}
	}
}

func TestPagesInjectGlobals(t *testing.T) {
	r := setupRouter(t, Options{
		Flags: pageconfig.UIConfig{
			AuthProvidersEnabled:  []string{"email", "google"},
			PaymentMethodsEnabled: []string{},
			DefaultTheme:          "light",
		},
		APIBase: "https://api.aserras.com",
	})

	resp := get(r, "/login", "")
	page, err := pageconfig.ParseHTML(resp.Body, "https://aserras.com")
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	if page.Config == nil || page.Config.BaseAPIURL != "https://api.aserras.com" {
		t.Fatalf("unexpected runtime config %+v", page.Config)
	}
	if page.UI == nil || len(page.UI.AuthProvidersEnabled) != 2 || page.UI.PaymentMethodsEnabled == nil {
		t.Fatalf("unexpected ui config %+v", page.UI)
	}
	if page.State == nil || page.State.IsAuthenticated {
		t.Fatalf("expected guest state, got %+v", page.State)
	}
	if !strings.Contains(get(r, "/", "").Body.String(), `data-theme="light"`) {
		t.Fatalf("expected light theme")
	}
}

func TestAuthenticatedState(t *testing.T) {
	r := setupRouter(t, Options{Resolver: staticResolver{token: "good"}})

	page, _ := pageconfig.ParseHTML(get(r, "/dashboard", "Bearer good").Body, "")
	if page.State == nil || !page.State.IsAuthenticated {
		t.Fatalf("expected authenticated state")
	}
	page, _ = pageconfig.ParseHTML(get(r, "/dashboard", "Bearer bad").Body, "")
	if page.State == nil || page.State.IsAuthenticated {
		t.Fatalf("expected guest state for a bad token")
	}
}

func TestCheckoutSelectsPlan(t *testing.T) {
	r := setupRouter(t, Options{})

	if body := get(r, "/checkout?plan=elite", "").Body.String(); !strings.Contains(body, `data-plan="elite"`) || !strings.Contains(body, "$99") {
		t.Fatalf("expected elite plan on checkout")
	}
	if body := get(r, "/checkout?plan=unknown", "").Body.String(); !strings.Contains(body, `id="checkout-plan" data-plan="pro"`) {
		t.Fatalf("expected pro fallback on checkout")
	}
}

func TestNotFound(t *testing.T) {
	r := setupRouter(t, Options{})

	resp := get(r, "/nowhere", "")
	if resp.Code != http.StatusNotFound || !strings.Contains(resp.Body.String(), "Page not found") {
		t.Fatalf("expected html 404, got %d", resp.Code)
	}

	resp = get(r, "/api/nowhere", "")
	if resp.Code != http.StatusNotFound || !strings.Contains(resp.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("expected json 404, got %d %s", resp.Code, resp.Header().Get("Content-Type"))
	}
}

func TestStaticFiles(t *testing.T) {
	r := setupRouter(t, Options{})

	resp := get(r, "/robots.txt", "")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "Sitemap:") {
		t.Fatalf("unexpected robots.txt %d", resp.Code)
	}
	if resp := get(r, "/sitemap.xml", ""); resp.Header().Get("Content-Type") != "application/xml" {
		t.Fatalf("unexpected sitemap content type %q", resp.Header().Get("Content-Type"))
	}
	if resp := get(r, "/static/css/site.css", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected stylesheet, got %d", resp.Code)
	}
}
