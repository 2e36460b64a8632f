// Package page renders the site's HTML pages. Every page carries the JSON
// globals the UI runtime boots from.
package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/payment"
	"github.com/aserras/web/backend/pkg/utils"
)

type pageDef struct {
	path  string
	file  string
	title string
	nav   string
}

var pages = []pageDef{
	{"/", "index.html", "Aserras AI", "home"},
	{"/about", "about.html", "About", "about"},
	{"/contact", "contact.html", "Contact", "contact"},
	{"/pricing", "pricing.html", "Pricing", "pricing"},
	{"/upgrade", "upgrade.html", "Upgrade", "pricing"},
	{"/checkout", "checkout.html", "Checkout", "pricing"},
	{"/settings", "settings.html", "Settings", "settings"},
	{"/login", "login.html", "Sign in", "login"},
	{"/signup", "signup.html", "Create account", "signup"},
	{"/forgot", "forgot.html", "Reset password", "login"},
	{"/dashboard", "dashboard.html", "Dashboard", "dashboard"},
	{"/chat", "chat.html", "Chat", "chat"},
	{"/image", "image.html", "Image Studio", "image"},
	{"/code", "code.html", "Automation Studio", "code"},
	{"/history", "history.html", "History", "history"},
	{"/terms", "terms.html", "Terms", "terms"},
	{"/privacy", "privacy.html", "Privacy", "privacy"},
}

var (
	notFoundPage = pageDef{file: "404.html", title: "Not found", nav: "error"}
	errorPage    = pageDef{file: "500.html", title: "Server error", nav: "error"}
)

// Options configure what every page injects.
type Options struct {
	Flags     pageconfig.UIConfig
	APIBase   string
	Endpoints map[string]string
	// Resolver marks a page authenticated when the request carries a usable
	// bearer token; nil renders every page as a guest.
	Resolver middleware.IdentityResolver
}

// Handler serves pages and static assets.
type Handler struct {
	templates map[string]*template.Template
	static    fs.FS
	opts      Options
	config    template.JS
	ui        template.JS
	log       *zap.Logger
}

type pageData struct {
	Title  string
	Nav    string
	Theme  string
	Year   int
	Config template.JS
	UI     template.JS
	State  template.JS
	Plans  []payment.Plan
	Plan   payment.Plan
}

// New parses the templates under assets/templates and serves assets/static.
func New(assets fs.FS, opts Options) (*Handler, error) {
	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	h := &Handler{
		templates: make(map[string]*template.Template),
		static:    static,
		opts:      opts,
		log:       logging.Named("page"),
	}
	all := append([]pageDef{notFoundPage, errorPage}, pages...)
	for _, p := range all {
		if _, ok := h.templates[p.file]; ok {
			continue
		}
		tmpl, err := template.ParseFS(assets, "templates/layout.html", "templates/"+p.file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p.file, err)
		}
		h.templates[p.file] = tmpl
	}

	if h.config, err = marshalJS(pageconfig.RuntimeConfig{BaseAPIURL: opts.APIBase, Endpoints: opts.Endpoints}); err != nil {
		return nil, err
	}
	if h.ui, err = marshalJS(opts.Flags); err != nil {
		return nil, err
	}
	return h, nil
}

// RegisterRoutes mounts every page, robots.txt, sitemap.xml and /static/*.
func (h *Handler) RegisterRoutes(r chi.Router) {
	for _, p := range pages {
		p := p
		r.Get(p.path, func(w http.ResponseWriter, r *http.Request) {
			h.render(w, r, http.StatusOK, p)
		})
	}

	r.Get("/robots.txt", h.serveFile("robots.txt", "text/plain; charset=utf-8"))
	r.Get("/sitemap.xml", h.serveFile("sitemap.xml", "application/xml"))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.static))))
}

// NotFound answers unknown API paths with JSON and everything else with the
// 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		utils.RespondError(w, http.StatusNotFound, "Not Found")
		return
	}
	h.render(w, r, http.StatusNotFound, notFoundPage)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, p pageDef) {
	data := pageData{
		Title:  p.title,
		Nav:    p.nav,
		Theme:  h.theme(),
		Year:   time.Now().Year(),
		Config: h.config,
		UI:     h.ui,
		State:  h.state(r),
		Plans:  payment.Plans(),
	}
	if p.file == "checkout.html" {
		data.Plan = payment.CheckoutPlan(r.URL.Query().Get("plan"))
	}

	var buf bytes.Buffer
	if err := h.templates[p.file].ExecuteTemplate(&buf, "layout", data); err != nil {
		h.log.Error("render page failed", zap.String("page", p.file), zap.Error(err))
		if p.file != errorPage.file {
			h.render(w, r, http.StatusInternalServerError, errorPage)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) serveFile(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(h.static, name)
		if err != nil {
			h.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

func (h *Handler) theme() string {
	if t := strings.ToLower(h.opts.Flags.DefaultTheme); t == "light" {
		return t
	}
	return "dark"
}

func (h *Handler) state(r *http.Request) template.JS {
	state := pageconfig.UIState{}
	if h.opts.Resolver != nil {
		if header := r.Header.Get("Authorization"); header != "" {
			_, err := h.opts.Resolver.Resolve(header)
			state.IsAuthenticated = err == nil
		}
	}
	js, _ := marshalJS(state)
	return js
}

// marshalJS encodes v for a JSON script block. json.Marshal escapes '<', '>'
// and '&', so the result cannot close the element.
func marshalJS(v any) (template.JS, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode page globals: %w", err)
	}
	return template.JS(data), nil
}
