// Package auth serves login, signup and logout. With a Brain configured the
// credentials are forwarded upstream; otherwise sessions are issued locally.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aserras/web/backend/internal/extract"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/brain"
	"github.com/aserras/web/backend/pkg/utils"
)

const offlineMessage = "Aserras Brain is temporarily offline. Please try again soon."

// Upstream is the part of the Brain API auth uses.
type Upstream interface {
	Login(ctx context.Context, email, password string) (map[string]any, error)
	Register(ctx context.Context, name, email, password string) (map[string]any, error)
}

// Handler serves /auth/*.
type Handler struct {
	accounts *account.Service
	upstream Upstream
}

// New creates the auth handler. upstream nil selects local sessions.
func New(accounts *account.Service, upstream Upstream) *Handler {
	return &Handler{accounts: accounts, upstream: upstream}
}

// RegisterRoutes mounts the auth endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/signup", h.handleSignup)
	r.Post("/auth/logout", h.handleLogout)
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	FullNameAlt string `json:"full_name"`
}

func (c credentials) name() string {
	for _, v := range []string{c.FullName, c.FullNameAlt, c.Name} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.upstream == nil {
		session, err := h.accounts.Login(req.Email, req.Password)
		h.respondSession(w, r, session, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		utils.RespondError(w, http.StatusBadRequest, "Email and password are required.")
		return
	}
	payload, err := h.upstream.Login(r.Context(), email, password)
	h.respondUpstream(w, r, payload, err, true)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.upstream == nil {
		session, err := h.accounts.Signup(req.name(), req.Email, req.Password)
		h.respondSession(w, r, session, err)
		return
	}

	name := req.name()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if name == "" || email == "" || password == "" {
		utils.RespondError(w, http.StatusBadRequest, "All fields are required.")
		return
	}
	payload, err := h.upstream.Register(r.Context(), name, email, password)
	h.respondUpstream(w, r, payload, err, false)
}

// handleLogout is stateless: bearer tokens live in the browser.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondSession(w http.ResponseWriter, r *http.Request, session account.Session, err error) {
	var invalid *account.ValidationError
	switch {
	case errors.As(err, &invalid):
		utils.RespondError(w, http.StatusBadRequest, invalid.Message)
	case err != nil:
		logging.LogHTTPRequest(r, http.StatusInternalServerError, err.Error())
		utils.RespondError(w, http.StatusInternalServerError, "Unable to open a session")
	default:
		utils.RespondJSON(w, http.StatusOK, session)
	}
}

// respondUpstream relays a Brain auth answer with the token and redirect
// normalised. A login without a token is an error; a signup may omit it.
func (h *Handler) respondUpstream(w http.ResponseWriter, r *http.Request, payload map[string]any, err error, tokenRequired bool) {
	if err != nil {
		status, message := brain.StatusFor(err)
		if errors.Is(err, brain.ErrUnavailable) {
			message = offlineMessage
		}
		logging.LogHTTPRequest(r, status, err.Error())
		utils.RespondError(w, status, message)
		return
	}

	token := extract.Token(payload)
	if token == "" && tokenRequired {
		utils.RespondError(w, http.StatusBadGateway, "Login succeeded but no token was returned.")
		return
	}

	body := make(map[string]any, len(payload)+4)
	for k, v := range payload {
		body[k] = v
	}
	body["status"] = "ok"
	if token != "" {
		body["token"] = token
		body["tokenType"] = account.TokenType
	}
	if redirect := extract.Redirect(payload); redirect != "" {
		body["redirect"] = redirect
	} else {
		body["redirect"] = account.DashboardRedirect
	}
	utils.RespondJSON(w, http.StatusOK, body)
}
