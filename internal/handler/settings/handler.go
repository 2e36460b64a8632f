// Package settings serves profile, theme and model preferences.
package settings

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/brain"
	"github.com/aserras/web/backend/pkg/utils"
)

const (
	MaxNameLength     = 120
	MaxLanguageLength = 10
	MaxModelLength    = 200
)

// Upstream is the part of the Brain API settings uses.
type Upstream interface {
	Profile(ctx context.Context, token string) (map[string]any, error)
	UpdateProfile(ctx context.Context, token string, fields map[string]string) (map[string]any, error)
	Models(ctx context.Context, token string) ([]any, error)
}

// Handler serves /settings/*.
type Handler struct {
	accounts    *account.Service
	upstream    Upstream
	localModels []string
}

// New creates the settings handler. localModels is offered when no Brain is
// configured.
func New(accounts *account.Service, upstream Upstream, localModels []string) *Handler {
	return &Handler{accounts: accounts, upstream: upstream, localModels: localModels}
}

// RegisterRoutes mounts the settings endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings/profile", h.handleGetProfile)
	r.Post("/settings/profile", h.handleUpdateProfile)
	r.Post("/settings/theme", h.handleTheme)
	r.Get("/settings/models", h.handleModels)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if h.upstream != nil {
		profile, err := h.upstream.Profile(r.Context(), id.Token)
		if err != nil {
			respondFailure(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, profile)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "user": h.accounts.User(id.Owner())})
}

type profileRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	language := strings.TrimSpace(req.Language)
	model := strings.TrimSpace(req.Model)
	switch {
	case name == "":
		utils.RespondError(w, http.StatusBadRequest, "Name is required")
		return
	case utf8.RuneCountInString(name) > MaxNameLength:
		utils.RespondError(w, http.StatusBadRequest, "Name is too long")
		return
	case len(language) > MaxLanguageLength:
		utils.RespondError(w, http.StatusBadRequest, "Language is invalid")
		return
	case len(model) > MaxModelLength:
		utils.RespondError(w, http.StatusBadRequest, "Model is invalid")
		return
	}

	id, _ := middleware.IdentityFrom(r.Context())
	if h.upstream != nil {
		fields := map[string]string{"name": name}
		if language != "" {
			fields["language"] = language
		}
		if model != "" {
			fields["default_model"] = model
		}
		result, err := h.upstream.UpdateProfile(r.Context(), id.Token, fields)
		if err != nil {
			respondFailure(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, result)
		return
	}

	user, err := h.accounts.UpdateProfile(id.Owner(), name, language, model)
	if err != nil {
		respondValidation(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "user": user})
}

type themeRequest struct {
	Theme string `json:"theme"`
}

// handleTheme stores the preference locally in both modes; the browser keeps
// its own copy.
func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, _ := middleware.IdentityFrom(r.Context())
	theme, err := h.accounts.SetTheme(id.Owner(), req.Theme)
	if err != nil {
		respondValidation(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "theme": theme})
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if h.upstream != nil {
		id, _ := middleware.IdentityFrom(r.Context())
		models, err := h.upstream.Models(r.Context(), id.Token)
		if err != nil {
			respondFailure(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{"models": models})
		return
	}

	models := make([]map[string]string, 0, len(h.localModels))
	for _, m := range h.localModels {
		models = append(models, map[string]string{"id": m, "name": m})
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"models": models})
}

func respondValidation(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *account.ValidationError
	if errors.As(err, &invalid) {
		utils.RespondError(w, http.StatusBadRequest, invalid.Message)
		return
	}
	logging.LogHTTPRequest(r, http.StatusInternalServerError, err.Error())
	utils.RespondError(w, http.StatusInternalServerError, "Unable to save settings")
}

func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, message := brain.StatusFor(err)
	logging.LogHTTPRequest(r, status, err.Error())
	utils.RespondError(w, status, message)
}
