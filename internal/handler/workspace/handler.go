// Package workspace serves the image and code studios.
package workspace

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/extract"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/brain"
	"github.com/aserras/web/backend/pkg/utils"
)

const (
	MaxPromptLength       = 1000
	MaxSizeLength         = 20
	MaxInstructionsLength = 4000
	MaxLanguageLength     = 100
	MaxModelLength        = 200

	DefaultImageSize = "1024x1024"
)

// Upstream is the part of the Brain API the studios use.
type Upstream interface {
	Image(ctx context.Context, token, prompt, size string) (map[string]any, error)
	Code(ctx context.Context, token, instructions, language, model string) (map[string]any, error)
}

// Coder generates code without the Brain.
type Coder interface {
	GenerateCode(ctx context.Context, instructions, language string) (string, error)
}

// Handler serves /image and /code.
type Handler struct {
	upstream Upstream
	coder    Coder
	log      *zap.Logger
}

// New creates the studio handler; either dependency may be nil.
func New(upstream Upstream, coder Coder) *Handler {
	return &Handler{upstream: upstream, coder: coder, log: logging.Named("workspace")}
}

// RegisterRoutes mounts the studio endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/image", h.handleImage)
	r.Post("/code", h.handleCode)
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	size := strings.TrimSpace(req.Size)
	switch {
	case prompt == "":
		utils.RespondError(w, http.StatusBadRequest, "Prompt cannot be empty")
		return
	case utf8.RuneCountInString(prompt) > MaxPromptLength:
		utils.RespondError(w, http.StatusBadRequest, "Prompt is too long")
		return
	case len(size) > MaxSizeLength:
		utils.RespondError(w, http.StatusBadRequest, "Size is invalid")
		return
	}
	if size == "" {
		size = DefaultImageSize
	}

	if h.upstream == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, brain.MessageUnavailable)
		return
	}

	id, _ := middleware.IdentityFrom(r.Context())
	payload, err := h.upstream.Image(r.Context(), id.Token, prompt, size)
	if err != nil {
		respondFailure(w, r, err)
		return
	}
	if _, ok := payload["images"]; !ok {
		if images := extract.Images(payload); len(images) > 0 {
			payload["images"] = images
		}
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}

type codeRequest struct {
	Instructions string `json:"instructions"`
	Language     string `json:"language"`
	Model        string `json:"model"`
}

func (h *Handler) handleCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	instructions := strings.TrimSpace(req.Instructions)
	language := strings.TrimSpace(req.Language)
	model := strings.TrimSpace(req.Model)
	switch {
	case instructions == "":
		utils.RespondError(w, http.StatusBadRequest, "Instructions cannot be empty")
		return
	case utf8.RuneCountInString(instructions) > MaxInstructionsLength:
		utils.RespondError(w, http.StatusBadRequest, "Instructions are too long")
		return
	case len(language) > MaxLanguageLength || len(model) > MaxModelLength:
		utils.RespondError(w, http.StatusBadRequest, "Language or model is invalid")
		return
	}

	id, _ := middleware.IdentityFrom(r.Context())
	switch {
	case h.upstream != nil:
		payload, err := h.upstream.Code(r.Context(), id.Token, instructions, language, model)
		if err != nil {
			respondFailure(w, r, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, payload)
	case h.coder != nil:
		code, err := h.coder.GenerateCode(r.Context(), instructions, language)
		if err != nil {
			h.log.Warn("local code generation failed", zap.Error(err))
			utils.RespondError(w, http.StatusServiceUnavailable, brain.MessageUnavailable)
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"code":     code,
			"language": language,
		})
	default:
		utils.RespondError(w, http.StatusServiceUnavailable, brain.MessageUnavailable)
	}
}

func respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, message := brain.StatusFor(err)
	logging.LogHTTPRequest(r, status, err.Error())
	utils.RespondError(w, status, message)
}
