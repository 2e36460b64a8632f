// Package site serves the contact form and the health and ops probes.
package site

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aserras/web/backend/pkg/utils"
)

const contactThanks = "Thank you for contacting us. Our concierge team will follow up soon."

// Status is what /ops reports about the deployment.
type Status struct {
	BrainConfigured  bool
	CoreConfigured   bool
	StripeConfigured bool
}

// Handler serves /api/contact/send, /health and /ops.
type Handler struct {
	status Status
}

// New creates the site handler.
func New(status Status) *Handler {
	return &Handler{status: status}
}

// RegisterAPIRoutes mounts the endpoints served under /api.
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Post("/contact/send", h.handleContact)
}

// RegisterRoutes mounts the root level probes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ops", h.handleOps)
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "Name, email and message are required")
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "A valid email address is required")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"message":   contactThanks,
		"reference": "contact_" + uuid.NewString(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleOps(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"brain":                 map[string]bool{"configured": h.status.BrainConfigured},
		"core":                  map[string]bool{"configured": h.status.CoreConfigured},
		"frontend":              map[string]bool{"ok": true},
		"stripe":                map[string]bool{"configured": h.status.StripeConfigured},
		"stripe_secret_present": h.status.StripeConfigured,
	})
}
