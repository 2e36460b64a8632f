// Package payment serves payment intents, subscription checkout, webhooks and
// the PayPal placeholders.
package payment

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/payment"
	"github.com/aserras/web/backend/pkg/utils"
)

const (
	maxWebhookBytes = 64 << 10

	upgradeScheduledMessage = "Your upgrade request has been scheduled. We'll email confirmation shortly."
)

// Options carries the configuration the handler reports or branches on.
type Options struct {
	PayPalEnabled  bool
	SelfTestEnv    map[string]bool
	AllowedOrigins []string
}

// Handler serves /payment/*, /payments/* and /paypal/*.
type Handler struct {
	payments *payment.Service
	opts     Options
	log      *zap.Logger
}

// New creates the payment handler.
func New(payments *payment.Service, opts Options) *Handler {
	return &Handler{payments: payments, opts: opts, log: logging.Named("payment")}
}

// RegisterRoutes mounts the payment endpoints. requireAuth guards the
// subscription routes that act on the caller's account.
func (h *Handler) RegisterRoutes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/payment/plans", h.handlePlans)
	r.Post("/payment/intent", h.handleIntent)
	r.Post("/payment/webhook", h.handleWebhook)
	r.Post("/payment/create", h.handleLegacyCreate)
	r.Get("/payment/selftest", h.handleSelfTest)

	r.With(requireAuth).Post("/payments/create-checkout-session", h.handleCheckoutSession)
	r.With(requireAuth).Get("/payments/subscription-status", h.handleSubscriptionStatus)
	r.Post("/payments/webhook", h.handleSubscriptionWebhook)

	if h.opts.PayPalEnabled {
		r.Post("/paypal/order", h.handlePayPalOrder)
		r.Post("/paypal/capture", h.handlePayPalCapture)
	}
}

func (h *Handler) handlePlans(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{"plans": payment.Plans()})
}

type intentRequest struct {
	PlanID      string `json:"plan_id"`
	PlanIDCamel string `json:"planId"`
	Email       string `json:"email"`
}

func (req intentRequest) plan() string {
	if p := strings.TrimSpace(req.PlanID); p != "" {
		return p
	}
	return strings.TrimSpace(req.PlanIDCamel)
}

func (h *Handler) handleIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent, err := h.payments.CreateIntent(r.Context(), req.plan(), strings.TrimSpace(req.Email))
	switch {
	case errors.Is(err, payment.ErrUnknownPlan):
		utils.RespondError(w, http.StatusNotFound, "Unknown plan identifier")
	case errors.Is(err, payment.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "Payments are not configured")
	case errors.Is(err, payment.ErrMissingClientSecret):
		utils.RespondError(w, http.StatusBadGateway, "Stripe did not return a client secret")
	case err != nil:
		logging.LogHTTPRequest(r, http.StatusBadGateway, err.Error())
		utils.RespondError(w, http.StatusBadGateway, "Unable to create payment intent")
	default:
		utils.RespondJSON(w, http.StatusOK, map[string]string{"client_secret": intent.ClientSecret})
	}
}

// handleWebhook is the strict webhook: configuration and signature problems
// are reported to the sender.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	signature := r.Header.Get("Stripe-Signature")

	ev, err := h.payments.VerifyEvent(payload, signature)
	switch {
	case errors.Is(err, payment.ErrWebhookNotConfigured), errors.Is(err, payment.ErrNotConfigured):
		utils.RespondError(w, http.StatusInternalServerError, "Stripe webhook secret is not configured")
		return
	case signature == "":
		utils.RespondError(w, http.StatusBadRequest, "Missing Stripe signature header")
		return
	case err != nil:
		logging.LogHTTPRequest(r, http.StatusBadRequest, err.Error())
		utils.RespondError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	h.payments.HandleEvent(ev)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleSubscriptionWebhook always answers 200 so the sender never retries;
// unverifiable events are dropped.
func (h *Handler) handleSubscriptionWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err == nil {
		var ev payment.Event
		ev, err = h.payments.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
		if err == nil {
			h.payments.HandleEvent(ev)
		}
	}
	if err != nil {
		h.log.Debug("dropping subscription webhook", zap.Error(err))
	}
	w.WriteHeader(http.StatusOK)
}

type legacyRequest struct {
	PlanID      string `json:"planId"`
	PlanIDSnake string `json:"plan_id"`
}

func (h *Handler) handleLegacyCreate(w http.ResponseWriter, r *http.Request) {
	var req legacyRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	planID := strings.TrimSpace(req.PlanID)
	if planID == "" {
		planID = strings.TrimSpace(req.PlanIDSnake)
	}

	reference, err := h.payments.ScheduleUpgrade(planID)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Missing plan identifier")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"planId":    planID,
		"message":   upgradeScheduledMessage,
		"reference": reference,
	})
}

func (h *Handler) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	origins := h.opts.AllowedOrigins
	if origins == nil {
		origins = []string{}
	}
	utils.RespondJSON(w, http.StatusOK, h.payments.SelfTest(r.Context(), h.opts.SelfTestEnv, origins))
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

func (h *Handler) handleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if id.Email == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid bearer token")
		return
	}

	var req checkoutRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	url, err := h.payments.CreateCheckoutSession(r.Context(), req.Plan, id.Email)
	switch {
	case errors.Is(err, payment.ErrUnknownPlan):
		utils.RespondError(w, http.StatusNotFound, "Unknown plan identifier")
	case errors.Is(err, payment.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "Payments are not configured")
	case errors.Is(err, payment.ErrMissingCheckoutURL):
		utils.RespondError(w, http.StatusBadGateway, "Stripe did not return a checkout URL")
	case err != nil:
		logging.LogHTTPRequest(r, http.StatusBadGateway, err.Error())
		utils.RespondError(w, http.StatusBadGateway, "Unable to create checkout session")
	default:
		utils.RespondJSON(w, http.StatusCreated, map[string]string{"url": url})
	}
}

func (h *Handler) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if id.Email == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid bearer token")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"plan": h.payments.PlanFor(id.Email)})
}

func (h *Handler) handlePayPalOrder(w http.ResponseWriter, r *http.Request) {
	order := h.payments.CreatePayPalOrder()
	utils.RespondJSON(w, http.StatusNotImplemented, map[string]string{"id": order.ID, "status": "not_implemented"})
}

type captureRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handlePayPalCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.payments.CapturePayPalOrder(req.ID)
	utils.RespondJSON(w, http.StatusNotImplemented, map[string]any{"id": req.ID, "status": "not_implemented"})
}
