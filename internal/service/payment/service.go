// Package payment creates payment intents and checkout sessions and keeps
// the plan bookkeeping fed by provider webhooks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/config"
	"github.com/aserras/web/backend/internal/logging"
)

var (
	ErrUnknownPlan          = errors.New("unknown plan identifier")
	ErrNotConfigured        = errors.New("payment provider is not configured")
	ErrWebhookNotConfigured = errors.New("webhook secret is not configured")
	ErrMissingClientSecret  = errors.New("provider did not return a client secret")
	ErrMissingCheckoutURL   = errors.New("provider did not return a checkout url")
)

// Record is the bookkeeping entry of one payment or checkout.
type Record struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId,omitempty"`
	Status    string    `json:"status,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Customer  string    `json:"customer,omitempty"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PayPalOrder tracks the PayPal stubs.
type PayPalOrder struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SelfTest summarises the payment configuration.
type SelfTest struct {
	Env            map[string]bool `json:"env"`
	AllowedOrigins []string        `json:"allowed_origins"`
	StripeOK       bool            `json:"stripe_ok"`
}

// Service owns payments state. All state is in memory.
type Service struct {
	cfg      config.PaymentsConfig
	provider Provider
	log      *zap.Logger
	now      func() time.Time

	mu            sync.RWMutex
	records       map[string]Record
	subscriptions map[string]string
	paypal        map[string]PayPalOrder
}

// NewService creates the payments service. provider may be nil when no
// processor is configured.
func NewService(cfg config.PaymentsConfig, provider Provider) *Service {
	return &Service{
		cfg:           cfg,
		provider:      provider,
		log:           logging.Named("payment"),
		now:           func() time.Time { return time.Now().UTC() },
		records:       make(map[string]Record),
		subscriptions: make(map[string]string),
		paypal:        make(map[string]PayPalOrder),
	}
}

// CreateIntent opens a one-off payment for planID and returns its client secret.
func (s *Service) CreateIntent(ctx context.Context, planID, email string) (Intent, error) {
	plan, ok := LookupPlan(planID)
	if !ok || !plan.Billable() {
		return Intent{}, ErrUnknownPlan
	}
	if s.provider == nil {
		return Intent{}, ErrNotConfigured
	}

	metadata := map[string]string{"plan_id": plan.ID}
	if email != "" {
		metadata["email"] = email
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, IntentParams{
		Amount:   plan.Amount,
		Currency: plan.Currency,
		Metadata: metadata,
	})
	if err != nil {
		s.log.Warn("create payment intent failed", zap.String("plan", plan.ID), zap.Error(err))
		return Intent{}, err
	}
	if intent.ClientSecret == "" {
		return Intent{}, ErrMissingClientSecret
	}

	s.mark(intent.ID, func(r *Record) {
		r.PlanID = plan.ID
		r.Status = intent.Status
		r.Amount = plan.Amount
		r.Currency = plan.Currency
		r.Email = email
	})
	return intent, nil
}

// PriceForPlan maps a subscription plan to its provider price id.
func (s *Service) PriceForPlan(plan string) (string, bool) {
	var price string
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "pro":
		price = s.cfg.PricePro
	case "enterprise":
		price = s.cfg.PriceEnterprise
	}
	return price, price != ""
}

// CreateCheckoutSession starts a hosted subscription checkout for email.
func (s *Service) CreateCheckoutSession(ctx context.Context, plan, email string) (string, error) {
	price, ok := s.PriceForPlan(plan)
	if !ok {
		return "", ErrUnknownPlan
	}
	if s.provider == nil {
		return "", ErrNotConfigured
	}

	plan = strings.ToLower(strings.TrimSpace(plan))
	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		PriceID:    price,
		Email:      email,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata:   map[string]string{"plan": plan, "email": email},
	})
	if err != nil {
		s.log.Warn("create checkout session failed", zap.String("plan", plan), zap.Error(err))
		return "", err
	}
	if url == "" {
		return "", ErrMissingCheckoutURL
	}
	return url, nil
}

// VerifyEvent checks a webhook signature against the configured secret.
func (s *Service) VerifyEvent(payload []byte, signature string) (Event, error) {
	if s.cfg.StripeWebhookSecret == "" {
		return Event{}, ErrWebhookNotConfigured
	}
	if s.provider == nil {
		return Event{}, ErrNotConfigured
	}
	return s.provider.ConstructEvent(payload, signature, s.cfg.StripeWebhookSecret)
}

// HandleEvent applies a verified event to the payment records and the
// subscription table. Unknown event types are ignored.
func (s *Service) HandleEvent(ev Event) {
	obj := ev.Object
	metadata := stringMap(obj["metadata"])

	switch ev.Type {
	case "payment_intent.succeeded":
		id := stringField(obj, "id")
		if id == "" {
			return
		}
		amount := int64Field(obj, "amount_received")
		if amount == 0 {
			amount = int64Field(obj, "amount")
		}
		s.mark(id, func(r *Record) {
			r.Status = "succeeded"
			r.PlanID = firstNonEmpty(metadata["plan_id"], r.PlanID)
			r.Amount = amount
			r.Currency = firstNonEmpty(stringField(obj, "currency"), r.Currency)
			r.Customer = stringField(obj, "customer")
			r.Email = firstNonEmpty(metadata["email"], r.Email)
		})
		if email, plan := metadata["email"], metadata["plan_id"]; email != "" && plan != "" {
			s.SetPlan(email, plan)
		}

	case "checkout.session.completed", "invoice.paid":
		if id := stringField(obj, "id"); id != "" {
			s.mark(id, func(r *Record) {
				r.Status = "succeeded"
				r.PlanID = firstNonEmpty(metadata["plan_id"], metadata["plan"], r.PlanID)
				r.Customer = stringField(obj, "customer")
			})
		}
		if ev.Type == "checkout.session.completed" {
			email := firstNonEmpty(
				metadata["email"],
				stringMap(obj["customer_details"])["email"],
				stringField(obj, "customer_email"),
			)
			if plan := metadata["plan"]; email != "" && plan != "" {
				s.SetPlan(email, plan)
			}
		}

	case "customer.subscription.updated":
		email := metadata["email"]
		if email == "" {
			return
		}
		switch status := stringField(obj, "status"); status {
		case "active":
			if plan := metadata["plan"]; plan != "" {
				s.SetPlan(email, plan)
			}
		case "canceled", "incomplete", "incomplete_expired", "past_due", "unpaid":
			s.SetPlan(email, DefaultPlan)
		}

	case "customer.subscription.deleted":
		if email := metadata["email"]; email != "" {
			s.SetPlan(email, DefaultPlan)
		}

	default:
		s.log.Debug("ignoring webhook event", zap.String("type", ev.Type))
	}
}

// SetPlan records the subscription plan of email.
func (s *Service) SetPlan(email, plan string) {
	email = strings.ToLower(strings.TrimSpace(email))
	plan = strings.ToLower(strings.TrimSpace(plan))
	if email == "" || plan == "" {
		return
	}
	s.mu.Lock()
	s.subscriptions[email] = plan
	s.mu.Unlock()
	s.log.Info("subscription plan updated", zap.String("email", email), zap.String("plan", plan))
}

// PlanFor returns the subscription plan of email, free by default.
func (s *Service) PlanFor(email string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if plan, ok := s.subscriptions[strings.ToLower(strings.TrimSpace(email))]; ok {
		return plan
	}
	return DefaultPlan
}

// Record returns the bookkeeping entry for id.
func (s *Service) Record(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// ScheduleUpgrade is the legacy upgrade request; it only hands out a reference.
func (s *Service) ScheduleUpgrade(planID string) (string, error) {
	if strings.TrimSpace(planID) == "" {
		return "", fmt.Errorf("%w: missing", ErrUnknownPlan)
	}
	reference := "payment_" + uuid.NewString()
	s.mark(reference, func(r *Record) {
		r.PlanID = strings.ToLower(strings.TrimSpace(planID))
		r.Status = "scheduled"
	})
	return reference, nil
}

// SelfTest reports which payment settings are present and whether the
// provider accepts our key. Connection failures do not fail the check.
func (s *Service) SelfTest(ctx context.Context, env map[string]bool, origins []string) SelfTest {
	summary := map[string]bool{
		"STRIPE_SECRET_KEY":              s.cfg.StripeConfigured(),
		"STRIPE_WEBHOOK_SECRET":          s.cfg.StripeWebhookSecret != "",
		"OPTIONAL_PAYPAL_ENABLED":        s.cfg.PayPalEnabled,
		"OPTIONAL_PAYPAL_WEBHOOK_SECRET": s.cfg.PayPalWebhookSecret != "",
	}
	for k, v := range env {
		summary[k] = v
	}

	ok := s.cfg.StripeConfigured() && s.provider != nil
	if ok {
		if err := s.provider.CheckCredentials(ctx); err != nil && !errors.Is(err, ErrProviderUnreachable) {
			s.log.Warn("stripe self-test failed", zap.Error(err))
			ok = false
		}
	}
	return SelfTest{Env: summary, AllowedOrigins: origins, StripeOK: ok}
}

// CreatePayPalOrder records a PayPal order; capture is not implemented.
func (s *Service) CreatePayPalOrder() PayPalOrder {
	now := s.now()
	order := PayPalOrder{ID: "paypal-order_" + uuid.NewString(), Status: "created", CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.paypal[order.ID] = order
	s.mu.Unlock()
	return order
}

// CapturePayPalOrder marks a known order; it reports whether id was known.
func (s *Service) CapturePayPalOrder(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.paypal[id]
	if !ok {
		return false
	}
	order.Status = "capture_not_implemented"
	order.UpdatedAt = s.now()
	s.paypal[id] = order
	return true
}

func (s *Service) mark(id string, fn func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.ID = id
	fn(&r)
	r.UpdatedAt = s.now()
	s.records[id] = r
}

func stringMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]any:
		for k, val := range m {
			if str, ok := val.(string); ok {
				out[k] = str
			}
		}
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	}
	return out
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func int64Field(obj map[string]any, key string) int64 {
	switch n := obj[key].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
