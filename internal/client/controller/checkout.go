package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/aserras/web/backend/internal/client/featuregate"
	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/extract"
)

// MethodGate reports whether a gated capability is enabled.
type MethodGate interface {
	Enabled(kind, key string) bool
}

// CheckoutState is the payment step for one plan.
type CheckoutState struct {
	Plan         string
	Method       string
	ClientSecret string
	Reference    string
	Pending      bool
	Error        string
}

// Ready reports whether the payment form can be confirmed.
func (s CheckoutState) Ready() bool { return s.ClientSecret != "" }

// Checkout creates a payment intent for the selected plan.
type Checkout struct {
	deps Deps
	gate MethodGate
	m    model[CheckoutState]
}

func NewCheckout(deps Deps, gate MethodGate) *Checkout {
	return &Checkout{deps: deps, gate: gate}
}

func (c *Checkout) State() CheckoutState { return c.m.snapshot() }

func (c *Checkout) Subscribe(fn func(CheckoutState)) { c.m.subscribe(fn) }

func (c *Checkout) Reset() { c.m.reset(CheckoutState{}) }

// Start requests a payment intent for plan paid with method.
func (c *Checkout) Start(ctx context.Context, plan, method string) error {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return &InputError{Message: "Choose a plan to continue."}
	}
	method = pageconfig.NormalizeKey(method)
	if method == "" {
		method = "card"
	}
	if c.gate != nil && !c.gate.Enabled(featuregate.KindPaymentMethod, method) {
		return &InputError{Message: "That payment method is not available."}
	}
	if err := c.deps.guard(); err != nil {
		return err
	}

	gen, ok := c.m.begin(func(s *CheckoutState) {
		*s = CheckoutState{Plan: plan, Method: method, Pending: true}
	})
	if !ok {
		return ErrBusy
	}

	payload, err := c.deps.Requests.RequestEndpoint(ctx, pageconfig.EndpointPaymentIntent,
		authed(http.MethodPost, map[string]string{"planId": plan, "method": method}))

	var secret, reference string
	if err == nil {
		secret = extract.First(payload, extract.Field("clientSecret"), extract.Field("client_secret"), extract.Nested("data", "client_secret"))
		reference = extract.First(payload, extract.Field("reference"), extract.Field("id"), extract.Field("payment_intent"))
		if secret == "" {
			err = &InputError{Message: "The payment could not be prepared. Please try again."}
		}
	}

	var applied bool
	if err != nil {
		msg := c.deps.inlineError(err)
		applied = c.m.finish(gen, func(s *CheckoutState) {
			s.Pending = false
			s.Error = msg
		})
	} else {
		applied = c.m.finish(gen, func(s *CheckoutState) {
			s.Pending = false
			s.ClientSecret = secret
			s.Reference = reference
		})
	}
	return settle(applied, err)
}
