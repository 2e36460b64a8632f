package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aserras/web/backend/internal/config"
)

type fakeProvider struct {
	intentParams   IntentParams
	checkoutParams CheckoutParams
	intentErr      error
	credentialsErr error
	event          Event
	eventErr       error
}

func (f *fakeProvider) CreatePaymentIntent(_ context.Context, p IntentParams) (Intent, error) {
	f.intentParams = p
	if f.intentErr != nil {
		return Intent{}, f.intentErr
	}
	return Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Status: "requires_payment_method"}, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, p CheckoutParams) (string, error) {
	f.checkoutParams = p
	return "https://checkout.example.com/c/1", nil
}

func (f *fakeProvider) CheckCredentials(context.Context) error { return f.credentialsErr }

func (f *fakeProvider) ConstructEvent([]byte, string, string) (Event, error) {
	return f.event, f.eventErr
}

func testConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_1",
		PricePro:            "price_pro",
		SuccessURL:          "https://aserras.com/dashboard",
		CancelURL:           "https://aserras.com/pricing",
	}
}

func TestCreateIntentForPlan(t *testing.T) {
	fp := &fakeProvider{}
	svc := NewService(testConfig(), fp)

	intent, err := svc.CreateIntent(context.Background(), "PRO", "a@b.c")
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ClientSecret != "pi_1_secret" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if fp.intentParams.Amount != 2900 || fp.intentParams.Currency != "usd" || fp.intentParams.Metadata["plan_id"] != "pro" {
		t.Fatalf("unexpected params %+v", fp.intentParams)
	}
	rec, ok := svc.Record("pi_1")
	if !ok || rec.PlanID != "pro" || rec.Amount != 2900 {
		t.Fatalf("payment should be recorded, got %+v", rec)
	}
}

func TestCreateIntentUnknownPlan(t *testing.T) {
	svc := NewService(testConfig(), &fakeProvider{})
	for _, plan := range []string{"platinum", "free", ""} {
		if _, err := svc.CreateIntent(context.Background(), plan, ""); !errors.Is(err, ErrUnknownPlan) {
			t.Fatalf("plan %q: expected ErrUnknownPlan, got %v", plan, err)
		}
	}
}

func TestCreateIntentWithoutProvider(t *testing.T) {
	svc := NewService(config.PaymentsConfig{}, nil)
	if _, err := svc.CreateIntent(context.Background(), "basic", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCheckoutSessionUsesPrice(t *testing.T) {
	fp := &fakeProvider{}
	svc := NewService(testConfig(), fp)

	url, err := svc.CreateCheckoutSession(context.Background(), "Pro", "a@b.c")
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if url == "" || fp.checkoutParams.PriceID != "price_pro" || fp.checkoutParams.Metadata["plan"] != "pro" {
		t.Fatalf("unexpected checkout %q %+v", url, fp.checkoutParams)
	}
	if _, err := svc.CreateCheckoutSession(context.Background(), "enterprise", "a@b.c"); !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("enterprise without a price should be unknown, got %v", err)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	svc := NewService(testConfig(), &fakeProvider{})

	if got := svc.PlanFor("a@b.c"); got != DefaultPlan {
		t.Fatalf("expected free, got %q", got)
	}

	svc.HandleEvent(Event{Type: "checkout.session.completed", Object: map[string]any{
		"id":       "cs_1",
		"metadata": map[string]any{"plan": "pro"},
		"customer_details": map[string]any{
			"email": "A@B.C",
		},
	}})
	if got := svc.PlanFor("a@b.c"); got != "pro" {
		t.Fatalf("expected pro after checkout, got %q", got)
	}
	if rec, _ := svc.Record("cs_1"); rec.Status != "succeeded" {
		t.Fatalf("checkout should be recorded, got %+v", rec)
	}

	svc.HandleEvent(Event{Type: "customer.subscription.updated", Object: map[string]any{
		"status":   "past_due",
		"metadata": map[string]any{"email": "a@b.c", "plan": "pro"},
	}})
	if got := svc.PlanFor("a@b.c"); got != DefaultPlan {
		t.Fatalf("past_due should downgrade, got %q", got)
	}

	svc.HandleEvent(Event{Type: "customer.subscription.updated", Object: map[string]any{
		"status":   "active",
		"metadata": map[string]any{"email": "a@b.c", "plan": "enterprise"},
	}})
	if got := svc.PlanFor("a@b.c"); got != "enterprise" {
		t.Fatalf("active should set the plan, got %q", got)
	}

	svc.HandleEvent(Event{Type: "customer.subscription.deleted", Object: map[string]any{
		"metadata": map[string]any{"email": "a@b.c"},
	}})
	if got := svc.PlanFor("a@b.c"); got != DefaultPlan {
		t.Fatalf("deleted should downgrade, got %q", got)
	}
}

func TestPaymentIntentSucceeded(t *testing.T) {
	svc := NewService(testConfig(), &fakeProvider{})
	svc.HandleEvent(Event{Type: "payment_intent.succeeded", Object: map[string]any{
		"id":              "pi_9",
		"amount_received": float64(1200),
		"currency":        "usd",
		"metadata":        map[string]any{"plan_id": "basic", "email": "a@b.c"},
	}})

	rec, ok := svc.Record("pi_9")
	if !ok || rec.Status != "succeeded" || rec.Amount != 1200 || rec.PlanID != "basic" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := svc.PlanFor("a@b.c"); got != "basic" {
		t.Fatalf("expected basic, got %q", got)
	}
}

func TestVerifyEventRequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.StripeWebhookSecret = ""
	svc := NewService(cfg, &fakeProvider{})
	if _, err := svc.VerifyEvent([]byte("{}"), "sig"); !errors.Is(err, ErrWebhookNotConfigured) {
		t.Fatalf("expected ErrWebhookNotConfigured, got %v", err)
	}
}

func TestSelfTest(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"ok", nil, true},
		{"unreachable", fmt.Errorf("%w: dial", ErrProviderUnreachable), true},
		{"auth", fmt.Errorf("%w: 401", ErrProviderAuth), false},
	}
	for _, tc := range cases {
		svc := NewService(testConfig(), &fakeProvider{credentialsErr: tc.err})
		got := svc.SelfTest(context.Background(), map[string]bool{"BRAIN_BASE": false}, []string{"*"})
		if got.StripeOK != tc.want {
			t.Fatalf("%s: expected stripe_ok=%v", tc.name, tc.want)
		}
		if !got.Env["STRIPE_SECRET_KEY"] || got.Env["BRAIN_BASE"] {
			t.Fatalf("%s: unexpected env %v", tc.name, got.Env)
		}
	}

	noKey := NewService(config.PaymentsConfig{StripeSecretKey: "pk_live"}, &fakeProvider{})
	if noKey.SelfTest(context.Background(), nil, nil).StripeOK {
		t.Fatal("a non sk_ key should fail the self-test")
	}
}

func TestPayPalStubs(t *testing.T) {
	svc := NewService(testConfig(), nil)
	order := svc.CreatePayPalOrder()
	if order.Status != "created" {
		t.Fatalf("unexpected order %+v", order)
	}
	if !svc.CapturePayPalOrder(order.ID) || svc.CapturePayPalOrder("missing") {
		t.Fatal("capture should only know created orders")
	}
}

func TestScheduleUpgrade(t *testing.T) {
	svc := NewService(testConfig(), nil)
	ref, err := svc.ScheduleUpgrade("elite")
	if err != nil || len(ref) < len("payment_") {
		t.Fatalf("unexpected reference %q, %v", ref, err)
	}
	if _, err := svc.ScheduleUpgrade(" "); err == nil {
		t.Fatal("expected missing plan to fail")
	}
}
