package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

var (
	// ErrProviderAuth means the provider rejected our credentials.
	ErrProviderAuth = errors.New("payment provider rejected the credentials")
	// ErrProviderUnreachable means the provider could not be contacted.
	ErrProviderUnreachable = errors.New("payment provider is unreachable")
	// ErrInvalidSignature means a webhook payload failed verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// IntentParams describes a one-off payment.
type IntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// CheckoutParams describes a hosted subscription checkout.
type CheckoutParams struct {
	PriceID    string
	Email      string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Event is a verified webhook event.
type Event struct {
	ID     string
	Type   string
	Object map[string]any
}

// Provider is the payment processor.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, params IntentParams) (Intent, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CheckCredentials(ctx context.Context) error
	ConstructEvent(payload []byte, signature, secret string) (Event, error)
}

// StripeProvider implements Provider with the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider bound to secretKey.
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, params IntentParams) (Intent, error) {
	sp := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.Amount),
		Currency: stripe.String(params.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	sp.Context = ctx
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(sp)
	if err != nil {
		return Intent{}, classify(err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	sp := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:         stripe.String(params.SuccessURL),
		CancelURL:          stripe.String(params.CancelURL),
		CustomerEmail:      stripe.String(params.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(params.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.Metadata,
		},
	}
	sp.Context = ctx
	for k, v := range params.Metadata {
		sp.AddMetadata(k, v)
	}

	sess, err := p.api.CheckoutSessions.New(sp)
	if err != nil {
		return "", classify(err)
	}
	return sess.URL, nil
}

// CheckCredentials retrieves the account balance as a cheap authenticated call.
func (p *StripeProvider) CheckCredentials(ctx context.Context) error {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	_, err := p.api.Balance.Get(params)
	return classify(err)
}

func (p *StripeProvider) ConstructEvent(payload []byte, signature, secret string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var object map[string]any
	if ev.Data != nil {
		object = ev.Data.Object
	}
	if object == nil {
		object = map[string]any{}
	}
	return Event{ID: ev.ID, Type: string(ev.Type), Object: object}, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	if serr.HTTPStatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", ErrProviderAuth, err)
	}
	return fmt.Errorf("stripe %s: %w", serr.Type, err)
}
