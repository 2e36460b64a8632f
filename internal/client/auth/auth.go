// Package auth drives sign-in, sign-up, sign-out and forced expiry on top of
// the session store and the gateway.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/client/gateway"
	"github.com/aserras/web/backend/internal/client/notify"
	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/client/session"
	"github.com/aserras/web/backend/internal/extract"
	"github.com/aserras/web/backend/internal/logging"
)

const (
	DefaultLoginRedirect = "/dashboard"
	LogoutRedirect       = "/"
	LoginPath            = "/login"

	MinPasswordLength = 8
)

// ErrMissingToken is returned when the server accepted the credentials but
// its answer carried no token under any recognised key.
var ErrMissingToken = errors.New("authentication response did not include a token")

// ValidationError rejects a form before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) UserMessage() string { return e.Message }

// Requester performs logical endpoint requests.
type Requester interface {
	RequestEndpoint(ctx context.Context, name string, opts gateway.Options) (gateway.Payload, error)
}

// Navigator changes the current page.
type Navigator interface {
	Navigate(path string)
}

// Notifier shows rate-limited toasts.
type Notifier interface {
	Notify(category, message string) bool
}

// Credentials is the login form.
type Credentials struct {
	Email    string
	Password string
}

// Profile is the sign-up form.
type Profile struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	AcceptTerms     bool
}

// Result describes a successful transition.
type Result struct {
	Redirect string
	Message  string
}

// Machine owns every auth state transition.
type Machine struct {
	store    *session.Store
	requests Requester
	nav      Navigator
	notifier Notifier
	log      *zap.Logger
}

// New wires a Machine.
func New(store *session.Store, requests Requester, nav Navigator, notifier Notifier) *Machine {
	return &Machine{
		store:    store,
		requests: requests,
		nav:      nav,
		notifier: notifier,
		log:      logging.Named("auth"),
	}
}

// Login exchanges credentials for a token and navigates to the redirect the
// server suggested, /dashboard by default.
func (m *Machine) Login(ctx context.Context, creds Credentials) (Result, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return Result{}, &ValidationError{Field: "email", Message: "Email is required."}
	}
	if creds.Password == "" {
		return Result{}, &ValidationError{Field: "password", Message: "Password is required."}
	}

	payload, err := m.requests.RequestEndpoint(ctx, pageconfig.EndpointAuthLogin, gateway.Options{
		Method: http.MethodPost,
		Body:   map[string]string{"email": email, "password": creds.Password},
	})
	if err != nil {
		return Result{}, err
	}
	return m.complete(payload)
}

// Signup validates the form locally, then registers and signs in.
func (m *Machine) Signup(ctx context.Context, p Profile) (Result, error) {
	if err := ValidateProfile(p); err != nil {
		return Result{}, err
	}

	payload, err := m.requests.RequestEndpoint(ctx, pageconfig.EndpointAuthSignup, gateway.Options{
		Method: http.MethodPost,
		Body: map[string]string{
			"fullName": strings.TrimSpace(p.Name),
			"email":    strings.TrimSpace(p.Email),
			"password": p.Password,
		},
	})
	if err != nil {
		return Result{}, err
	}
	return m.complete(payload)
}

// ValidateProfile applies the sign-up form rules.
func ValidateProfile(p Profile) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return &ValidationError{Field: "name", Message: "Name is required."}
	case strings.TrimSpace(p.Email) == "":
		return &ValidationError{Field: "email", Message: "Email is required."}
	case !strings.Contains(p.Email, "@"):
		return &ValidationError{Field: "email", Message: "Enter a valid email address."}
	case len(p.Password) < MinPasswordLength:
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters."}
	case p.Password != p.ConfirmPassword:
		return &ValidationError{Field: "confirmPassword", Message: "Passwords do not match."}
	case !p.AcceptTerms:
		return &ValidationError{Field: "terms", Message: "You must accept the terms to continue."}
	}
	return nil
}

func (m *Machine) complete(payload gateway.Payload) (Result, error) {
	token := extract.Token(payload)
	if token == "" {
		m.log.Warn("auth response without token", zap.Strings("keys", keys(payload)))
		return Result{}, ErrMissingToken
	}

	m.store.SetAuthState(true, session.WithToken(token))

	result := Result{
		Redirect: SafeRedirect(extract.Redirect(payload), DefaultLoginRedirect),
		Message:  extract.Message(payload),
	}
	m.navigate(result.Redirect)
	return result, nil
}

// Logout tells the server (best effort), clears the session and returns home.
func (m *Machine) Logout(ctx context.Context) Result {
	if token, ok := m.store.Token(); ok {
		// Sent unauthenticated with an explicit header so a 401 here cannot
		// trigger the expiry flow.
		_, err := m.requests.RequestEndpoint(ctx, pageconfig.EndpointAuthLogout, gateway.Options{
			Method:  http.MethodPost,
			Headers: map[string]string{"Authorization": "Bearer " + token},
		})
		if err != nil {
			m.log.Debug("logout notification failed", zap.Error(err))
		}
	}

	m.store.SetAuthState(false, session.AuthOptions{})
	m.navigate(LogoutRedirect)
	return Result{Redirect: LogoutRedirect}
}

// ForceExpire signs the session out after the server rejected its token.
// keepToken retains the stale token in storage.
func (m *Machine) ForceExpire(keepToken bool) {
	m.store.SetAuthState(false, session.AuthOptions{KeepToken: keepToken})
	if m.notifier != nil {
		m.notifier.Notify(notify.CategorySession, gateway.MessageSessionExpired)
	}
	m.navigate(LoginPath)
}

func (m *Machine) navigate(path string) {
	if m.nav != nil {
		m.nav.Navigate(path)
	}
}

// SafeRedirect accepts same-site absolute paths only and falls back to def.
func SafeRedirect(target, def string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return def
	}
	return target
}

func keys(payload gateway.Payload) []string {
	out := make([]string, 0, len(payload))
	for k := range payload {
		out = append(out, k)
	}
	return out
}
