// Package pageconfig merges the runtime defaults with the configuration a page
// injects (API base URL, endpoint overrides, UI feature flags, initial auth state).
package pageconfig

import (
	"sort"
	"strings"
)

// Script element ids carrying the injected JSON globals.
const (
	ConfigScriptID   = "aserras-config"
	UIConfigScriptID = "aserras-ui-config"
	UIStateScriptID  = "aserras-ui-state"
)

// Logical endpoint names.
const (
	EndpointAuthLogin       = "authLogin"
	EndpointAuthSignup      = "authSignup"
	EndpointAuthLogout      = "authLogout"
	EndpointChatSend        = "chatSend"
	EndpointChatHistory     = "chatHistory"
	EndpointImageGenerate   = "imageGenerate"
	EndpointCodeGenerate    = "codeGenerate"
	EndpointSettingsProfile = "settingsProfile"
	EndpointSettingsTheme   = "settingsTheme"
	EndpointPaymentIntent   = "paymentIntent"
	EndpointAccountStatus   = "accountStatus"
)

// DefaultEndpoints holds the hard-coded path of every logical endpoint.
var DefaultEndpoints = map[string]string{
	EndpointAuthLogin:       "/api/auth/login",
	EndpointAuthSignup:      "/api/auth/signup",
	EndpointAuthLogout:      "/api/auth/logout",
	EndpointChatSend:        "/api/chat/send",
	EndpointChatHistory:     "/api/user/history",
	EndpointImageGenerate:   "/api/image",
	EndpointCodeGenerate:    "/api/code",
	EndpointSettingsProfile: "/api/settings/profile",
	EndpointSettingsTheme:   "/api/settings/theme",
	EndpointPaymentIntent:   "/api/payment/intent",
	EndpointAccountStatus:   "/api/payments/subscription-status",
}

// RuntimeConfig is the injected `aserras-config` object.
type RuntimeConfig struct {
	BaseAPIURL string            `json:"baseApiUrl,omitempty"`
	Endpoints  map[string]string `json:"endpoints,omitempty"`
}

// UIConfig is the injected `aserras-ui-config` object. A nil list means
// "not provided"; an empty list disables every capability of that kind.
type UIConfig struct {
	AuthProvidersEnabled  []string `json:"authProvidersEnabled" yaml:"authProvidersEnabled"`
	PaymentMethodsEnabled []string `json:"paymentMethodsEnabled" yaml:"paymentMethodsEnabled"`
	PricingSource         string   `json:"pricingSource,omitempty" yaml:"pricingSource"`
	ContentSource         string   `json:"contentSource,omitempty" yaml:"contentSource"`
	DefaultTheme          string   `json:"defaultTheme,omitempty" yaml:"defaultTheme"`
}

// UIState is the injected `aserras-ui-state` object.
type UIState struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// Page bundles everything a page may inject. Every part is optional.
type Page struct {
	Config *RuntimeConfig
	UI     *UIConfig
	State  *UIState
	// Origin is the scheme://host the page was served from; relative URLs resolve against it.
	Origin string
}

// Set is a normalised capability set.
type Set map[string]struct{}

// NewSet normalises keys into a Set.
func NewSet(keys ...string) Set {
	s := make(Set, len(keys))
	for _, key := range keys {
		if k := NormalizeKey(key); k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports whether key (normalised) is in the set.
func (s Set) Has(key string) bool {
	_, ok := s[NormalizeKey(key)]
	return ok
}

// Keys returns the sorted members.
func (s Set) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeKey lower-cases a capability name and folds separators to '-'.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', ' ', '.':
			return '-'
		}
		return r
	}, key)
}

// Flags are the resolved UI feature flags.
type Flags struct {
	AuthProviders  Set
	PaymentMethods Set
	PricingSource  string
	ContentSource  string
}

// Resolved is the immutable configuration the runtime runs with.
type Resolved struct {
	BaseAPIURL           string
	Origin               string
	Endpoints            map[string]string
	Flags                Flags
	DefaultTheme         string
	InitialAuthenticated bool
}

// Endpoint returns the path for a logical endpoint name: the override when
// present, else the default. ok is false for unknown names.
func (r Resolved) Endpoint(name string) (string, bool) {
	path, ok := r.Endpoints[name]
	return path, ok && path != ""
}

// Defaults returns the runtime's built-in configuration.
func Defaults() Resolved {
	endpoints := make(map[string]string, len(DefaultEndpoints))
	for k, v := range DefaultEndpoints {
		endpoints[k] = v
	}
	return Resolved{
		Endpoints: endpoints,
		Flags: Flags{
			AuthProviders:  NewSet("email"),
			PaymentMethods: NewSet("card"),
			PricingSource:  "static",
			ContentSource:  "static",
		},
		DefaultTheme: "dark",
	}
}

// Resolve layers the injected page configuration over defaults.
func Resolve(defaults Resolved, page Page) Resolved {
	out := defaults
	out.Endpoints = make(map[string]string, len(defaults.Endpoints))
	for k, v := range defaults.Endpoints {
		out.Endpoints[k] = v
	}
	if origin := strings.TrimRight(strings.TrimSpace(page.Origin), "/"); origin != "" {
		out.Origin = origin
	}

	if cfg := page.Config; cfg != nil {
		if base := strings.TrimRight(strings.TrimSpace(cfg.BaseAPIURL), "/"); base != "" {
			out.BaseAPIURL = base
		}
		for name, path := range cfg.Endpoints {
			if path = strings.TrimSpace(path); path != "" {
				out.Endpoints[name] = path
			}
		}
	}

	if ui := page.UI; ui != nil {
		if ui.AuthProvidersEnabled != nil {
			out.Flags.AuthProviders = NewSet(ui.AuthProvidersEnabled...)
		}
		if ui.PaymentMethodsEnabled != nil {
			out.Flags.PaymentMethods = NewSet(ui.PaymentMethodsEnabled...)
		}
		if ui.PricingSource != "" {
			out.Flags.PricingSource = ui.PricingSource
		}
		if ui.ContentSource != "" {
			out.Flags.ContentSource = ui.ContentSource
		}
		if theme := strings.ToLower(strings.TrimSpace(ui.DefaultTheme)); theme == "light" || theme == "dark" {
			out.DefaultTheme = theme
		}
	}

	if page.State != nil {
		out.InitialAuthenticated = page.State.IsAuthenticated
	}
	return out
}
