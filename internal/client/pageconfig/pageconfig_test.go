package pageconfig

import (
	"strings"
	"testing"
)

func TestResolveWithoutInjectionUsesDefaults(t *testing.T) {
	resolved := Resolve(Defaults(), Page{})

	path, ok := resolved.Endpoint(EndpointChatSend)
	if !ok || path != "/api/chat/send" {
		t.Fatalf("unexpected chatSend endpoint: %q %v", path, ok)
	}
	if resolved.BaseAPIURL != "" {
		t.Fatalf("expected empty base url, got %q", resolved.BaseAPIURL)
	}
	if !resolved.Flags.AuthProviders.Has("email") {
		t.Fatal("expected default email auth provider")
	}
}

func TestResolveOverridesEndpointsAndFlags(t *testing.T) {
	page := Page{
		Origin: "https://aserras.com/",
		Config: &RuntimeConfig{
			BaseAPIURL: "https://core.aserras.com/api/",
			Endpoints:  map[string]string{EndpointChatSend: "/chat/send", EndpointChatHistory: "  "},
		},
		UI: &UIConfig{
			AuthProvidersEnabled:  []string{"Google", "GitHub"},
			PaymentMethodsEnabled: []string{},
			DefaultTheme:          "LIGHT",
		},
		State: &UIState{IsAuthenticated: true},
	}

	resolved := Resolve(Defaults(), page)

	if resolved.BaseAPIURL != "https://core.aserras.com/api" {
		t.Fatalf("unexpected base url %q", resolved.BaseAPIURL)
	}
	if resolved.Origin != "https://aserras.com" {
		t.Fatalf("unexpected origin %q", resolved.Origin)
	}
	if path, _ := resolved.Endpoint(EndpointChatSend); path != "/chat/send" {
		t.Fatalf("override not applied: %q", path)
	}
	if path, _ := resolved.Endpoint(EndpointChatHistory); path != "/api/user/history" {
		t.Fatalf("blank override should keep default, got %q", path)
	}
	if !resolved.Flags.AuthProviders.Has("google") || resolved.Flags.AuthProviders.Has("email") {
		t.Fatalf("unexpected providers: %v", resolved.Flags.AuthProviders.Keys())
	}
	if len(resolved.Flags.PaymentMethods) != 0 {
		t.Fatalf("explicit empty list should disable payment methods")
	}
	if resolved.DefaultTheme != "light" || !resolved.InitialAuthenticated {
		t.Fatalf("unexpected theme/state: %q %v", resolved.DefaultTheme, resolved.InitialAuthenticated)
	}
}

func TestResolveDoesNotMutateDefaults(t *testing.T) {
	defaults := Defaults()
	Resolve(defaults, Page{Config: &RuntimeConfig{Endpoints: map[string]string{EndpointChatSend: "/x"}}})
	if defaults.Endpoints[EndpointChatSend] != "/api/chat/send" {
		t.Fatal("defaults mutated")
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey(" Apple_Pay "); got != "apple-pay" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseHTMLReadsInjectedGlobals(t *testing.T) {
	page := `<!doctype html><html><head>
<script id="aserras-config" type="application/json">{"baseApiUrl":"https://core.example/api","endpoints":{"chatSend":"/chat"}}</script>
<script id="aserras-ui-config" type="application/json">{"authProvidersEnabled":["google"],"paymentMethodsEnabled":["card","paypal"]}</script>
<script id="aserras-ui-state" type="application/json">not json</script>
</head><body></body></html>`

	parsed, err := ParseHTML(strings.NewReader(page), "http://localhost:8001")
	if err != nil {
		t.Fatalf("ParseHTML err: %v", err)
	}
	if parsed.Config == nil || parsed.Config.Endpoints["chatSend"] != "/chat" {
		t.Fatalf("config not parsed: %+v", parsed.Config)
	}
	if parsed.UI == nil || len(parsed.UI.PaymentMethodsEnabled) != 2 {
		t.Fatalf("ui config not parsed: %+v", parsed.UI)
	}
	if parsed.State != nil {
		t.Fatal("malformed state should be ignored")
	}

	resolved := Resolve(Defaults(), parsed)
	if !resolved.Flags.PaymentMethods.Has("paypal") {
		t.Fatal("expected paypal enabled")
	}
}
