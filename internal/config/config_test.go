package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ASERRAS_PORT", "HOST", "ASERRAS_HOST", "BRAIN_BASE", "ASERRAS_BRAIN_BASE", "VITE_API_BASE", "ALLOWED_ORIGINS", "ASERRAS_ALLOWED_ORIGINS", "CORS_ORIGINS", "ASERRAS_SESSION_SECRET", "OPTIONAL_PAYPAL_ENABLED", "ASERRAS_UI_CONFIG_FILE", "ASERRAS_AUTH_PROVIDERS", "ASERRAS_PAYMENT_METHODS"} {
		unsetenv(t, key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8001" {
		t.Fatalf("expected :8001, got %q", cfg.Server.Addr)
	}
	if cfg.Brain.Enabled() {
		t.Fatal("brain should be disabled without a base url")
	}
	if cfg.CORS.AllowCredentials() || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cors %+v", cfg.CORS)
	}
	if cfg.RateLimit.Requests != 120 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if !cfg.Session.Ephemeral || len(cfg.Session.Secret) == 0 {
		t.Fatal("expected a generated session secret")
	}
	if cfg.Payments.PricePro != "price_test_pro" {
		t.Fatalf("unexpected pro price %q", cfg.Payments.PricePro)
	}
	if got := cfg.UI.Flags.PaymentMethodsEnabled; len(got) != 1 || got[0] != "card" {
		t.Fatalf("unexpected payment methods %v", got)
	}
}

func TestLoadAliases(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ASERRAS_PORT", "9000")
	t.Setenv("ASERRAS_HOST", "127.0.0.1")
	t.Setenv("VITE_API_BASE", "https://core.example.com/")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("ASERRAS_BRAIN_API_IMAGE", "v2/image")
	t.Setenv("OPTIONAL_PAYPAL_ENABLED", "true")
	t.Setenv("ASERRAS_PAYMENT_METHODS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Brain.BaseURL != "https://core.example.com/api" {
		t.Fatalf("unexpected brain base %q", cfg.Brain.BaseURL)
	}
	if cfg.Brain.Endpoints["image"] != "/v2/image" {
		t.Fatalf("endpoint override missing: %v", cfg.Brain.Endpoints)
	}
	if !cfg.CORS.AllowCredentials() || len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("unexpected cors %+v", cfg.CORS)
	}
	if got := cfg.UI.Flags.PaymentMethodsEnabled; got == nil || len(got) != 0 {
		t.Fatalf("an explicitly empty list disables every method, got %v", got)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestUIConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ui.yaml")
	doc := "authProvidersEnabled: [email, google]\npricingSource: remote\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ASERRAS_UI_CONFIG_FILE", path)
	unsetenv(t, "ASERRAS_AUTH_PROVIDERS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.UI.Flags.AuthProvidersEnabled; len(got) != 2 || got[1] != "google" {
		t.Fatalf("unexpected providers %v", got)
	}
	if cfg.UI.Flags.PricingSource != "remote" {
		t.Fatalf("unexpected pricing source %q", cfg.UI.Flags.PricingSource)
	}
	if cfg.UI.Flags.DefaultTheme != "dark" {
		t.Fatalf("keys missing from the file keep defaults, got %q", cfg.UI.Flags.DefaultTheme)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("X_WINDOW", "90")
	if got, _ := parseDurationEnv("X_WINDOW", 0); got != 90*time.Second {
		t.Fatalf("bare seconds: got %v", got)
	}
	t.Setenv("X_WINDOW", "2m")
	if got, _ := parseDurationEnv("X_WINDOW", 0); got != 2*time.Minute {
		t.Fatalf("duration: got %v", got)
	}
	t.Setenv("X_WINDOW", "soon")
	if _, err := parseDurationEnv("X_WINDOW", 0); err == nil {
		t.Fatal("expected parse error")
	}
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}
