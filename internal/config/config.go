package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"gopkg.in/yaml.v3"

	"github.com/aserras/web/backend/internal/client/pageconfig"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Brain     BrainConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Payments  PaymentsConfig
	Session   SessionConfig
	UI        UIConfig
	AI        AIConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	brain, err := loadBrainConfig()
	if err != nil {
		return nil, err
	}

	rate, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	payments, err := loadPaymentsConfig(server.PublicURL)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	ui, err := loadUIConfig(payments)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Brain:     brain,
		CORS:      loadCORSConfig(),
		RateLimit: rate,
		Payments:  payments,
		Session:   session,
		UI:        ui,
		AI:        ai,
		Log:       loadLogConfig(server.Debug),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr      string
	Debug     bool
	PublicURL string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	debug, err := parseBoolEnv("DEBUG", false)
	if err != nil {
		return ServerConfig{}, err
	}
	publicURL := strings.TrimRight(getEnvOrDefault("ASERRAS_PUBLIC_URL", "https://aserras.com"), "/")

	port := firstEnv("PORT", "ASERRAS_PORT")
	if port == "" {
		port = "8001"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8001" 或 "127.0.0.1:8001"。
		return ServerConfig{Addr: port, Debug: debug, PublicURL: publicURL}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	host := firstEnv("HOST", "ASERRAS_HOST")
	return ServerConfig{Addr: host + ":" + port, Debug: debug, PublicURL: publicURL}, nil
}

// BrainConfig points at the upstream Aserras Brain API. An empty BaseURL
// selects local mode.
type BrainConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
	// Endpoints overrides Brain paths by name, from ASERRAS_BRAIN_API_<NAME>.
	Endpoints map[string]string
}

// Enabled reports whether requests are proxied to the Brain.
func (c BrainConfig) Enabled() bool {
	return c.BaseURL != ""
}

const brainEndpointPrefix = "ASERRAS_BRAIN_API_"

func loadBrainConfig() (BrainConfig, error) {
	timeout, err := parseDurationEnv("ASERRAS_BRAIN_TIMEOUT", 30*time.Second)
	if err != nil {
		return BrainConfig{}, err
	}

	base := firstEnv("BRAIN_BASE", "ASERRAS_BRAIN_BASE")
	if vite := firstEnv("VITE_API_BASE"); vite != "" {
		base = strings.TrimRight(vite, "/")
		if !strings.HasSuffix(base, "/api") {
			base += "/api"
		}
	}

	endpoints := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, brainEndpointPrefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, brainEndpointPrefix))
		if value = strings.TrimSpace(value); name != "" && value != "" {
			endpoints[name] = "/" + strings.TrimLeft(value, "/")
		}
	}

	return BrainConfig{
		BaseURL:      strings.TrimRight(base, "/"),
		ServiceToken: firstEnv("SERVICE_TOKEN", "ASERRAS_SERVICE_TOKEN"),
		Timeout:      timeout,
		Endpoints:    endpoints,
	}, nil
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// AllowCredentials is false for the "*" fallback.
func (c CORSConfig) AllowCredentials() bool {
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return false
		}
	}
	return len(c.AllowedOrigins) > 0
}

func loadCORSConfig() CORSConfig {
	origins := splitList(firstEnv("ALLOWED_ORIGINS", "ASERRAS_ALLOWED_ORIGINS", "CORS_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return CORSConfig{AllowedOrigins: origins}
}

// RateLimitConfig 每个客户端 IP 的限流窗口。Requests <= 0 关闭限流。
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	requests := 120
	if override, err := parseOptionalIntEnv("ASERRAS_RATE_LIMIT"); err != nil {
		return RateLimitConfig{}, err
	} else if override != nil {
		requests = *override
	}

	window, err := parseDurationEnv("ASERRAS_RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return RateLimitConfig{}, err
	}
	return RateLimitConfig{Requests: requests, Window: window}, nil
}

// PaymentsConfig carries Stripe and PayPal settings.
type PaymentsConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	PricePro            string
	PriceEnterprise     string
	Currency            string
	SuccessURL          string
	CancelURL           string
	PayPalEnabled       bool
	PayPalWebhookSecret string
}

// StripeConfigured reports whether the secret key looks like a Stripe key.
func (c PaymentsConfig) StripeConfigured() bool {
	return strings.HasPrefix(c.StripeSecretKey, "sk_")
}

func loadPaymentsConfig(publicURL string) (PaymentsConfig, error) {
	paypal, err := parseBoolEnv("OPTIONAL_PAYPAL_ENABLED", false)
	if err != nil {
		return PaymentsConfig{}, err
	}

	return PaymentsConfig{
		StripeSecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		PricePro:            getEnvOrDefault("STRIPE_PRICE_PRO", "price_test_pro"),
		PriceEnterprise:     strings.TrimSpace(os.Getenv("STRIPE_PRICE_ENTERPRISE")),
		Currency:            strings.ToLower(getEnvOrDefault("ASERRAS_CURRENCY", "usd")),
		SuccessURL:          getEnvOrDefault("ASERRAS_CHECKOUT_SUCCESS_URL", publicURL+"/dashboard?checkout=success"),
		CancelURL:           getEnvOrDefault("ASERRAS_CHECKOUT_CANCEL_URL", publicURL+"/pricing?checkout=cancelled"),
		PayPalEnabled:       paypal,
		PayPalWebhookSecret: strings.TrimSpace(os.Getenv("OPTIONAL_PAYPAL_WEBHOOK_SECRET")),
	}, nil
}

// SessionConfig signs local-mode bearer tokens.
type SessionConfig struct {
	Secret    []byte
	Ephemeral bool
	LoginTTL  time.Duration
	SignupTTL time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	login, err := parseDurationEnv("ASERRAS_LOGIN_TTL", 8*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	signup, err := parseDurationEnv("ASERRAS_SIGNUP_TTL", 12*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	cfg := SessionConfig{LoginTTL: login, SignupTTL: signup}
	if secret := strings.TrimSpace(os.Getenv("ASERRAS_SESSION_SECRET")); secret != "" {
		cfg.Secret = []byte(secret)
		return cfg, nil
	}

	// 未配置时生成进程内密钥，重启后本地令牌失效。
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return SessionConfig{}, fmt.Errorf("generate session secret: %w", err)
	}
	cfg.Secret = []byte(hex.EncodeToString(buf))
	cfg.Ephemeral = true
	return cfg, nil
}

// UIConfig is what the server injects into every page.
type UIConfig struct {
	Flags pageconfig.UIConfig
	// PublicAPIBase is rendered as baseApiUrl; empty means same origin.
	PublicAPIBase string
}

func loadUIConfig(payments PaymentsConfig) (UIConfig, error) {
	flags := pageconfig.UIConfig{
		AuthProvidersEnabled:  []string{"email"},
		PaymentMethodsEnabled: []string{"card"},
		PricingSource:         "static",
		ContentSource:         "static",
		DefaultTheme:          "dark",
	}
	if payments.PayPalEnabled {
		flags.PaymentMethodsEnabled = append(flags.PaymentMethodsEnabled, "paypal")
	}

	if path := strings.TrimSpace(os.Getenv("ASERRAS_UI_CONFIG_FILE")); path != "" {
		if err := readUIFile(path, &flags); err != nil {
			return UIConfig{}, err
		}
	}

	if raw, ok := os.LookupEnv("ASERRAS_AUTH_PROVIDERS"); ok {
		flags.AuthProvidersEnabled = splitList(raw)
	}
	if raw, ok := os.LookupEnv("ASERRAS_PAYMENT_METHODS"); ok {
		flags.PaymentMethodsEnabled = splitList(raw)
	}
	if theme := strings.TrimSpace(os.Getenv("ASERRAS_DEFAULT_THEME")); theme != "" {
		flags.DefaultTheme = theme
	}

	return UIConfig{
		Flags:         flags,
		PublicAPIBase: strings.TrimRight(strings.TrimSpace(os.Getenv("ASERRAS_PUBLIC_API_BASE")), "/"),
	}, nil
}

// readUIFile overlays the YAML document at path onto flags. Keys missing from
// the file keep their current value.
func readUIFile(path string, flags *pageconfig.UIConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ui config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, flags); err != nil {
		return fmt.Errorf("parse ui config %s: %w", path, err)
	}
	return nil
}

// LogConfig 日志级别。
type LogConfig struct {
	Level string
}

func loadLogConfig(debug bool) LogConfig {
	level := getEnvOrDefault("ASERRAS_LOG_LEVEL", "info")
	if debug && os.Getenv("ASERRAS_LOG_LEVEL") == "" {
		level = "debug"
	}
	return LogConfig{Level: level}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
	SystemPrompt   string
	HistoryLimit   int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	})
}

const defaultSystemPrompt = "You are Aserras, a calm and precise assistant inside a private workspace. " +
	"Answer concisely, prefer concrete next steps, and ask a clarifying question when the request is ambiguous."

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if override, err := parseOptionalIntEnv("ASERRAS_ASSISTANT_HISTORY"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		historyLimit = max(*override, 0)
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          firstEnv("ARK_MODEL", "Model"),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
		SystemPrompt:   getEnvOrDefault("ASERRAS_ASSISTANT_PROMPT", defaultSystemPrompt),
		HistoryLimit:   historyLimit,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv accepts Go durations ("90s") or bare seconds ("90").
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
