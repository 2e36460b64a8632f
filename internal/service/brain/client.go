// Package brain is the server-side client of the Aserras Brain API.
package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/config"
	"github.com/aserras/web/backend/internal/extract"
	"github.com/aserras/web/backend/internal/logging"
)

// ErrUnavailable covers transport failures and 5xx answers.
var ErrUnavailable = errors.New("aserras brain is unavailable")

// APIError is a 4xx answer from the Brain.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brain returned %d: %s", e.Status, e.Detail)
}

// Endpoint names; paths may be overridden through config.
const (
	EndpointLogin   = "login"
	EndpointSignup  = "signup"
	EndpointProfile = "profile"
	EndpointModels  = "models"
	EndpointText    = "text"
	EndpointImage   = "image"
	EndpointCode    = "code"
	EndpointHistory = "history"
)

var defaultPaths = map[string]string{
	EndpointLogin:   "/auth/login",
	EndpointSignup:  "/auth/register",
	EndpointProfile: "/auth/me",
	EndpointModels:  "/models/list",
	EndpointText:    "/ai/text",
	EndpointImage:   "/ai/image",
	EndpointCode:    "/ai/code",
	EndpointHistory: "/history",
}

// Client talks to one Brain deployment.
type Client struct {
	baseURL      string
	serviceToken string
	paths        map[string]string
	http         *http.Client
	log          *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New builds a client from configuration.
func New(cfg config.BrainConfig, opts ...Option) *Client {
	paths := make(map[string]string, len(defaultPaths))
	for name, path := range defaultPaths {
		paths[name] = path
	}
	for name, path := range cfg.Endpoints {
		paths[name] = path
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		serviceToken: cfg.ServiceToken,
		paths:        paths,
		http:         &http.Client{Timeout: cfg.Timeout},
		log:          logging.Named("brain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a Brain session.
func (c *Client) Login(ctx context.Context, email, password string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, EndpointLogin, "", map[string]string{"email": email, "password": password})
}

// Register creates a Brain account.
func (c *Client) Register(ctx context.Context, name, email, password string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, EndpointSignup, "", map[string]string{"name": name, "email": email, "password": password})
}

// Profile returns the account behind token.
func (c *Client) Profile(ctx context.Context, token string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, EndpointProfile, token, nil)
}

// UpdateProfile patches the account behind token.
func (c *Client) UpdateProfile(ctx context.Context, token string, fields map[string]string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPatch, EndpointProfile, token, fields)
}

// Models lists the models the account may use.
func (c *Client) Models(ctx context.Context, token string) ([]any, error) {
	payload, err := c.Do(ctx, http.MethodGet, EndpointModels, token, nil)
	if err != nil {
		return nil, err
	}
	return listField(payload, "models"), nil
}

// Text runs a chat completion.
func (c *Client) Text(ctx context.Context, token, prompt, model string) (map[string]any, error) {
	body := map[string]string{"prompt": prompt}
	if model != "" {
		body["model"] = model
	}
	return c.Do(ctx, http.MethodPost, EndpointText, token, body)
}

// Image generates images for prompt.
func (c *Client) Image(ctx context.Context, token, prompt, size string) (map[string]any, error) {
	body := map[string]string{"prompt": prompt}
	if size != "" {
		body["size"] = size
	}
	return c.Do(ctx, http.MethodPost, EndpointImage, token, body)
}

// Code generates code for instructions.
func (c *Client) Code(ctx context.Context, token, instructions, language, model string) (map[string]any, error) {
	body := map[string]string{"instructions": instructions}
	if language != "" {
		body["language"] = language
	}
	if model != "" {
		body["model"] = model
	}
	return c.Do(ctx, http.MethodPost, EndpointCode, token, body)
}

// History returns the account's past exchanges.
func (c *Client) History(ctx context.Context, token string) ([]any, error) {
	payload, err := c.Do(ctx, http.MethodGet, EndpointHistory, token, nil)
	if err != nil {
		return nil, err
	}
	return listField(payload, "items"), nil
}

// Do sends one request to the named endpoint. bearer, when set, is forwarded
// as the user's token; otherwise the service token is used if configured.
func (c *Client) Do(ctx context.Context, method, endpoint, bearer string, body any) (map[string]any, error) {
	path, ok := c.paths[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown brain endpoint %q", endpoint)
	}
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case bearer != "":
		req.Header.Set("Authorization", "Bearer "+bearer)
	case c.serviceToken != "":
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logging.LogUpstream("brain", method, url, 0, err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.LogUpstream("brain", method, url, resp.StatusCode, err)
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	logging.LogUpstream("brain", method, url, resp.StatusCode, nil)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	payload := decode(resp.Header.Get("Content-Type"), raw)
	if resp.StatusCode >= http.StatusBadRequest {
		detail := extract.Message(payload)
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		if detail == "" {
			detail = "Request to Aserras Brain failed."
		}
		c.log.Debug("brain rejected request", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode))
		return nil, &APIError{Status: resp.StatusCode, Detail: detail}
	}
	return payload, nil
}

// decode turns a body into an object. Lists are wrapped under "items", other
// JSON values under "data" and non-JSON bodies under "text".
func decode(contentType string, raw []byte) map[string]any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}
	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		return map[string]any{"text": string(raw)}
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return map[string]any{"text": string(raw)}
	}
	switch v := value.(type) {
	case map[string]any:
		return v
	case []any:
		return map[string]any{"items": v}
	default:
		return map[string]any{"data": v}
	}
}

func listField(payload map[string]any, key string) []any {
	for _, k := range []string{key, "items"} {
		if list, ok := payload[k].([]any); ok {
			return list
		}
	}
	return []any{}
}

// MessageUnavailable is shown when the Brain cannot serve a request.
const MessageUnavailable = "Aserras Brain is unavailable"

// StatusFor maps a client error to the HTTP status and message relayed to
// the browser.
func StatusFor(err error) (int, string) {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Status, apiErr.Detail
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, MessageUnavailable
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}
