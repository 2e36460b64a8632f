// Package gateway is the UI runtime's HTTP client.
//
// A resource is either a path, tried against the configured API base and then
// the page origin, or an absolute URL, tried as-is and then as a path on the
// page origin. Candidates are attempted in order and only transport failures
// move on to the next one; any HTTP answer, error or not, ends the attempt.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aserras/web/backend/internal/client/notify"
	"github.com/aserras/web/backend/internal/client/pageconfig"
	"github.com/aserras/web/backend/internal/extract"
	"github.com/aserras/web/backend/internal/logging"
)

// Payload is a decoded response body. JSON objects decode directly, other JSON
// values sit under "data" and non-JSON bodies under "text".
type Payload map[string]any

// Options describe a single request.
type Options struct {
	Method string
	Body   any
	// Auth attaches the session token and fails fast without one.
	Auth bool
	// KeepTokenOnExpiry retains the stale token when a 401/403 signs the session out.
	KeepTokenOnExpiry bool
	Headers           map[string]string
}

// TokenSource supplies the bearer token.
type TokenSource interface {
	Token() (string, bool)
}

// Notifier receives rate-limited service error toasts.
type Notifier interface {
	Notify(category, message string) bool
}

// ExpiryHandler is invoked when an authenticated request is answered with
// 401/403, before SessionExpiredError is returned. Unauthenticated requests
// (a failed login, say) see those statuses as ClientError.
type ExpiryHandler func(keepToken bool)

// Gateway resolves and performs requests.
type Gateway struct {
	baseURL   string
	origin    string
	endpoints map[string]string
	client    *http.Client
	tokens    TokenSource
	notifier  Notifier
	onExpiry  ExpiryHandler
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithNotifier routes service error toasts to n.
func WithNotifier(n Notifier) Option {
	return func(g *Gateway) { g.notifier = n }
}

// WithExpiryHandler sets the 401/403 hook.
func WithExpiryHandler(fn ExpiryHandler) Option {
	return func(g *Gateway) { g.onExpiry = fn }
}

// New builds a Gateway from resolved page configuration.
func New(cfg pageconfig.Resolved, tokens TokenSource, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:   strings.TrimRight(cfg.BaseAPIURL, "/"),
		origin:    strings.TrimRight(cfg.Origin, "/"),
		endpoints: cfg.Endpoints,
		client:    &http.Client{Timeout: 30 * time.Second},
		tokens:    tokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Candidates returns the URLs tried for resource, in order, without duplicates.
func (g *Gateway) Candidates(resource string) []string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil
	}

	var out []string
	add := func(u string) {
		for _, existing := range out {
			if existing == u {
				return
			}
		}
		out = append(out, u)
	}

	if u, err := url.Parse(resource); err == nil && u.IsAbs() && u.Host != "" {
		add(resource)
		if g.origin != "" {
			add(g.origin + u.RequestURI())
		}
		return out
	}

	if !strings.HasPrefix(resource, "/") {
		resource = "/" + resource
	}
	if g.baseURL != "" {
		add(g.baseURL + resource)
	}
	if g.origin != "" {
		add(g.origin + resource)
	}
	return out
}

// RequestEndpoint performs a request against a logical endpoint name.
func (g *Gateway) RequestEndpoint(ctx context.Context, name string, opts Options) (Payload, error) {
	path, ok := g.endpoints[name]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return g.Request(ctx, path, opts)
}

// Request performs opts against resource and decodes the answer.
func (g *Gateway) Request(ctx context.Context, resource string, opts Options) (Payload, error) {
	candidates := g.Candidates(resource)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoTargets, resource)
	}

	var token string
	if opts.Auth {
		var ok bool
		if g.tokens != nil {
			token, ok = g.tokens.Token()
		}
		if !ok {
			return nil, &SessionExpiredError{URL: candidates[0]}
		}
	}

	var body []byte
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = encoded
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	var lastErr error
	for _, target := range candidates {
		status, header, raw, err := g.attempt(ctx, method, target, body, token, opts.Headers)
		logging.LogUpstream("gateway", method, target, status, err)
		if err != nil {
			lastErr = &NetworkError{URL: target, Err: err}
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		return g.handle(target, status, header, raw, opts)
	}

	g.notify(notify.CategoryService, MessageNetwork)
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, method, target string, body []byte, token string, headers map[string]string) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, resp.Header, raw, nil
}

func (g *Gateway) handle(target string, status int, header http.Header, raw []byte, opts Options) (Payload, error) {
	switch {
	case opts.Auth && (status == http.StatusUnauthorized || status == http.StatusForbidden):
		if g.onExpiry != nil {
			g.onExpiry(opts.KeepTokenOnExpiry)
		}
		return nil, &SessionExpiredError{Status: status, URL: target}

	case status >= http.StatusInternalServerError:
		g.notify(notify.CategoryService, MessageServer)
		return nil, &ServerError{
			Status:  status,
			URL:     target,
			Message: errorMessage(status, header, decode(header, raw)),
		}

	case status < 200 || status > 299:
		payload := decode(header, raw)
		return nil, &ClientError{
			Status:  status,
			URL:     target,
			Message: errorMessage(status, header, payload),
			Payload: payload,
		}

	case status == http.StatusNoContent:
		return Payload{}, nil
	}

	return decode(header, raw), nil
}

func (g *Gateway) notify(category, message string) {
	if g.notifier != nil {
		g.notifier.Notify(category, message)
	}
}

func decode(header http.Header, raw []byte) Payload {
	if !isJSON(header.Get("Content-Type")) {
		if len(raw) == 0 {
			return Payload{}
		}
		return Payload{"text": string(raw)}
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return Payload{}
	}
	switch v := value.(type) {
	case map[string]any:
		return Payload(v)
	case nil:
		return Payload{}
	default:
		return Payload{"data": v}
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isPlainText(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/plain"
}

// errorMessage prefers the server's detail. Bare bodies are only shown when
// they are plain text, so proxy error pages never reach a form.
func errorMessage(status int, header http.Header, payload Payload) string {
	if msg := extract.Message(payload); msg != "" {
		return msg
	}
	if text, ok := payload["text"].(string); ok && isPlainText(header.Get("Content-Type")) {
		if text = strings.TrimSpace(text); text != "" && len(text) <= 200 {
			return text
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return MessageGeneric
}
