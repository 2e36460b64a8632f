// Package middleware holds the HTTP middleware shared by every route group.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/aserras/web/backend/internal/config"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/pkg/utils"
)

// CORS allows the configured origins. Credentials are only allowed for an
// explicit origin list.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: cfg.AllowCredentials(),
		MaxAge:           300,
	})
}

// RateLimit limits each client IP; a non-positive limit disables it.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(cfg.Requests, cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			utils.RespondError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
		}),
	)
}

type identityKey struct{}

// IdentityResolver maps an Authorization header to a caller.
type IdentityResolver interface {
	Resolve(header string) (account.Identity, error)
}

// RequireAuth rejects requests without a usable bearer token with 401 and
// stores the caller in the request context.
func RequireAuth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r.Header.Get("Authorization"))
			if err != nil {
				logging.LogHTTPRequest(r, http.StatusUnauthorized, err.Error())
				utils.RespondError(w, http.StatusUnauthorized, "Login required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id account.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by RequireAuth.
func IdentityFrom(ctx context.Context) (account.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(account.Identity)
	return id, ok
}

// TokenFromQuery lets websocket upgrades carry the bearer token as ?token=,
// since browsers cannot set headers on them.
func TokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if token := r.URL.Query().Get("token"); token != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}
