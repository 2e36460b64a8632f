package handler

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aserras/web/backend/internal/config"
	"github.com/aserras/web/backend/internal/handler/auth"
	"github.com/aserras/web/backend/internal/handler/chat"
	"github.com/aserras/web/backend/internal/handler/page"
	"github.com/aserras/web/backend/internal/handler/payment"
	"github.com/aserras/web/backend/internal/handler/settings"
	"github.com/aserras/web/backend/internal/handler/site"
	"github.com/aserras/web/backend/internal/handler/workspace"
	middlewarePkg "github.com/aserras/web/backend/internal/middleware"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/brain"
	chatService "github.com/aserras/web/backend/internal/service/chat"
	paymentService "github.com/aserras/web/backend/internal/service/payment"
)

// Dependencies are the services the router wires to routes.
type Dependencies struct {
	Config   *config.Config
	Accounts *account.Service
	History  *chatService.Service
	Payments *paymentService.Service
	// Brain is nil in local mode.
	Brain *brain.Client
	// Assistant answers chat locally; it may also implement chat.Streamer.
	Assistant chat.Responder
	// Coder is nil when no local model is configured.
	Coder  workspace.Coder
	Assets fs.FS
	// LocalModels are offered in settings when Brain is nil.
	LocalModels []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) (http.Handler, error) {
	cfg := deps.Config

	// Interfaces stay nil in local mode; a typed nil would look configured.
	var (
		authUpstream      auth.Upstream
		chatUpstream      chat.Upstream
		workspaceUpstream workspace.Upstream
		settingsUpstream  settings.Upstream
	)
	if deps.Brain != nil {
		authUpstream = deps.Brain
		chatUpstream = deps.Brain
		workspaceUpstream = deps.Brain
		settingsUpstream = deps.Brain
	}

	pageHandler, err := page.New(deps.Assets, page.Options{
		Flags:    cfg.UI.Flags,
		APIBase:  cfg.UI.PublicAPIBase,
		Resolver: deps.Accounts,
	})
	if err != nil {
		return nil, err
	}

	authHandler := auth.New(deps.Accounts, authUpstream)
	chatHandler := chat.New(deps.History, chatUpstream, deps.Assistant)
	workspaceHandler := workspace.New(workspaceUpstream, deps.Coder)
	settingsHandler := settings.New(deps.Accounts, settingsUpstream, deps.LocalModels)
	paymentHandler := payment.New(deps.Payments, payment.Options{
		PayPalEnabled: cfg.Payments.PayPalEnabled,
		SelfTestEnv: map[string]bool{
			"BRAIN_BASE":      cfg.Brain.Enabled(),
			"SERVICE_TOKEN":   cfg.Brain.ServiceToken != "",
			"ALLOWED_ORIGINS": len(cfg.CORS.AllowedOrigins) > 0,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	siteHandler := site.New(site.Status{
		BrainConfigured:  cfg.Brain.Enabled(),
		CoreConfigured:   cfg.Brain.ServiceToken != "",
		StripeConfigured: cfg.Payments.StripeConfigured(),
	})

	requireAuth := middlewarePkg.RequireAuth(deps.Accounts)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.CORS))

	siteHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.RateLimit(cfg.RateLimit))

		authHandler.RegisterRoutes(api)
		siteHandler.RegisterAPIRoutes(api)
		paymentHandler.RegisterRoutes(api, requireAuth)

		api.Group(func(protected chi.Router) {
			protected.Use(middlewarePkg.TokenFromQuery)
			protected.Use(requireAuth)

			chatHandler.RegisterRoutes(protected)
			workspaceHandler.RegisterRoutes(protected)
			settingsHandler.RegisterRoutes(protected)
		})
	})

	pageHandler.RegisterRoutes(r)
	r.NotFound(pageHandler.NotFound)

	return r, nil
}
