package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aserras/web/backend/internal/config"
	"github.com/aserras/web/backend/internal/handler"
	"github.com/aserras/web/backend/internal/logging"
	"github.com/aserras/web/backend/internal/service/account"
	"github.com/aserras/web/backend/internal/service/ai"
	"github.com/aserras/web/backend/internal/service/brain"
	"github.com/aserras/web/backend/internal/service/chat"
	"github.com/aserras/web/backend/internal/service/payment"
	"github.com/aserras/web/backend/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if envErr != nil {
		logging.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}
	if cfg.Session.Ephemeral {
		logging.Warn("ASERRAS_SESSION_SECRET 未配置，使用临时密钥签发会话；重启后所有会话失效")
	}

	deps := handler.Dependencies{
		Config:   cfg,
		Accounts: account.NewService(cfg.Session, !cfg.Brain.Enabled()),
		History:  chat.NewService(0),
		Assets:   web.FS,
	}

	if cfg.Brain.Enabled() {
		deps.Brain = brain.New(cfg.Brain)
		logging.Info("Aserras Brain configured", zap.String("base", cfg.Brain.BaseURL))
	} else {
		logging.Info("BRAIN_BASE 未配置，以本地模式运行")
	}

	// Initialize AI service
	deps.Assistant = ai.Echo{}
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			logging.Warn("failed to initialize AI service, continuing with the offline responder", zap.Error(err))
		} else {
			deps.Assistant = aiService
			deps.Coder = aiService
			deps.LocalModels = []string{cfg.AI.Model}
			logging.Info("AI service initialized", zap.String("model", cfg.AI.Model))
		}
	} else {
		logging.Info("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	var provider payment.Provider
	if cfg.Payments.StripeConfigured() || cfg.Payments.StripeWebhookSecret != "" {
		provider = payment.NewStripeProvider(cfg.Payments.StripeSecretKey)
	} else {
		logging.Info("Stripe 未配置，支付接口将返回 503")
	}
	deps.Payments = payment.NewService(cfg.Payments, provider)

	router, err := handler.NewRouter(deps)
	if err != nil {
		logging.Error("failed to build router", zap.Error(err))
		return
	}

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Info("Aserras web listening on "+addr, zap.Bool("debug", serverCfg.Debug))
	if err := runServer(ctx, srv); err != nil {
		logging.Error("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
