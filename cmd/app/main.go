package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-tarot-miniapp/internal/config"
	"telegram-tarot-miniapp/internal/domain/ports/adapter"
	aiAdapters "telegram-tarot-miniapp/internal/infra/adapters/ai"
	payAdapters "telegram-tarot-miniapp/internal/infra/adapters/payment"
	tele "telegram-tarot-miniapp/internal/infra/adapters/telegram"
	"telegram-tarot-miniapp/internal/infra/api"
	pg "telegram-tarot-miniapp/internal/infra/db/postgres"
	"telegram-tarot-miniapp/internal/infra/logging"
	"telegram-tarot-miniapp/internal/infra/metrics"
	red "telegram-tarot-miniapp/internal/infra/redis"
	"telegram-tarot-miniapp/internal/infra/sched"
	"telegram-tarot-miniapp/internal/tarot"
	"telegram-tarot-miniapp/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop adapters where keys are missing)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer func() { _ = redisClient.Close() }()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewPostgresUserRepo(pool)
	readingRepo := pg.NewPostgresReadingRepo(pool)
	payRepo := pg.NewPostgresPaymentRepo(pool)

	// ---- AI adapter (OpenAI -> Gemini -> noop in dev) ----
	var ai adapter.AIServiceAdapter
	switch {
	case cfg.AI.OpenAIKey != "":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter init failed")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI")
	case cfg.AI.GeminiKey != "":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter init failed")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: Gemini")
	case cfg.Runtime.Dev:
		ai = aiAdapters.NewNoopAIAdapter()
		logger.Warn().Msg("AI adapter: noop (dev mode, no keys configured)")
	default:
		logger.Fatal().Msg("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}
	if cfg.AI.MaxPromptTok > 0 {
		ai, err = aiAdapters.WithPromptBudget(ai, cfg.AI.MaxPromptTok)
		if err != nil {
			logger.Fatal().Err(err).Msg("prompt budget init failed")
		}
	}

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Payment.YooKassa.ShopID != "" {
		gateway, err = payAdapters.NewYooKassaGateway(cfg.Payment.YooKassa.ShopID, cfg.Payment.YooKassa.SecretKey, cfg.Payment.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("yookassa gateway init failed")
		}
	} else if cfg.Runtime.Dev {
		gateway = payAdapters.NewNoopGateway()
		logger.Warn().Msg("payment gateway: noop (dev mode)")
	} else {
		logger.Fatal().Msg("payment.yookassa.shop_id is required outside dev mode")
	}

	// ---- Telegram notifier ----
	var notifier adapter.TelegramNotifier
	notifier, err = tele.NewRealBotNotifier(cfg.Auth.BotToken)
	if err != nil {
		if !cfg.Runtime.Dev {
			logger.Fatal().Err(err).Msg("telegram bot init failed")
		}
		notifier = tele.NewNoopBotNotifier()
		logger.Warn().Err(err).Msg("telegram notifier: noop (dev mode)")
	}

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, logger)
	entUC := usecase.NewEntitlementUseCase(userRepo, logger)
	readingUC := usecase.NewReadingUseCase(readingRepo, userRepo, entUC, ai, tarot.NewDeck(), cfg.AI.Timeout, logger)
	paymentUC := usecase.NewPaymentUseCase(payRepo, userRepo, gateway, notifier, logger)

	// ---- HTTP server ----
	auth := api.NewAuthManager(cfg.Auth.BotToken, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	srv := api.NewServer(cfg.Server.Port, userUC, entUC, readingUC, paymentUC, auth, rateLimiter, cfg.Auth.AdminKey, cfg.Payment.YooKassa.WebhookSecret, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Workers ----
	expiry := sched.NewExpiryWorker(cfg.Sched.ExpiryInterval, userRepo, logger)
	go func() { _ = expiry.Run(ctx) }()

	reconciler := sched.NewPaymentReconciler(paymentUC, cfg.Sched.ReconcileInterval, cfg.Sched.ReconcileStaleFrom, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
