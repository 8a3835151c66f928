package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-payments/config"
	"github.com/Dosada05/tournament-payments/db"
	"github.com/Dosada05/tournament-payments/handlers"
	"github.com/Dosada05/tournament-payments/localcache"
	"github.com/Dosada05/tournament-payments/payments"
	"github.com/Dosada05/tournament-payments/repositories"
	api "github.com/Dosada05/tournament-payments/routes"
	"github.com/Dosada05/tournament-payments/services"
	"github.com/Dosada05/tournament-payments/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Локальный кэш начатых оплат (bbolt, переживает рестарты)
	pendingCache, err := localcache.NewBoltCache(cfg.LocalCachePath)
	if err != nil {
		logger.Error("failed to open local pending-payment cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := pendingCache.Close(); err != nil {
			logger.Error("failed to close local cache", slog.Any("error", err))
		}
	}()
	logger.Info("local pending-payment cache opened", slog.String("path", cfg.LocalCachePath))

	// Инициализация загрузчика отчётов (Cloudflare R2)
	reportUploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	// Платёжный провайдер (Stripe: checkout, верификация, выплаты)
	stripeProvider, err := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeCurrency)
	if err != nil {
		logger.Error("failed to initialize payment provider", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("payment provider initialized")

	// Инициализация WebSocket Hub
	wsHub := payments.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	// Инициализация репозиториев
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	transactionRepo := repositories.NewPostgresTransactionRepository(dbConn)
	settlementRepo := repositories.NewPostgresSettlementRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	authService := services.NewAuthService(userRepo)
	fingerprintService := services.NewFingerprintService(registrationRepo)
	registrationService := services.NewRegistrationService(registrationRepo, tournamentRepo, fingerprintService, logger)
	ledgerService := services.NewLedgerService(transactionRepo, wsHub, logger)
	paymentService := services.NewPaymentService(
		ledgerService,
		registrationService,
		stripeProvider,
		stripeProvider,
		pendingCache,
		logger,
	)
	recoveryService := services.NewRecoveryService(pendingCache, registrationService, ledgerService, logger)
	tournamentService := services.NewTournamentService(tournamentRepo, registrationRepo, logger)
	settlementService := services.NewSettlementService(
		tournamentRepo,
		registrationRepo,
		settlementRepo,
		stripeProvider,
		reportUploader,
		logger,
	)
	logger.Info("Services initialized")

	// Сверка локального кэша при старте: незавершённые оплаты прошлого
	// запуска разрешаются до приёма нового трафика.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if reports, err := recoveryService.ReconcilePendingPayments(startupCtx); err != nil {
		logger.Error("startup reconciliation failed", slog.Any("error", err))
	} else if len(reports) > 0 {
		logger.Info("startup reconciliation finished", slog.Int("entries", len(reports)))
	}
	cancelStartup()

	// Планировщик: пересчёт агрегатов и очистка зависших PENDING
	stopScheduler, err := services.StartScheduler(tournamentService, ledgerService, logger)
	if err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	defer stopScheduler()
	logger.Info("scheduler started")

	// Инициализация обработчиков HTTP
	authHandler := handlers.NewAuthHandler(authService, cfg.JWTSecretKey)
	registrationHandler := handlers.NewRegistrationHandler(registrationService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, ledgerService, recoveryService, registrationService)
	settlementHandler := handlers.NewSettlementHandler(settlementService, tournamentService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		cfg.JWTSecretKey,
		authHandler,
		registrationHandler,
		paymentHandler,
		settlementHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
