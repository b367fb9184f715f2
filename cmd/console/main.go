package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/console/handler"
	"github.com/xela07ax/examguard/internal/console/server"
	"github.com/xela07ax/examguard/internal/console/service"
	"github.com/xela07ax/examguard/internal/infra"
	"github.com/xela07ax/examguard/internal/infra/auth"
	"github.com/xela07ax/examguard/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	attemptRepo := postgres.NewAttemptRepo(pool)
	eventRepo := postgres.NewEventRepo(pool)
	snapshotRepo := postgres.NewSnapshotRepo(pool)
	userRepo := postgres.NewUserRepo(pool)

	// 3. Ключи RSA: публичный проверяет токены, приватный подписывает
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	validator := auth.NewBaseValidator(publicKey)

	// 4. Инициализация слоев (Dependency Injection)
	authService := service.NewAuthService(userRepo, privateKey)
	attemptService := service.NewAttemptService(rdb, attemptRepo, eventRepo, snapshotRepo, validator, logger)

	authHandler := handler.NewAuthHandler(authService)
	attemptHandler := handler.NewAttemptHandler(attemptService)
	dashHandler := handler.NewDashboardHandler(attemptService)

	consoleSrv := server.NewConsoleServer(cfg, logger, attemptService, authHandler, attemptHandler, dashHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Console.Host, cfg.Console.Port),
		Handler: consoleSrv,
	}

	// 5. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("console stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}
