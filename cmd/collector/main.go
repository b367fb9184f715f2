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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/examguard/internal/collector"
	"github.com/xela07ax/examguard/internal/infra"
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

	// Контекст для управления жизненным циклом фоновых горутин
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
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

	media, err := collector.NewDiskStore(cfg.Collector.MediaDir)
	if err != nil {
		logger.Fatal("failed to init media storage", zap.Error(err))
	}

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := collector.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 4. Control Plane: блоклист терминированных попыток
	blocklist := collector.NewBlocklist(rdb, attemptRepo, logger)
	if err := blocklist.Init(appCtx); err != nil {
		logger.Fatal("failed to init blocklist", zap.Error(err))
	}
	go blocklist.StartListener(appCtx)

	// 5. Пайплайн событий и скользящее окно нарушений
	pipeline := collector.NewEventPipeline(eventRepo, metrics, collector.PipelineConfig{
		BufferSize:    cfg.Collector.EventBufferSize,
		BatchSize:     cfg.Collector.EventBatchSize,
		FlushInterval: cfg.Collector.EventFlushInterval,
	}, logger)
	pipeline.Start()

	enforcer := collector.NewEnforcer(
		attemptRepo,
		collector.NewRedisFlagSignaler(rdb),
		metrics,
		collector.EnforcerConfig{
			Window:    cfg.Collector.FlagWindow,
			Threshold: cfg.Collector.FlagThreshold,
		},
		logger,
	)

	// Слушаем сигналы флагов: соседние узлы и снятие флага ревьюером
	go collector.ListenStateResilient(appCtx, rdb,
		logger.With(zap.String("mod", "flag-listener")),
		infra.RedisChanFlags,
		func() error { return nil }, // окно живет в памяти, ресинк не нужен
		enforcer.Apply,
	)

	// 6. HTTP Server
	api := collector.NewServer(
		cfg.Collector,
		attemptRepo,
		snapshotRepo,
		media,
		pipeline,
		enforcer,
		blocklist,
		metrics,
		logger,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("collector started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("collector stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Слушатели вниз, потом дописываем хвост событий
	cancel()
	pipeline.Stop()
	logger.Info("collector exited properly")
}
