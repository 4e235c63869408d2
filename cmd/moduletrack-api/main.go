// ModuleTrack API — HTTP API для учёта тестирования плат.
//
// API:
//   - Управляет тестовыми процедурами, типами плат, партиями и платами
//   - Принимает результаты шагов и ведёт тестовые сессии
//   - Публикует события сессий в RabbitMQ (если настроен)
//
// Текущая сессия оператора хранится в Redis, без Redis — в памяти процесса.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/shaiso/ModuleTrack/internal/access"
	"github.com/shaiso/ModuleTrack/internal/api"
	"github.com/shaiso/ModuleTrack/internal/config"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/mq"
	"github.com/shaiso/ModuleTrack/internal/repo"
	"github.com/shaiso/ModuleTrack/internal/telemetry"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting moduletrack-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	configRepo := repo.NewTestConfigRepo(pool)
	pcbTypeRepo := repo.NewPCBTypeRepo(pool)
	batchRepo := repo.NewBatchRepo(pool)
	sessionRepo := repo.NewSessionRepo(pool)
	resultRepo := repo.NewResultRepo(pool)
	auditRepo := repo.NewAuditRepo(pool)

	// Трекер текущих сессий операторов
	var tracker execution.Tracker = execution.NewMemoryTracker(cfg.Redis.SessionTTL)
	if cfg.Redis.URL != "" {
		client, err := execution.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("Redis not available, tracking operator sessions in memory", "error", err)
		} else {
			defer client.Close()
			tracker = execution.NewRedisTracker(client, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL)
			logger.Info("Redis connected")
		}
	}

	// RabbitMQ (опционально)
	var publisher execution.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, "moduletrack-api", logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, session events are not published", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	svc := execution.New(execution.Config{
		Configs:   configRepo,
		Units:     batchRepo,
		Sessions:  sessionRepo,
		Results:   resultRepo,
		Tracker:   tracker,
		Publisher: publisher,
		Logger:    logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Configs:   configRepo,
		PCBTypes:  pcbTypeRepo,
		Units:     batchRepo,
		Sessions:  sessionRepo,
		Audit:     auditRepo,
		Execution: svc,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	// CORS для слоя представления
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.API.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{
			"Content-Type",
			access.HeaderOperatorID,
			access.HeaderOperatorGroups,
			access.HeaderSuperuser,
		},
	})

	// Создаём HTTP сервер с возможностью graceful shutdown
	addr := config.Addr(cfg.API.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr, "cors_origins", cfg.API.CORSOrigins)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
