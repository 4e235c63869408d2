// ModuleTrack Sweeper — освобождает брошенные тестовые сессии.
//
// Sweeper по cron-расписанию находит незавершённые сессии без активности,
// снимает запись "текущая сессия оператора" в Redis и публикует
// session.abandoned. Проход выполняет только держатель
// pg_advisory_lock, остальные экземпляры ждут.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/ModuleTrack/internal/config"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/mq"
	"github.com/shaiso/ModuleTrack/internal/repo"
	"github.com/shaiso/ModuleTrack/internal/sweeper"
	"github.com/shaiso/ModuleTrack/internal/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting moduletrack-sweeper")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// leader election через pg_try_advisory_lock
	lock := repo.NewAdvisoryLock(pool, repo.SweeperLockKey)

	swCfg := sweeper.Config{
		Sessions:     repo.NewSessionRepo(pool),
		Leader:       lock,
		Cron:         cfg.Sweeper.Cron,
		AbandonAfter: cfg.Sweeper.AbandonAfter,
		BatchSize:    cfg.Sweeper.BatchSize,
		Logger:       logger,
	}

	// Трекер в памяти API недоступен отсюда, освобождаем только Redis
	if cfg.Redis.URL != "" {
		client, err := execution.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("Redis not available, operator entries expire by TTL", "error", err)
		} else {
			defer client.Close()
			swCfg.Tracker = execution.NewRedisTracker(client, cfg.Redis.KeyPrefix, cfg.Redis.SessionTTL)
			logger.Info("Redis connected")
		}
	}

	// RabbitMQ (опционально)
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, "moduletrack-sweeper", logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, session.abandoned is not published", "error", err)
		} else {
			defer mqConn.Close()
			logger.Info("RabbitMQ connected")

			if err := mq.SetupTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			swCfg.Publisher = mq.NewPublisher(mqConn, logger)
		}
	}

	sw, err := sweeper.New(swCfg)
	if err != nil {
		logger.Error("invalid sweeper config", "error", err)
		os.Exit(1)
	}
	sw.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.Sweeper.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sw.Stop()
	if err := lock.Release(context.Background()); err != nil {
		logger.Warn("failed to release advisory lock", "error", err)
	}
	_ = server.Shutdown(context.Background())
	logger.Info("moduletrack-sweeper stopped")
}
