// ModuleTrack Audit — сохраняет события сессий в журнал аудита.
//
// Audit:
//   - Получает события из очереди audit.events
//   - Пишет их в audit_events (идемпотентно по ID события)
//   - Отправляет неразборчивые сообщения в DLQ
//
// Экземпляры масштабируются горизонтально.
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

	"github.com/shaiso/ModuleTrack/internal/audit"
	"github.com/shaiso/ModuleTrack/internal/config"
	"github.com/shaiso/ModuleTrack/internal/mq"
	"github.com/shaiso/ModuleTrack/internal/repo"
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
	logger.Info("starting moduletrack-audit")

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

	// RabbitMQ обязателен: без очереди процессу нечего делать
	mqURL := cfg.RabbitMQ.URL
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, "moduletrack-audit", logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	recorder := audit.New(audit.Config{
		Store:    repo.NewAuditRepo(pool),
		Conn:     mqConn,
		Prefetch: cfg.Audit.Prefetch,
		Logger:   logger,
	})
	if err := recorder.Start(ctx); err != nil {
		logger.Error("failed to start audit recorder", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(w, "rabbitmq disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.Audit.Port)
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

	recorder.Stop()
	_ = server.Shutdown(context.Background())
	logger.Info("moduletrack-audit stopped")
}
