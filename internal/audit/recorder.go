package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/mq"
	"github.com/shaiso/ModuleTrack/internal/telemetry"
)

const defaultPrefetch = 10

// EventStore — хранилище журнала аудита.
type EventStore interface {
	Insert(ctx context.Context, evt *domain.AuditEvent) (bool, error)
}

// Recorder — consumer очереди audit.events.
type Recorder struct {
	store    EventStore
	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Recorder.
type Config struct {
	Store EventStore
	Conn  *mq.Connection

	// Prefetch — сообщений в обработке одновременно (default: 10)
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Recorder.
func New(cfg Config) *Recorder {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		store:    cfg.Store,
		conn:     cfg.Conn,
		prefetch: prefetch,
		logger:   logger.With("component", "audit"),
	}
}

// Start запускает потребление очереди в отдельной горутине.
func (r *Recorder) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
		Queue:    mq.QueueAuditEvents,
		Handler:  r.handleEvent,
		Prefetch: r.prefetch,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("audit consumer error", "error", err)
		}
	}()

	r.logger.Info("audit recorder started", "prefetch", r.prefetch)
	return nil
}

// Stop останавливает Recorder и ждёт завершения обработки.
func (r *Recorder) Stop() {
	r.logger.Info("stopping audit recorder...")

	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	if r.consumer != nil {
		r.consumer.Stop()
	}
	r.wg.Wait()

	r.logger.Info("audit recorder stopped")
}

// handleEvent сохраняет одно событие.
func (r *Recorder) handleEvent(ctx context.Context, delivery *mq.Delivery) error {
	evt, err := mq.ParsePayload[domain.AuditEvent](&delivery.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrPoison, err)
	}
	if err := validateEvent(&evt, delivery.Message.Type); err != nil {
		return err
	}

	logger := telemetry.WithSessionID(r.logger, evt.SessionID.String())

	inserted, err := r.store.Insert(ctx, &evt)
	if err != nil {
		return fmt.Errorf("store audit event: %w", err)
	}
	if !inserted {
		logger.Debug("duplicate audit event skipped", "event_id", evt.ID, "type", evt.Type)
		return nil
	}

	telemetry.AuditEventsStored.WithLabelValues(string(evt.Type)).Inc()
	logger.Debug("audit event stored", "event_id", evt.ID, "type", evt.Type)
	return nil
}

// validateEvent отсекает события, которые никогда не станут корректными.
func validateEvent(evt *domain.AuditEvent, msgType domain.EventType) error {
	switch {
	case evt.ID == uuid.Nil:
		return fmt.Errorf("%w: event without id", mq.ErrPoison)
	case evt.SessionID == uuid.Nil:
		return fmt.Errorf("%w: event %s without session", mq.ErrPoison, evt.ID)
	case evt.Type == "":
		return fmt.Errorf("%w: event %s without type", mq.ErrPoison, evt.ID)
	case msgType != "" && msgType != evt.Type:
		return fmt.Errorf("%w: event %s type %q does not match message type %q", mq.ErrPoison, evt.ID, evt.Type, msgType)
	}
	if _, err := mq.RoutingKeyFor(evt.Type); err != nil {
		return fmt.Errorf("%w: %v", mq.ErrPoison, err)
	}
	return nil
}
