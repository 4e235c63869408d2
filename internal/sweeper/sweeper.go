package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/repo"
	"github.com/shaiso/ModuleTrack/internal/telemetry"
)

// SessionStore — выборка и пометка брошенных сессий.
type SessionStore interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Session, error)
	MarkAbandoned(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Tracker освобождает запись "текущая сессия оператора".
type Tracker interface {
	Release(ctx context.Context, operatorID string, sessionID uuid.UUID) error
}

// EventPublisher публикует события сессий.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt domain.AuditEvent) error
}

// Leader решает, выполняет ли этот процесс проход.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
}

// Sweeper — освобождение брошенных незавершённых сессий.
type Sweeper struct {
	sessions     SessionStore
	tracker      Tracker
	publisher    EventPublisher
	leader       Leader
	schedule     cron.Schedule
	abandonAfter time.Duration
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Sweeper.
type Config struct {
	Sessions SessionStore

	// Tracker (опционально; если nil — записи операторов не трогаются)
	Tracker Tracker

	// Publisher (опционально; если nil — события не публикуются)
	Publisher EventPublisher

	// Leader (опционально; если nil — процесс всегда лидер)
	Leader Leader

	Cron         string        // расписание (default: DefaultCron)
	AbandonAfter time.Duration // простой сессии (default: 12h)
	BatchSize    int           // сессий за один проход (default: 100)
	Logger       *slog.Logger
}

// New создаёт новый Sweeper. Невалидное cron-выражение — ошибка.
func New(cfg Config) (*Sweeper, error) {
	expr := cfg.Cron
	if expr == "" {
		expr = DefaultCron
	}
	schedule, err := parseCron(expr)
	if err != nil {
		return nil, err
	}

	abandonAfter := cfg.AbandonAfter
	if abandonAfter <= 0 {
		abandonAfter = 12 * time.Hour
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		sessions:     cfg.Sessions,
		tracker:      cfg.Tracker,
		publisher:    cfg.Publisher,
		leader:       cfg.Leader,
		schedule:     schedule,
		abandonAfter: abandonAfter,
		batchSize:    batchSize,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Tick выполняет один проход и возвращает число освобождённых сессий.
//
// 1. Проверяет лидерство
// 2. Находит незавершённые сессии, не менявшиеся дольше abandonAfter
// 3. Помечает каждую брошенной
// 4. Освобождает запись оператора и публикует session.abandoned
//
// Ошибки одной сессии не блокируют обработку остальных.
func (s *Sweeper) Tick(ctx context.Context) (int, error) {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			return 0, fmt.Errorf("leader election: %w", err)
		}
		if !ok {
			s.logger.Debug("not a leader, skipping sweep")
			return 0, nil
		}
	}

	now := s.now().UTC()
	stale, err := s.sessions.ListStale(ctx, now.Add(-s.abandonAfter), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var released int
	for i := range stale {
		sess := &stale[i]
		if err := s.abandon(ctx, sess, now); err != nil {
			s.logger.Error("failed to abandon session",
				"session_id", sess.ID,
				"operator_id", sess.OperatorID,
				"error", err,
			)
			continue
		}
		released++
	}

	s.logger.Info("sweep completed",
		"stale", len(stale),
		"abandoned", released,
	)
	return released, nil
}

// abandon освобождает одну сессию.
func (s *Sweeper) abandon(ctx context.Context, sess *domain.Session, now time.Time) error {
	if err := s.sessions.MarkAbandoned(ctx, sess.ID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// сессию завершили или удалили между выборкой и пометкой
			return nil
		}
		return fmt.Errorf("mark abandoned: %w", err)
	}

	logger := telemetry.WithSessionID(s.logger, sess.ID.String())

	if s.tracker != nil {
		if err := s.tracker.Release(ctx, sess.OperatorID, sess.ID); err != nil {
			// запись истечёт по TTL
			logger.Warn("failed to release operator tracker", "operator_id", sess.OperatorID, "error", err)
		}
	}

	if s.publisher != nil {
		evt := domain.AuditEvent{
			ID:         uuid.New(),
			Type:       domain.EventSessionAbandoned,
			SessionID:  sess.ID,
			PCBID:      sess.PCBID,
			OperatorID: sess.OperatorID,
			Payload: map[string]any{
				"last_activity_at": sess.UpdatedAt.UTC().Format(time.RFC3339),
				"abandon_after":    s.abandonAfter.String(),
			},
			OccurredAt: now,
		}
		if err := s.publisher.PublishEvent(ctx, evt); err != nil {
			logger.Warn("failed to publish session.abandoned", "error", err)
		}
	}

	telemetry.SessionsAbandoned.Inc()
	logger.Info("session abandoned",
		"operator_id", sess.OperatorID,
		"pcb_id", sess.PCBID,
		"last_activity_at", sess.UpdatedAt,
	)
	return nil
}

// Start запускает проходы по расписанию.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.logger.Info("sweeper started",
		"next_run", nextRun(s.schedule, s.now()),
		"abandon_after", s.abandonAfter,
		"batch_size", s.batchSize,
	)
}

// Stop останавливает Sweeper и ждёт завершения текущего прохода.
func (s *Sweeper) Stop() {
	s.logger.Info("stopping sweeper...")
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	for {
		now := s.now()
		timer := time.NewTimer(nextRun(s.schedule, now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
