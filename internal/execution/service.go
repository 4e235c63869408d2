package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/engine"
	"github.com/shaiso/ModuleTrack/internal/repo"
	"github.com/shaiso/ModuleTrack/internal/steps"
	"github.com/shaiso/ModuleTrack/internal/telemetry"
)

// ConfigStore — чтение тестовых процедур.
type ConfigStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TestConfig, error)
}

// UnitStore — чтение плат и партий.
type UnitStore interface {
	GetPCB(ctx context.Context, id uuid.UUID) (*domain.PCB, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error)
}

// SessionStore — хранение сессий и подписей QA.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	CreateSignoff(ctx context.Context, so *domain.QASignoff) error
	GetSignoff(ctx context.Context, sessionID uuid.UUID) (*domain.QASignoff, error)
}

// ResultStore — хранение результатов шагов.
type ResultStore interface {
	Add(ctx context.Context, r *domain.StepResult) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.StepResult, error)
	Replace(ctx context.Context, sessionID uuid.UUID, results []domain.StepResult) error
}

// EventPublisher публикует события сессий.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt domain.AuditEvent) error
}

// Service — движок выполнения тестов.
//
// Service:
//   - принимает ввод оператора по шагу и записывает результат
//   - открывает сессию при первом принятом шаге
//   - отдаёт следующий шаг и прогресс
//   - вычисляет и сохраняет итог
//   - принимает подпись QA
type Service struct {
	configs   ConfigStore
	units     UnitStore
	sessions  SessionStore
	results   ResultStore
	tracker   Tracker
	publisher EventPublisher
	registry  *steps.Registry
	logger    *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	Configs  ConfigStore
	Units    UnitStore
	Sessions SessionStore
	Results  ResultStore

	// Tracker (опционально; если nil — MemoryTracker)
	Tracker Tracker

	// Publisher (опционально; если nil — события не публикуются)
	Publisher EventPublisher

	// Registry (опционально; если nil — steps.DefaultRegistry())
	Registry *steps.Registry

	Logger *slog.Logger
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = NewMemoryTracker(0)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		configs:   cfg.Configs,
		units:     cfg.Units,
		sessions:  cfg.Sessions,
		results:   cfg.Results,
		tracker:   tracker,
		publisher: cfg.Publisher,
		registry:  registry,
		logger:    logger,
	}
}

// State — состояние выполнения процедуры на плате для оператора.
type State struct {
	PCB    *domain.PCB
	Batch  *domain.Batch
	Config *domain.TestConfig

	// Session — текущая сессия оператора на этой плате.
	// Nil, пока не принят первый шаг.
	Session *domain.Session

	Results  []domain.StepResult
	NextStep *domain.Step
	Progress engine.Progress
}

// SessionDetail — сессия со всеми результатами и подписью.
type SessionDetail struct {
	Session   *domain.Session
	Config    *domain.TestConfig
	Results   []domain.StepResult
	Summary   []engine.KindSummary
	Progress  engine.Progress
	Signoff   *domain.QASignoff
	AllPassed bool
}

// StepInput — ввод оператора по одному шагу.
type StepInput struct {
	StepID uuid.UUID
	Raw    string
}

// State возвращает состояние выполнения процедуры на плате.
func (s *Service) State(ctx context.Context, op domain.Operator, pcbID uuid.UUID) (*State, error) {
	pcb, batch, err := s.resolveUnit(ctx, pcbID)
	if err != nil {
		return nil, err
	}

	sess, err := s.currentSession(ctx, op.ID, pcbID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.configFor(ctx, batch, sess)
	if err != nil {
		return nil, err
	}

	var results []domain.StepResult
	if sess != nil {
		results, err = s.results.ListBySession(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
	}

	return buildState(pcb, batch, cfg, sess, results), nil
}

// SubmitStep принимает ввод оператора по шагу.
//
// 1. Находит плату, партию и процедуру
// 2. Проверяет, что шаг принадлежит процедуре (иначе ErrStepNotFound)
// 3. Вычисляет результат (некорректный ввод — ErrInvalidInput, ничего не пишется)
// 4. Открывает сессию, если у оператора нет текущей на этой плате
// 5. Записывает результат
//
// Повторная отправка шага добавляет ещё один результат.
func (s *Service) SubmitStep(ctx context.Context, op domain.Operator, pcbID, stepID uuid.UUID, raw string) (*domain.StepResult, *State, error) {
	logger := telemetry.WithPCBID(s.loggerFor(ctx), pcbID.String()).With("step_id", stepID)

	pcb, batch, err := s.resolveUnit(ctx, pcbID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.currentSession(ctx, op.ID, pcbID)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := s.configFor(ctx, batch, sess)
	if err != nil {
		return nil, nil, err
	}

	step, ok := cfg.Step(stepID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrStepNotFound, stepID)
	}

	res, err := s.registry.Evaluate(step, raw)
	if err != nil {
		if errors.Is(err, steps.ErrInvalidInput) {
			telemetry.StepSubmissions.WithLabelValues(string(step.Kind), "invalid").Inc()
			logger.Info("step input rejected", "kind", step.Kind, "error", err)
		}
		return nil, nil, err
	}

	now := time.Now().UTC()
	if sess == nil {
		sess = domain.NewSession(pcb.ID, cfg.ID, op.ID)
		if err := s.sessions.Create(ctx, sess); err != nil {
			return nil, nil, fmt.Errorf("create session: %w", err)
		}
		if err := s.tracker.Set(ctx, op.ID, sess.ID); err != nil {
			// Сессия создана; без трекера следующий шаг откроет новую
			logger.Warn("failed to track session", "session_id", sess.ID, "error", err)
		}
		telemetry.SessionsStarted.Inc()
		logger.Info("session started", "session_id", sess.ID, "test_config_id", cfg.ID)
	}

	res.ID = uuid.New()
	res.SessionID = sess.ID
	res.CreatedAt = now
	if err := s.results.Add(ctx, res); err != nil {
		return nil, nil, fmt.Errorf("add result: %w", err)
	}

	sess.Touch()
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("update session: %w", err)
	}

	outcome := "failed"
	if res.Satisfied() {
		outcome = "passed"
	}
	telemetry.StepSubmissions.WithLabelValues(string(step.Kind), outcome).Inc()
	logger.Debug("step recorded", "session_id", sess.ID, "kind", step.Kind, "passed", res.Passed)

	s.publish(ctx, domain.EventStepRecorded, sess, op.ID, map[string]any{
		"step_id": step.ID,
		"kind":    step.Kind,
		"passed":  res.Passed,
	})

	results, err := s.results.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}

	return res, buildState(pcb, batch, cfg, sess, results), nil
}

// NextStep возвращает следующий невыполненный шаг сессии.
// Nil означает, что все шаги выполнены.
func (s *Service) NextStep(ctx context.Context, sessionID uuid.UUID) (*domain.Step, error) {
	_, cfg, results, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return engine.NextStep(cfg, results), nil
}

// Progress возвращает прогресс сессии.
func (s *Service) Progress(ctx context.Context, sessionID uuid.UUID) (engine.Progress, error) {
	_, cfg, results, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return engine.Progress{}, err
	}
	return engine.ComputeProgress(cfg, results), nil
}

// DetermineOverallResult вычисляет итог сессии и сохраняет его.
func (s *Service) DetermineOverallResult(ctx context.Context, sessionID uuid.UUID) (domain.Verdict, error) {
	sess, cfg, results, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	verdict := engine.DetermineVerdict(cfg, results)
	sess.MarkVerdict(verdict)
	if err := s.sessions.Update(ctx, sess); err != nil {
		return "", fmt.Errorf("update session: %w", err)
	}
	return verdict, nil
}

// Complete завершает сессию техником: сохраняет заметки,
// вычисляет итог и освобождает трекер оператора.
func (s *Service) Complete(ctx context.Context, op domain.Operator, sessionID uuid.UUID, notes string) (*domain.Session, error) {
	sess, cfg, results, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsFinished() {
		return nil, ErrSessionFinalized
	}
	if sess.AbandonedAt != nil {
		return nil, ErrSessionAbandoned
	}

	if notes != "" {
		sess.Notes = notes
	}
	verdict := engine.DetermineVerdict(cfg, results)
	sess.MarkFinished(verdict)

	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := s.tracker.Release(ctx, sess.OperatorID, sess.ID); err != nil {
		s.loggerFor(ctx).Warn("failed to release tracked session", "session_id", sess.ID, "error", err)
	}

	telemetry.SessionsFinalized.WithLabelValues(string(verdict)).Inc()
	s.loggerFor(ctx).Info("session completed",
		"session_id", sess.ID,
		"pcb_id", sess.PCBID,
		"verdict", verdict,
		"results", len(results),
	)

	s.publish(ctx, domain.EventSessionCompleted, sess, op.ID, map[string]any{
		"verdict": verdict,
	})

	return sess, nil
}

// ReplaceResults заменяет все результаты сессии (исправление техником).
//
// Сначала вычисляются все новые результаты; при первом же некорректном
// вводе или чужом шаге ничего не меняется. Для завершённой сессии
// итог пересчитывается. Подписанную сессию исправить нельзя.
func (s *Service) ReplaceResults(ctx context.Context, op domain.Operator, sessionID uuid.UUID, notes string, inputs []StepInput) (*SessionDetail, error) {
	sess, cfg, _, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.GetSignoff(ctx, sess.ID); err == nil {
		return nil, ErrAlreadySignedOff
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("get signoff: %w", err)
	}

	now := time.Now().UTC()
	results := make([]domain.StepResult, 0, len(inputs))
	for _, in := range inputs {
		step, ok := cfg.Step(in.StepID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStepNotFound, in.StepID)
		}
		res, err := s.registry.Evaluate(step, in.Raw)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.ID, err)
		}
		res.ID = uuid.New()
		res.SessionID = sess.ID
		res.CreatedAt = now
		results = append(results, *res)
	}

	if err := s.results.Replace(ctx, sess.ID, results); err != nil {
		return nil, fmt.Errorf("replace results: %w", err)
	}

	if notes != "" {
		sess.Notes = notes
	}
	if sess.IsFinished() {
		sess.MarkVerdict(engine.DetermineVerdict(cfg, results))
	} else {
		sess.Touch()
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.loggerFor(ctx).Info("session results replaced",
		"session_id", sess.ID,
		"operator_id", op.ID,
		"results", len(results),
		"verdict", sess.Verdict,
	)

	return s.detail(ctx, sess, cfg, results)
}

// SignOff записывает подпись QA. Сессия должна быть завершена техником
// через Complete: итог, вычисленный DetermineOverallResult, сессию не закрывает.
// Повторная подпись — ErrAlreadySignedOff.
func (s *Service) SignOff(ctx context.Context, op domain.Operator, sessionID uuid.UUID, notes string) (*domain.QASignoff, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsFinished() || !sess.Verdict.IsFinal() {
		return nil, ErrSessionNotFinalized
	}

	if _, err := s.sessions.GetSignoff(ctx, sess.ID); err == nil {
		return nil, ErrAlreadySignedOff
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("get signoff: %w", err)
	}

	so := &domain.QASignoff{
		SessionID:   sess.ID,
		QAUserID:    op.ID,
		Notes:       notes,
		SignedOffAt: time.Now().UTC(),
	}
	if err := s.sessions.CreateSignoff(ctx, so); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, ErrAlreadySignedOff
		}
		return nil, fmt.Errorf("create signoff: %w", err)
	}

	telemetry.SignOffs.Inc()
	s.loggerFor(ctx).Info("session signed off", "session_id", sess.ID, "qa_user_id", op.ID)

	s.publish(ctx, domain.EventSessionSignedOff, sess, op.ID, map[string]any{
		"verdict": sess.Verdict,
	})

	return so, nil
}

// Detail возвращает сессию с результатами, статистикой и подписью.
func (s *Service) Detail(ctx context.Context, sessionID uuid.UUID) (*SessionDetail, error) {
	sess, cfg, results, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, sess, cfg, results)
}

// Delete удаляет сессию вместе с результатами и освобождает трекер.
func (s *Service) Delete(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.tracker.Release(ctx, sess.OperatorID, sess.ID); err != nil {
		s.loggerFor(ctx).Warn("failed to release tracked session", "session_id", sess.ID, "error", err)
	}
	return nil
}

// --- helpers ---

func (s *Service) detail(ctx context.Context, sess *domain.Session, cfg *domain.TestConfig, results []domain.StepResult) (*SessionDetail, error) {
	d := &SessionDetail{
		Session:   sess,
		Config:    cfg,
		Results:   results,
		Summary:   engine.Summarize(cfg, results),
		Progress:  engine.ComputeProgress(cfg, results),
		AllPassed: engine.DetermineVerdict(cfg, results) == domain.VerdictPassed,
	}

	so, err := s.sessions.GetSignoff(ctx, sess.ID)
	switch {
	case err == nil:
		d.Signoff = so
	case errors.Is(err, repo.ErrNotFound):
	default:
		return nil, fmt.Errorf("get signoff: %w", err)
	}
	return d, nil
}

// resolveUnit находит плату и её партию.
func (s *Service) resolveUnit(ctx context.Context, pcbID uuid.UUID) (*domain.PCB, *domain.Batch, error) {
	pcb, err := s.units.GetPCB(ctx, pcbID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrPCBNotFound, pcbID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get pcb: %w", err)
	}

	batch, err := s.units.GetBatch(ctx, pcb.BatchID)
	if err != nil {
		return nil, nil, fmt.Errorf("get batch: %w", err)
	}
	return pcb, batch, nil
}

// currentSession возвращает открытую сессию оператора на плате.
// Nil, если оператор не отслеживается, работает с другой платой
// или его сессия уже завершена, брошена либо подписана QA.
func (s *Service) currentSession(ctx context.Context, operatorID string, pcbID uuid.UUID) (*domain.Session, error) {
	id, ok, err := s.tracker.Get(ctx, operatorID)
	if err != nil {
		s.loggerFor(ctx).Warn("tracker unavailable, starting without session", "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	sess, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		_ = s.tracker.Release(ctx, operatorID, id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if sess.PCBID != pcbID || sess.IsFinished() || sess.AbandonedAt != nil {
		return nil, nil
	}

	// В подписанную сессию новые результаты не пишутся
	_, err = s.sessions.GetSignoff(ctx, sess.ID)
	switch {
	case err == nil:
		_ = s.tracker.Release(ctx, operatorID, sess.ID)
		return nil, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("get signoff: %w", err)
	}
	return sess, nil
}

// configFor возвращает процедуру сессии, а без сессии — процедуру партии.
func (s *Service) configFor(ctx context.Context, batch *domain.Batch, sess *domain.Session) (*domain.TestConfig, error) {
	id := batch.TestConfigID
	if sess != nil {
		id = sess.TestConfigID
	}
	if id == uuid.Nil {
		return nil, ErrNoTestConfig
	}

	cfg, err := s.configs.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoTestConfig, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get test config: %w", err)
	}
	cfg.SortSteps()
	return cfg, nil
}

func (s *Service) getSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// loadSession загружает сессию, её процедуру и результаты.
func (s *Service) loadSession(ctx context.Context, id uuid.UUID) (*domain.Session, *domain.TestConfig, []domain.StepResult, error) {
	sess, err := s.getSession(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := s.configs.GetByID(ctx, sess.TestConfigID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrNoTestConfig, sess.TestConfigID)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get test config: %w", err)
	}
	cfg.SortSteps()

	results, err := s.results.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list results: %w", err)
	}
	return sess, cfg, results, nil
}

// publish публикует событие сессии. Ошибка публикации не фатальна:
// состояние уже сохранено в БД.
func (s *Service) publish(ctx context.Context, typ domain.EventType, sess *domain.Session, operatorID string, payload map[string]any) {
	if s.publisher == nil {
		return
	}

	evt := domain.AuditEvent{
		ID:         uuid.New(),
		Type:       typ,
		SessionID:  sess.ID,
		PCBID:      sess.PCBID,
		OperatorID: operatorID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishEvent(ctx, evt); err != nil {
		s.loggerFor(ctx).Warn("failed to publish event",
			"type", typ,
			"session_id", sess.ID,
			"error", err,
		)
	}
}

// loggerFor возвращает логгер запроса, если он есть в контексте.
func (s *Service) loggerFor(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(telemetry.CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return s.logger
}

func buildState(pcb *domain.PCB, batch *domain.Batch, cfg *domain.TestConfig, sess *domain.Session, results []domain.StepResult) *State {
	return &State{
		PCB:      pcb,
		Batch:    batch,
		Config:   cfg,
		Session:  sess,
		Results:  results,
		NextStep: engine.NextStep(cfg, results),
		Progress: engine.ComputeProgress(cfg, results),
	}
}
