package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session — тестовая сессия одной платы.
//
// Сессия создаётся лениво, при первом принятом результате шага.
// Результаты шагов (StepResult) ссылаются на сессию.
// Сессия завершается техником (Complete) и затем
// подписывается QA (QASignoff, не более одного раза).
type Session struct {
	// ID — уникальный идентификатор сессии.
	ID uuid.UUID `json:"id"`

	// PCBID — тестируемая плата.
	PCBID uuid.UUID `json:"pcb_id"`

	// TestConfigID — процедура, действовавшая на момент открытия сессии.
	TestConfigID uuid.UUID `json:"test_config_id"`

	// OperatorID — техник, выполнявший тест (идентификатор из identity-сервиса).
	OperatorID string `json:"operator_id"`

	// Notes — заметки техника.
	Notes string `json:"notes,omitempty"`

	// Verdict — итог. INCOMPLETE до завершения.
	Verdict Verdict `json:"verdict"`

	// StartedAt — время открытия сессии.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения техником.
	// Nil, пока сессия не завершена.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// AbandonedAt — время, когда sweeper признал сессию брошенной.
	AbandonedAt *time.Time `json:"abandoned_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession создаёт новую сессию в статусе INCOMPLETE.
func NewSession(pcbID, testConfigID uuid.UUID, operatorID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New(),
		PCBID:        pcbID,
		TestConfigID: testConfigID,
		OperatorID:   operatorID,
		Verdict:      VerdictIncomplete,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsFinished возвращает true, если техник завершил сессию.
func (s *Session) IsFinished() bool {
	return s.FinishedAt != nil
}

// Touch обновляет UpdatedAt.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// MarkVerdict устанавливает итог.
func (s *Session) MarkVerdict(v Verdict) {
	s.Verdict = v
	s.Touch()
}

// MarkFinished завершает сессию с итогом.
// Повторное завершение сохраняет первое время завершения.
func (s *Session) MarkFinished(v Verdict) {
	now := time.Now().UTC()
	s.Verdict = v
	if s.FinishedAt == nil {
		s.FinishedAt = &now
	}
	s.UpdatedAt = now
}

// Duration возвращает продолжительность сессии.
// Возвращает 0, если сессия не завершена.
func (s *Session) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
