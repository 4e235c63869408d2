package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType — тип события жизненного цикла сессии.
type EventType string

const (
	EventStepRecorded     EventType = "session.step_recorded"
	EventSessionCompleted EventType = "session.completed"
	EventSessionSignedOff EventType = "session.signed_off"
	EventSessionAbandoned EventType = "session.abandoned"
)

// AuditEvent — событие, сохранённое в журнал аудита.
type AuditEvent struct {
	// ID — идентификатор события (совпадает с ID сообщения в очереди).
	ID uuid.UUID `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// SessionID — сессия, к которой относится событие.
	SessionID uuid.UUID `json:"session_id"`

	// PCBID — плата сессии.
	PCBID uuid.UUID `json:"pcb_id"`

	// OperatorID — пользователь, вызвавший событие. Пусто для системных событий.
	OperatorID string `json:"operator_id,omitempty"`

	// Payload — детали события.
	Payload map[string]any `json:"payload,omitempty"`

	// OccurredAt — время события.
	OccurredAt time.Time `json:"occurred_at"`
}
