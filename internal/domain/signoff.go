package domain

import (
	"time"

	"github.com/google/uuid"
)

// QASignoff — подпись QA под завершённой сессией.
//
// Для сессии существует не более одной подписи. Подпись неизменяема:
// отменить или переподписать нельзя.
type QASignoff struct {
	// SessionID — подписанная сессия.
	SessionID uuid.UUID `json:"session_id"`

	// QAUserID — инженер QA, поставивший подпись.
	QAUserID string `json:"qa_user_id"`

	// Notes — комментарий QA.
	Notes string `json:"notes,omitempty"`

	// SignedOffAt — время подписи.
	SignedOffAt time.Time `json:"signed_off_at"`
}
