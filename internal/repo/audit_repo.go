package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// AuditRepo — репозиторий для работы с audit_events.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo создаёт новый AuditRepo.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Insert сохраняет событие. Повторная доставка того же события
// (тот же ID) игнорируется; inserted сообщает, была ли запись новой.
func (r *AuditRepo) Insert(ctx context.Context, evt *domain.AuditEvent) (inserted bool, err error) {
	payloadJSON, err := json.Marshal(evt.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, type, session_id, pcb_id, operator_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		evt.ID,
		evt.Type,
		evt.SessionID,
		evt.PCBID,
		evt.OperatorID,
		payloadJSON,
		evt.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert audit event: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListBySession возвращает события сессии в хронологическом порядке.
func (r *AuditRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.AuditEvent, error) {
	query := `
		SELECT id, type, session_id, pcb_id, operator_id, payload, occurred_at
		FROM audit_events
		WHERE session_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var evt domain.AuditEvent
		var payloadJSON []byte
		if err := rows.Scan(
			&evt.ID,
			&evt.Type,
			&evt.SessionID,
			&evt.PCBID,
			&evt.OperatorID,
			&payloadJSON,
			&evt.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &evt.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
