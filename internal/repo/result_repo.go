package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// ResultRepo — репозиторий для работы с step_results.
//
// Все виды результатов хранятся в одной таблице: kind определяет,
// какие из nullable-столбцов заполнены.
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

const resultColumns = `
	id, session_id, step_id, kind, label, value, unit, min_value, max_value,
	answer, required_answer, acknowledged, passed, raw_input, created_at
`

// Add записывает результат шага.
func (r *ResultRepo) Add(ctx context.Context, res *domain.StepResult) error {
	if err := insertResult(ctx, r.pool, res); err != nil {
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return err
	}
	return nil
}

// ListBySession возвращает результаты сессии в порядке записи.
func (r *ResultRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.StepResult, error) {
	query := `SELECT ` + resultColumns + `
		FROM step_results
		WHERE session_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []domain.StepResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

// Replace атомарно заменяет все результаты сессии.
func (r *ResultRepo) Replace(ctx context.Context, sessionID uuid.UUID, results []domain.StepResult) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM step_results WHERE session_id = $1`, sessionID); err != nil {
			return fmt.Errorf("delete results: %w", err)
		}
		for i := range results {
			results[i].SessionID = sessionID
			if err := insertResult(ctx, tx, &results[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if isForeignKeyViolation(err) {
		return ErrInvalidReference
	}
	if err != nil {
		return fmt.Errorf("replace results: %w", err)
	}
	return nil
}

// --- Helpers ---

// execer — Exec пула или транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertResult(ctx context.Context, db execer, res *domain.StepResult) error {
	var (
		value, minValue, maxValue      *float64
		unit                           *string
		answer, required, acknowledged *bool
	)
	switch {
	case res.Measurement != nil:
		m := res.Measurement
		value, minValue, maxValue, unit = &m.Value, &m.Min, &m.Max, &m.Unit
	case res.Question != nil:
		answer, required = &res.Question.Answer, &res.Question.RequiredAnswer
	case res.Instruction != nil:
		acknowledged = &res.Instruction.Acknowledged
	}

	query := `
		INSERT INTO step_results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := db.Exec(ctx, query,
		res.ID,
		res.SessionID,
		nullUUID(res.StepID),
		res.Kind,
		res.Label,
		value,
		unit,
		minValue,
		maxValue,
		answer,
		required,
		acknowledged,
		res.Passed,
		res.RawInput,
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// scanResult собирает вариант результата из nullable-столбцов.
func scanResult(row pgx.Row) (*domain.StepResult, error) {
	var res domain.StepResult
	var (
		stepID                         *uuid.UUID
		value, minValue, maxValue      *float64
		unit                           *string
		answer, required, acknowledged *bool
	)

	err := row.Scan(
		&res.ID,
		&res.SessionID,
		&stepID,
		&res.Kind,
		&res.Label,
		&value,
		&unit,
		&minValue,
		&maxValue,
		&answer,
		&required,
		&acknowledged,
		&res.Passed,
		&res.RawInput,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}

	if stepID != nil {
		res.StepID = *stepID
	}

	switch {
	case res.Kind.IsMeasurement():
		m := &domain.MeasurementOutcome{}
		if value != nil {
			m.Value = *value
		}
		if unit != nil {
			m.Unit = *unit
		}
		if minValue != nil {
			m.Min = *minValue
		}
		if maxValue != nil {
			m.Max = *maxValue
		}
		res.Measurement = m
	case res.Kind == domain.StepKindQuestion:
		q := &domain.QuestionOutcome{}
		if answer != nil {
			q.Answer = *answer
		}
		if required != nil {
			q.RequiredAnswer = *required
		}
		res.Question = q
	case res.Kind == domain.StepKindInstruction:
		res.Instruction = &domain.InstructionOutcome{Acknowledged: acknowledged != nil && *acknowledged}
	}
	return &res, nil
}
