package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// ErrInvalidOrder — поле сортировки не из разрешённого списка.
var ErrInvalidOrder = errors.New("invalid order field")

// DefaultSessionOrder — сортировка списка сессий по умолчанию.
const DefaultSessionOrder = "-started_at"

// sessionOrderFields — разрешённые поля сортировки и их столбцы.
var sessionOrderFields = map[string]string{
	"started_at":    "s.started_at",
	"serial_number": "p.serial_number",
	"operator_id":   "s.operator_id",
	"verdict":       "s.verdict",
}

// SessionOrderClause переводит поле сортировки ("verdict", "-started_at")
// в ORDER BY. Пустая строка — DefaultSessionOrder.
func SessionOrderClause(order string) (string, error) {
	order = strings.TrimSpace(order)
	if order == "" {
		order = DefaultSessionOrder
	}

	dir := "ASC"
	field := order
	if strings.HasPrefix(order, "-") {
		dir = "DESC"
		field = order[1:]
	}

	column, ok := sessionOrderFields[field]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrder, order)
	}
	return fmt.Sprintf("%s %s, s.id %s", column, dir, dir), nil
}

// SessionFilter — параметры фильтрации сессий.
type SessionFilter struct {
	PCBID        *uuid.UUID
	SerialNumber string
	OperatorID   string

	// Search — подстрока серийного номера, оператора или итога.
	Search string

	// Order — поле сортировки, см. SessionOrderClause.
	Order string

	Limit  int
	Offset int
}

// SessionListItem — сессия в списке вместе с данными платы.
type SessionListItem struct {
	domain.Session
	SerialNumber string
	SignedOff    bool
}

// SessionRepo — репозиторий для работы с test_sessions и qa_signoffs.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `
	s.id, s.pcb_id, s.test_config_id, s.operator_id, s.notes, s.verdict,
	s.started_at, s.finished_at, s.abandoned_at, s.created_at, s.updated_at
`

// Create создаёт сессию.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO test_sessions (id, pcb_id, test_config_id, operator_id, notes, verdict,
		                           started_at, finished_at, abandoned_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.PCBID,
		s.TestConfigID,
		s.OperatorID,
		s.Notes,
		s.Verdict,
		s.StartedAt,
		s.FinishedAt,
		s.AbandonedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrInvalidReference
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID возвращает сессию по ID.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM test_sessions s WHERE s.id = $1`

	var s domain.Session
	err := scanSession(r.pool.QueryRow(ctx, query, id), &s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// Update обновляет заметки, итог и время завершения.
func (r *SessionRepo) Update(ctx context.Context, s *domain.Session) error {
	query := `
		UPDATE test_sessions
		SET notes = $2, verdict = $3, finished_at = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Notes,
		s.Verdict,
		s.FinishedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет сессию (каскадно удалит результаты и подпись).
func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM test_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List возвращает страницу сессий и общее число подходящих под фильтр.
func (r *SessionRepo) List(ctx context.Context, filter SessionFilter) ([]SessionListItem, int, error) {
	orderBy, err := SessionOrderClause(filter.Order)
	if err != nil {
		return nil, 0, err
	}

	where := `
		WHERE ($1::uuid IS NULL OR s.pcb_id = $1)
		  AND ($2::text IS NULL OR p.serial_number = $2)
		  AND ($3::text IS NULL OR s.operator_id = $3)
		  AND ($4::text IS NULL
		       OR p.serial_number ILIKE '%' || $4 || '%'
		       OR s.operator_id ILIKE '%' || $4 || '%'
		       OR s.verdict::text ILIKE '%' || $4 || '%')
	`
	args := []any{
		filter.PCBID,
		nullString(filter.SerialNumber),
		nullString(filter.OperatorID),
		nullString(strings.TrimSpace(filter.Search)),
	}

	var total int
	countQuery := `SELECT count(*) FROM test_sessions s JOIN pcbs p ON p.id = s.pcb_id ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + sessionColumns + `, p.serial_number,
		       EXISTS (SELECT 1 FROM qa_signoffs q WHERE q.session_id = s.id)
		FROM test_sessions s
		JOIN pcbs p ON p.id = s.pcb_id
	` + where + `
		ORDER BY ` + orderBy + `
		LIMIT $5 OFFSET $6
	`
	rows, err := r.pool.Query(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var items []SessionListItem
	for rows.Next() {
		var item SessionListItem
		if err := scanSession(rows, &item.Session, &item.SerialNumber, &item.SignedOff); err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// MarkAbandoned отмечает незавершённую сессию как брошенную.
// Уже завершённая или отмеченная сессия — ErrNotFound.
func (r *SessionRepo) MarkAbandoned(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE test_sessions
		SET abandoned_at = $2
		WHERE id = $1 AND finished_at IS NULL AND abandoned_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark session abandoned: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale возвращает незавершённые и ещё не брошенные сессии,
// не менявшиеся с момента before.
func (r *SessionRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM test_sessions s
		WHERE s.finished_at IS NULL
		  AND s.abandoned_at IS NULL
		  AND s.updated_at < $1
		ORDER BY s.updated_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// --- QA signoff ---

// CreateSignoff записывает подпись QA. Вторая подпись — ErrAlreadyExists.
func (r *SessionRepo) CreateSignoff(ctx context.Context, so *domain.QASignoff) error {
	query := `
		INSERT INTO qa_signoffs (session_id, qa_user_id, notes, signed_off_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, so.SessionID, so.QAUserID, so.Notes, so.SignedOffAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert signoff: %w", err)
	}
	return nil
}

// GetSignoff возвращает подпись QA сессии.
func (r *SessionRepo) GetSignoff(ctx context.Context, sessionID uuid.UUID) (*domain.QASignoff, error) {
	query := `
		SELECT session_id, qa_user_id, notes, signed_off_at
		FROM qa_signoffs
		WHERE session_id = $1
	`
	var so domain.QASignoff
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&so.SessionID,
		&so.QAUserID,
		&so.Notes,
		&so.SignedOffAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signoff: %w", err)
	}
	return &so, nil
}

// --- Helpers ---

// scanSession сканирует sessionColumns и дополнительные столбцы extra.
func scanSession(row pgx.Row, s *domain.Session, extra ...any) error {
	dest := []any{
		&s.ID,
		&s.PCBID,
		&s.TestConfigID,
		&s.OperatorID,
		&s.Notes,
		&s.Verdict,
		&s.StartedAt,
		&s.FinishedAt,
		&s.AbandonedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}
