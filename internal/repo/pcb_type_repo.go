package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// PCBTypeRepo — репозиторий для работы с pcb_types.
type PCBTypeRepo struct {
	pool *pgxpool.Pool
}

// NewPCBTypeRepo создаёт новый PCBTypeRepo.
func NewPCBTypeRepo(pool *pgxpool.Pool) *PCBTypeRepo {
	return &PCBTypeRepo{pool: pool}
}

// Create создаёт тип платы.
func (r *PCBTypeRepo) Create(ctx context.Context, t *domain.PCBType) error {
	now := time.Now().UTC()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO pcb_types (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, t.ID, t.Name, t.Description, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert pcb type: %w", err)
	}
	return nil
}

// GetByID возвращает тип платы по ID.
func (r *PCBTypeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PCBType, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM pcb_types
		WHERE id = $1
	`
	var t domain.PCBType
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pcb type: %w", err)
	}
	return &t, nil
}

// List возвращает все типы плат по имени.
func (r *PCBTypeRepo) List(ctx context.Context) ([]domain.PCBType, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM pcb_types
		ORDER BY lower(name)
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pcb types: %w", err)
	}
	defer rows.Close()

	var types []domain.PCBType
	for rows.Next() {
		var t domain.PCBType
		if err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Description,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pcb type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// Update обновляет тип платы.
func (r *PCBTypeRepo) Update(ctx context.Context, t *domain.PCBType) error {
	t.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE pcb_types
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, t.ID, t.Name, t.Description, t.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("update pcb type: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет тип платы (каскадно удалит партии и платы).
func (r *PCBTypeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pcb_types WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pcb type: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
