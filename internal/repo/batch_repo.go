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

// BatchRepo — репозиторий для работы с batches и pcbs.
type BatchRepo struct {
	pool *pgxpool.Pool
}

// NewBatchRepo создаёт новый BatchRepo.
func NewBatchRepo(pool *pgxpool.Pool) *BatchRepo {
	return &BatchRepo{pool: pool}
}

// --- Batch CRUD ---

const batchColumns = `
	id, name, description, pcb_type_id, test_config_id, hardware_version, created_at, updated_at
`

// CreateBatch создаёт партию.
// Неизвестный тип платы или процедура — ErrInvalidReference.
func (r *BatchRepo) CreateBatch(ctx context.Context, b *domain.Batch) error {
	now := time.Now().UTC()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = now
	b.UpdatedAt = now

	query := `INSERT INTO batches (` + batchColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		b.ID,
		b.Name,
		b.Description,
		nullUUID(b.PCBTypeID),
		nullUUID(b.TestConfigID),
		b.HardwareVersion,
		b.CreatedAt,
		b.UpdatedAt,
	)
	return batchWriteError("insert batch", err)
}

// GetBatch возвращает партию по ID.
func (r *BatchRepo) GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	return scanBatch(r.pool.QueryRow(ctx, query, id))
}

// ListBatches возвращает партии по имени.
// pcbTypeID (опционально) ограничивает выборку одним типом платы.
func (r *BatchRepo) ListBatches(ctx context.Context, pcbTypeID *uuid.UUID) ([]domain.Batch, error) {
	query := `SELECT ` + batchColumns + `
		FROM batches
		WHERE ($1::uuid IS NULL OR pcb_type_id = $1)
		ORDER BY lower(name)
	`
	var filter *uuid.UUID
	if pcbTypeID != nil && *pcbTypeID != uuid.Nil {
		filter = pcbTypeID
	}

	rows, err := r.pool.Query(ctx, query, filter)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// UpdateBatch обновляет партию.
func (r *BatchRepo) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	b.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE batches
		SET name = $2, description = $3, pcb_type_id = $4, test_config_id = $5,
		    hardware_version = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		b.ID,
		b.Name,
		b.Description,
		nullUUID(b.PCBTypeID),
		nullUUID(b.TestConfigID),
		b.HardwareVersion,
		b.UpdatedAt,
	)
	if err := batchWriteError("update batch", err); err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBatch удаляет партию (каскадно удалит платы и их сессии).
func (r *BatchRepo) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- PCB CRUD ---

const pcbColumns = `
	id, serial_number, batch_id, hardware_modified, modified_hardware_version, created_at, updated_at
`

// CreatePCB регистрирует плату в партии.
// Серийный номер уникален; конфликт — ErrAlreadyExists.
func (r *BatchRepo) CreatePCB(ctx context.Context, p *domain.PCB) error {
	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `INSERT INTO pcbs (` + pcbColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.SerialNumber,
		p.BatchID,
		p.HardwareModified,
		p.ModifiedHardwareVersion,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return batchWriteError("insert pcb", err)
}

// GetPCB возвращает плату по ID.
func (r *BatchRepo) GetPCB(ctx context.Context, id uuid.UUID) (*domain.PCB, error) {
	query := `SELECT ` + pcbColumns + ` FROM pcbs WHERE id = $1`
	return scanPCB(r.pool.QueryRow(ctx, query, id))
}

// GetPCBBySerial возвращает плату по серийному номеру.
func (r *BatchRepo) GetPCBBySerial(ctx context.Context, serial string) (*domain.PCB, error) {
	query := `SELECT ` + pcbColumns + ` FROM pcbs WHERE serial_number = $1`
	return scanPCB(r.pool.QueryRow(ctx, query, serial))
}

// ListPCBs возвращает платы партии по серийному номеру.
func (r *BatchRepo) ListPCBs(ctx context.Context, batchID uuid.UUID) ([]domain.PCB, error) {
	query := `SELECT ` + pcbColumns + `
		FROM pcbs
		WHERE batch_id = $1
		ORDER BY serial_number
	`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list pcbs: %w", err)
	}
	defer rows.Close()

	var pcbs []domain.PCB
	for rows.Next() {
		p, err := scanPCB(rows)
		if err != nil {
			return nil, err
		}
		pcbs = append(pcbs, *p)
	}
	return pcbs, rows.Err()
}

// UpdatePCB обновляет плату.
func (r *BatchRepo) UpdatePCB(ctx context.Context, p *domain.PCB) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE pcbs
		SET serial_number = $2, batch_id = $3, hardware_modified = $4,
		    modified_hardware_version = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		p.ID,
		p.SerialNumber,
		p.BatchID,
		p.HardwareModified,
		p.ModifiedHardwareVersion,
		p.UpdatedAt,
	)
	if err := batchWriteError("update pcb", err); err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePCB удаляет плату вместе с её сессиями.
func (r *BatchRepo) DeletePCB(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pcbs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pcb: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

// batchWriteError переводит ошибки записи в ошибки репозитория.
func batchWriteError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return ErrAlreadyExists
	case isForeignKeyViolation(err):
		return ErrInvalidReference
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	var pcbTypeID, testConfigID *uuid.UUID

	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&pcbTypeID,
		&testConfigID,
		&b.HardwareVersion,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}

	if pcbTypeID != nil {
		b.PCBTypeID = *pcbTypeID
	}
	if testConfigID != nil {
		b.TestConfigID = *testConfigID
	}
	return &b, nil
}

func scanPCB(row pgx.Row) (*domain.PCB, error) {
	var p domain.PCB
	err := row.Scan(
		&p.ID,
		&p.SerialNumber,
		&p.BatchID,
		&p.HardwareModified,
		&p.ModifiedHardwareVersion,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pcb: %w", err)
	}
	return &p, nil
}

// nullUUID возвращает nil для пустого UUID (для NULL в БД).
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// nullString возвращает nil для пустой строки.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
