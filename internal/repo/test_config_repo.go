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

// TestConfigRepo — репозиторий для работы с test_configs и test_steps.
type TestConfigRepo struct {
	pool *pgxpool.Pool
}

// NewTestConfigRepo создаёт новый TestConfigRepo.
func NewTestConfigRepo(pool *pgxpool.Pool) *TestConfigRepo {
	return &TestConfigRepo{pool: pool}
}

const stepColumns = `
	id, test_config_id, kind, step_order, parameter_name, min_value, max_value,
	unit, text, required_answer, created_at
`

// Create создаёт процедуру вместе с шагами в одной транзакции.
// Имя уникально без учёта регистра; конфликт — ErrAlreadyExists.
func (r *TestConfigRepo) Create(ctx context.Context, cfg *domain.TestConfig) error {
	now := time.Now().UTC()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO test_configs (id, name, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, query, cfg.ID, cfg.Name, cfg.Description, cfg.CreatedAt, cfg.UpdatedAt); err != nil {
			return err
		}

		for i := range cfg.Steps {
			step := &cfg.Steps[i]
			step.ID = uuid.New()
			step.TestConfigID = cfg.ID
			step.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
			if err := insertStep(ctx, tx, step); err != nil {
				return err
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert test config: %w", err)
	}
	return nil
}

// GetByID возвращает процедуру с шагами по ID.
func (r *TestConfigRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestConfig, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM test_configs
		WHERE id = $1
	`
	cfg, err := scanTestConfig(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetByName возвращает процедуру по имени без учёта регистра.
func (r *TestConfigRepo) GetByName(ctx context.Context, name string) (*domain.TestConfig, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM test_configs
		WHERE lower(name) = lower($1)
	`
	cfg, err := scanTestConfig(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// List возвращает все процедуры с шагами, по имени.
func (r *TestConfigRepo) List(ctx context.Context) ([]domain.TestConfig, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM test_configs
		ORDER BY lower(name)
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list test configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.TestConfig
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		cfg, err := scanTestConfig(rows)
		if err != nil {
			return nil, err
		}
		index[cfg.ID] = len(configs)
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stepRows, err := r.pool.Query(ctx, `SELECT `+stepColumns+` FROM test_steps ORDER BY step_order, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list test steps: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		step, err := scanStep(stepRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[step.TestConfigID]; ok {
			configs[i].Steps = append(configs[i].Steps, *step)
		}
	}
	return configs, stepRows.Err()
}

// Update обновляет имя и описание и заменяет список шагов.
//
// Шаги с ID, уже принадлежащим процедуре, обновляются на месте
// (результаты остаются связанными). Шаги без ID или с чужим ID
// создаются заново. Шаги, которых нет в новом списке, удаляются;
// их результаты сохраняют label, step_id становится NULL.
func (r *TestConfigRepo) Update(ctx context.Context, cfg *domain.TestConfig) error {
	now := time.Now().UTC()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE test_configs
			SET name = $2, description = $3, updated_at = $4
			WHERE id = $1
		`
		result, err := tx.Exec(ctx, query, cfg.ID, cfg.Name, cfg.Description, now)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}

		existing, err := stepIDs(ctx, tx, cfg.ID)
		if err != nil {
			return err
		}

		keep := make([]uuid.UUID, 0, len(cfg.Steps))
		for i := range cfg.Steps {
			step := &cfg.Steps[i]
			step.TestConfigID = cfg.ID

			if existing[step.ID] {
				if err := updateStep(ctx, tx, step); err != nil {
					return err
				}
			} else {
				step.ID = uuid.New()
				step.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
				if err := insertStep(ctx, tx, step); err != nil {
					return err
				}
			}
			keep = append(keep, step.ID)
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM test_steps WHERE test_config_id = $1 AND NOT (id = ANY($2::uuid[]))`,
			cfg.ID, keep,
		)
		return err
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case isUniqueViolation(err):
		return ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("update test config: %w", err)
	}

	cfg.UpdatedAt = now
	return nil
}

// UpdateStepOrders сохраняет позиции шагов (после Reorder/MoveStep).
func (r *TestConfigRepo) UpdateStepOrders(ctx context.Context, cfg *domain.TestConfig) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, step := range cfg.Steps {
			result, err := tx.Exec(ctx,
				`UPDATE test_steps SET step_order = $3 WHERE id = $1 AND test_config_id = $2`,
				step.ID, cfg.ID, step.Order,
			)
			if err != nil {
				return err
			}
			if result.RowsAffected() == 0 {
				return ErrNotFound
			}
		}
		_, err := tx.Exec(ctx, `UPDATE test_configs SET updated_at = now() WHERE id = $1`, cfg.ID)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update step orders: %w", err)
	}
	return nil
}

// Delete удаляет процедуру (каскадно удалит шаги, партии и сессии).
func (r *TestConfigRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM test_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete test config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *TestConfigRepo) loadSteps(ctx context.Context, cfg *domain.TestConfig) error {
	query := `SELECT ` + stepColumns + `
		FROM test_steps
		WHERE test_config_id = $1
		ORDER BY step_order, created_at
	`
	rows, err := r.pool.Query(ctx, query, cfg.ID)
	if err != nil {
		return fmt.Errorf("list test steps: %w", err)
	}
	defer rows.Close()

	cfg.Steps = nil
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return err
		}
		cfg.Steps = append(cfg.Steps, *step)
	}
	return rows.Err()
}

func stepIDs(ctx context.Context, tx pgx.Tx, cfgID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM test_steps WHERE test_config_id = $1`, cfgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// stepParams — столбцы варианта шага; незаполненные остаются NULL.
type stepParams struct {
	parameterName  *string
	minValue       *float64
	maxValue       *float64
	unit           *string
	text           *string
	requiredAnswer *bool
}

func paramsOf(step *domain.Step) stepParams {
	var p stepParams
	switch {
	case step.Measurement != nil:
		m := step.Measurement
		p.parameterName = &m.ParameterName
		p.minValue = &m.Min
		p.maxValue = &m.Max
		p.unit = &m.Unit
	case step.Question != nil:
		p.text = &step.Question.Text
		p.requiredAnswer = &step.Question.RequiredAnswer
	case step.Instruction != nil:
		p.text = &step.Instruction.Text
	}
	return p
}

func insertStep(ctx context.Context, tx pgx.Tx, step *domain.Step) error {
	p := paramsOf(step)
	query := `
		INSERT INTO test_steps (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.Exec(ctx, query,
		step.ID,
		step.TestConfigID,
		step.Kind,
		step.Order,
		p.parameterName,
		p.minValue,
		p.maxValue,
		p.unit,
		p.text,
		p.requiredAnswer,
		step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func updateStep(ctx context.Context, tx pgx.Tx, step *domain.Step) error {
	p := paramsOf(step)
	query := `
		UPDATE test_steps
		SET kind = $2, step_order = $3, parameter_name = $4, min_value = $5,
		    max_value = $6, unit = $7, text = $8, required_answer = $9
		WHERE id = $1
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		step.ID,
		step.Kind,
		step.Order,
		p.parameterName,
		p.minValue,
		p.maxValue,
		p.unit,
		p.text,
		p.requiredAnswer,
	).Scan(&step.CreatedAt)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	return nil
}

func scanTestConfig(row pgx.Row) (*domain.TestConfig, error) {
	var cfg domain.TestConfig
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Description,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan test config: %w", err)
	}
	return &cfg, nil
}

// scanStep собирает вариант шага из nullable-столбцов.
func scanStep(row pgx.Row) (*domain.Step, error) {
	var step domain.Step
	var (
		parameterName  *string
		minValue       *float64
		maxValue       *float64
		unit           *string
		text           *string
		requiredAnswer *bool
	)

	err := row.Scan(
		&step.ID,
		&step.TestConfigID,
		&step.Kind,
		&step.Order,
		&parameterName,
		&minValue,
		&maxValue,
		&unit,
		&text,
		&requiredAnswer,
		&step.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	switch {
	case step.Kind.IsMeasurement():
		m := &domain.MeasurementSpec{}
		if parameterName != nil {
			m.ParameterName = *parameterName
		}
		if minValue != nil {
			m.Min = *minValue
		}
		if maxValue != nil {
			m.Max = *maxValue
		}
		if unit != nil {
			m.Unit = *unit
		}
		step.Measurement = m
	case step.Kind == domain.StepKindQuestion:
		q := &domain.QuestionSpec{RequiredAnswer: true}
		if text != nil {
			q.Text = *text
		}
		if requiredAnswer != nil {
			q.RequiredAnswer = *requiredAnswer
		}
		step.Question = q
	case step.Kind == domain.StepKindInstruction:
		ins := &domain.InstructionSpec{}
		if text != nil {
			ins.Text = *text
		}
		step.Instruction = ins
	}
	return &step, nil
}
