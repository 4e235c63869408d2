package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
	"github.com/shaiso/ModuleTrack/internal/execution"
	"github.com/shaiso/ModuleTrack/internal/repo"
)

// TestConfigStore — хранилище тестовых процедур.
type TestConfigStore interface {
	Create(ctx context.Context, cfg *domain.TestConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TestConfig, error)
	GetByName(ctx context.Context, name string) (*domain.TestConfig, error)
	List(ctx context.Context) ([]domain.TestConfig, error)
	Update(ctx context.Context, cfg *domain.TestConfig) error
	UpdateStepOrders(ctx context.Context, cfg *domain.TestConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PCBTypeStore — хранилище типов плат.
type PCBTypeStore interface {
	Create(ctx context.Context, t *domain.PCBType) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PCBType, error)
	List(ctx context.Context) ([]domain.PCBType, error)
	Update(ctx context.Context, t *domain.PCBType) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UnitStore — хранилище партий и плат.
type UnitStore interface {
	CreateBatch(ctx context.Context, b *domain.Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.Batch, error)
	ListBatches(ctx context.Context, pcbTypeID *uuid.UUID) ([]domain.Batch, error)
	UpdateBatch(ctx context.Context, b *domain.Batch) error
	DeleteBatch(ctx context.Context, id uuid.UUID) error

	CreatePCB(ctx context.Context, p *domain.PCB) error
	GetPCB(ctx context.Context, id uuid.UUID) (*domain.PCB, error)
	GetPCBBySerial(ctx context.Context, serial string) (*domain.PCB, error)
	ListPCBs(ctx context.Context, batchID uuid.UUID) ([]domain.PCB, error)
	UpdatePCB(ctx context.Context, p *domain.PCB) error
	DeletePCB(ctx context.Context, id uuid.UUID) error
}

// SessionLister — выборка сессий для списков.
type SessionLister interface {
	List(ctx context.Context, filter repo.SessionFilter) ([]repo.SessionListItem, int, error)
}

// AuditLog — чтение журнала аудита.
type AuditLog interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.AuditEvent, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	configs   TestConfigStore
	pcbTypes  PCBTypeStore
	units     UnitStore
	sessions  SessionLister
	audit     AuditLog
	execution *execution.Service
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Configs   TestConfigStore
	PCBTypes  PCBTypeStore
	Units     UnitStore
	Sessions  SessionLister
	Audit     AuditLog
	Execution *execution.Service
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		configs:   cfg.Configs,
		pcbTypes:  cfg.PCBTypes,
		units:     cfg.Units,
		sessions:  cfg.Sessions,
		audit:     cfg.Audit,
		execution: cfg.Execution,
		logger:    logger,
	}
}
