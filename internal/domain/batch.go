package domain

import (
	"time"

	"github.com/google/uuid"
)

// PCBType — тип платы (например, "Power board rev B").
type PCBType struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Batch — партия плат одного типа.
//
// Партия определяет тестовую процедуру и аппаратную ревизию
// для всех своих плат.
type Batch struct {
	// ID — уникальный идентификатор партии.
	ID uuid.UUID `json:"id"`

	// Name — уникальное название партии.
	Name string `json:"name"`

	// Description — описание.
	Description string `json:"description,omitempty"`

	// PCBTypeID — тип плат в партии.
	PCBTypeID uuid.UUID `json:"pcb_type_id"`

	// TestConfigID — тестовая процедура партии.
	TestConfigID uuid.UUID `json:"test_config_id"`

	// HardwareVersion — аппаратная ревизия партии.
	HardwareVersion string `json:"hardware_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PCB — отдельная плата.
type PCB struct {
	// ID — уникальный идентификатор платы.
	ID uuid.UUID `json:"id"`

	// SerialNumber — уникальный серийный номер.
	SerialNumber string `json:"serial_number"`

	// BatchID — партия платы.
	BatchID uuid.UUID `json:"batch_id"`

	// HardwareModified — плата доработана относительно партии.
	HardwareModified bool `json:"hardware_modified"`

	// ModifiedHardwareVersion — ревизия после доработки.
	ModifiedHardwareVersion string `json:"modified_hardware_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveHardwareVersion возвращает фактическую ревизию платы:
// ревизию доработки, если она указана, иначе ревизию партии.
func (p *PCB) EffectiveHardwareVersion(batch *Batch) string {
	if p.HardwareModified && p.ModifiedHardwareVersion != "" {
		return p.ModifiedHardwareVersion
	}
	if batch == nil {
		return ""
	}
	return batch.HardwareVersion
}
