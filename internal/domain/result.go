package domain

import (
	"time"

	"github.com/google/uuid"
)

// MeasurementOutcome — результат измерительного шага.
// Допуск и единица копируются из шага на момент записи.
type MeasurementOutcome struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// QuestionOutcome — результат шага-вопроса.
type QuestionOutcome struct {
	Answer         bool `json:"answer"`
	RequiredAnswer bool `json:"required_answer"`
}

// InstructionOutcome — результат шага-инструкции.
type InstructionOutcome struct {
	Acknowledged bool `json:"acknowledged"`
}

// StepResult — записанный результат одного шага в рамках сессии.
//
// Как и Step, это tagged variant: Kind определяет заполненный outcome.
// Для одной пары (SessionID, StepID) может существовать несколько
// записей (повторная отправка); выполненным шаг считается при наличии
// хотя бы одной.
type StepResult struct {
	// ID — уникальный идентификатор результата.
	ID uuid.UUID `json:"id"`

	// SessionID — сессия, к которой относится результат.
	SessionID uuid.UUID `json:"session_id"`

	// StepID — шаг процедуры. uuid.Nil, если шаг был удалён
	// из процедуры после записи результата.
	StepID uuid.UUID `json:"step_id"`

	// Kind — вид шага.
	Kind StepKind `json:"kind"`

	// Label — копия имени параметра / текста вопроса / текста инструкции.
	Label string `json:"label"`

	Measurement *MeasurementOutcome `json:"measurement,omitempty"`
	Question    *QuestionOutcome    `json:"question,omitempty"`
	Instruction *InstructionOutcome `json:"instruction,omitempty"`

	// Passed — шаг пройден.
	Passed bool `json:"passed"`

	// RawInput — исходный ввод оператора.
	RawInput string `json:"raw_input"`

	CreatedAt time.Time `json:"created_at"`
}

// Satisfied возвращает true, если результат засчитывается как успешный:
// для измерений и вопросов — Passed, для инструкций — подтверждение.
func (r *StepResult) Satisfied() bool {
	if r.Instruction != nil {
		return r.Instruction.Acknowledged
	}
	return r.Passed
}
