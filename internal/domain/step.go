package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepKind — вид шага тестовой процедуры.
//
// Четыре измерительных вида (VOLTAGE, CURRENT, RESISTANCE, FREQUENCY)
// сравнивают введённое число с допуском, QUESTION сравнивает ответ да/нет
// с ожидаемым, INSTRUCTION требует только подтверждения оператора.
type StepKind string

const (
	StepKindVoltage     StepKind = "VOLTAGE"
	StepKindCurrent     StepKind = "CURRENT"
	StepKindResistance  StepKind = "RESISTANCE"
	StepKindFrequency   StepKind = "FREQUENCY"
	StepKindQuestion    StepKind = "QUESTION"
	StepKindInstruction StepKind = "INSTRUCTION"
)

// AllStepKinds — все виды шагов в порядке отображения.
var AllStepKinds = []StepKind{
	StepKindVoltage,
	StepKindCurrent,
	StepKindResistance,
	StepKindFrequency,
	StepKindQuestion,
	StepKindInstruction,
}

// IsMeasurement возвращает true для измерительных видов.
func (k StepKind) IsMeasurement() bool {
	switch k {
	case StepKindVoltage, StepKindCurrent, StepKindResistance, StepKindFrequency:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что вид известен.
func (k StepKind) IsValid() bool {
	return k.IsMeasurement() || k == StepKindQuestion || k == StepKindInstruction
}

// DefaultUnit возвращает единицу измерения по умолчанию.
// Для не-измерительных видов — пустая строка.
func (k StepKind) DefaultUnit() string {
	switch k {
	case StepKindVoltage:
		return "V"
	case StepKindCurrent:
		return "A"
	case StepKindResistance:
		return "Ω"
	case StepKindFrequency:
		return "Hz"
	default:
		return ""
	}
}

// String возвращает строковое представление StepKind.
func (k StepKind) String() string {
	return string(k)
}

// ParseStepKind парсит строку в StepKind.
func ParseStepKind(s string) (StepKind, bool) {
	k := StepKind(s)
	return k, k.IsValid()
}

// MeasurementSpec — параметры измерительного шага.
type MeasurementSpec struct {
	// ParameterName — что измеряется ("3V3 rail", "Idle current").
	ParameterName string `json:"parameter_name" yaml:"parameter_name"`

	// Min, Max — допуск, обе границы включительно.
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`

	// Unit — единица измерения. Пустая заменяется на DefaultUnit вида.
	Unit string `json:"unit" yaml:"unit"`
}

// Contains проверяет попадание значения в допуск.
func (m *MeasurementSpec) Contains(v float64) bool {
	return v >= m.Min && v <= m.Max
}

// QuestionSpec — параметры шага-вопроса.
type QuestionSpec struct {
	// Text — текст вопроса оператору.
	Text string `json:"text" yaml:"text"`

	// RequiredAnswer — ответ, при котором шаг считается пройденным.
	RequiredAnswer bool `json:"required_answer" yaml:"required_answer"`
}

// InstructionSpec — параметры шага-инструкции.
type InstructionSpec struct {
	// Text — текст инструкции.
	Text string `json:"text" yaml:"text"`
}

// Step — шаг тестовой процедуры.
//
// Step — tagged variant: Kind определяет, какое из полей
// Measurement / Question / Instruction заполнено. Заполнено ровно одно.
type Step struct {
	// ID — уникальный идентификатор шага.
	// На него ссылаются результаты (StepResult.StepID).
	ID uuid.UUID `json:"id"`

	// TestConfigID — процедура, которой принадлежит шаг.
	TestConfigID uuid.UUID `json:"test_config_id"`

	// Kind — вид шага.
	Kind StepKind `json:"kind"`

	// Order — позиция в процедуре. При равенстве порядок
	// определяется временем создания.
	Order int `json:"order"`

	Measurement *MeasurementSpec `json:"measurement,omitempty"`
	Question    *QuestionSpec    `json:"question,omitempty"`
	Instruction *InstructionSpec `json:"instruction,omitempty"`

	// CreatedAt — время создания шага.
	CreatedAt time.Time `json:"created_at"`
}

// NewMeasurementStep создаёт измерительный шаг.
// Пустая единица заменяется на единицу по умолчанию.
func NewMeasurementStep(kind StepKind, order int, parameter string, lo, hi float64, unit string) Step {
	if unit == "" {
		unit = kind.DefaultUnit()
	}
	return Step{
		ID:    uuid.New(),
		Kind:  kind,
		Order: order,
		Measurement: &MeasurementSpec{
			ParameterName: parameter,
			Min:           lo,
			Max:           hi,
			Unit:          unit,
		},
	}
}

// NewQuestionStep создаёт шаг-вопрос.
func NewQuestionStep(order int, text string, requiredAnswer bool) Step {
	return Step{
		ID:       uuid.New(),
		Kind:     StepKindQuestion,
		Order:    order,
		Question: &QuestionSpec{Text: text, RequiredAnswer: requiredAnswer},
	}
}

// NewInstructionStep создаёт шаг-инструкцию.
func NewInstructionStep(order int, text string) Step {
	return Step{
		ID:          uuid.New(),
		Kind:        StepKindInstruction,
		Order:       order,
		Instruction: &InstructionSpec{Text: text},
	}
}

// Label возвращает текст, идентифицирующий шаг для человека:
// имя параметра, текст вопроса или текст инструкции.
func (s *Step) Label() string {
	switch {
	case s.Measurement != nil:
		return s.Measurement.ParameterName
	case s.Question != nil:
		return s.Question.Text
	case s.Instruction != nil:
		return s.Instruction.Text
	default:
		return ""
	}
}

// String возвращает краткое описание шага.
func (s *Step) String() string {
	switch {
	case s.Measurement != nil:
		m := s.Measurement
		return fmt.Sprintf("%d. %s: %s (%g-%g %s)", s.Order, s.Kind, m.ParameterName, m.Min, m.Max, m.Unit)
	case s.Question != nil:
		return fmt.Sprintf("%d. %s: %s", s.Order, s.Kind, s.Question.Text)
	case s.Instruction != nil:
		return fmt.Sprintf("%d. %s: %s", s.Order, s.Kind, s.Instruction.Text)
	default:
		return fmt.Sprintf("%d. %s", s.Order, s.Kind)
	}
}
