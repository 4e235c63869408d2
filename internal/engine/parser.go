package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Normalize приводит процедуру к каноническому виду:
// обрезает пробелы в названии, подставляет единицы по умолчанию
// и нумерует шаги без порядка по их позиции (1..n).
func Normalize(cfg *domain.TestConfig) {
	cfg.Name = strings.TrimSpace(cfg.Name)

	for i := range cfg.Steps {
		step := &cfg.Steps[i]
		if step.Order <= 0 {
			step.Order = i + 1
		}
		if step.Measurement != nil && step.Measurement.Unit == "" {
			step.Measurement.Unit = step.Kind.DefaultUnit()
		}
	}
}

// Validate выполняет полную валидацию TestConfig.
//
// Проверяет:
// - Наличие названия
// - Уникальность ID шагов
// - Корректность вида шага и соответствие ему заполненного варианта
// - Допуски измерительных шагов (min <= max)
// - Наличие текста у вопросов и инструкций
//
// Процедура без шагов допустима.
func Validate(cfg *domain.TestConfig) error {
	if cfg == nil || cfg.Name == "" {
		return NewValidationError("", "name", "name is required", ErrEmptyName)
	}

	seen := make(map[uuid.UUID]bool, len(cfg.Steps))
	for i := range cfg.Steps {
		step := &cfg.Steps[i]

		if step.ID != uuid.Nil {
			if seen[step.ID] {
				return NewValidationError(step.ID.String(), "id",
					fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
			}
			seen[step.ID] = true
		}

		if err := ValidateStep(step, i); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг. index — позиция шага в процедуре
// (используется в сообщении, если у шага ещё нет ID).
func ValidateStep(step *domain.Step, index int) error {
	ref := stepRef(step, index)

	if !step.Kind.IsValid() {
		return NewValidationError(ref, "kind",
			fmt.Sprintf("unknown step kind: %q", step.Kind), ErrUnknownStepKind)
	}

	switch {
	case step.Kind.IsMeasurement():
		if step.Measurement == nil || step.Question != nil || step.Instruction != nil {
			return NewValidationError(ref, "measurement",
				fmt.Sprintf("%s step requires measurement payload only", step.Kind), ErrMissingPayload)
		}
		return validateMeasurement(ref, step.Measurement)

	case step.Kind == domain.StepKindQuestion:
		if step.Question == nil || step.Measurement != nil || step.Instruction != nil {
			return NewValidationError(ref, "question",
				"QUESTION step requires question payload only", ErrMissingPayload)
		}
		if strings.TrimSpace(step.Question.Text) == "" {
			return NewValidationError(ref, "question.text", "question text is required", ErrEmptyText)
		}

	case step.Kind == domain.StepKindInstruction:
		if step.Instruction == nil || step.Measurement != nil || step.Question != nil {
			return NewValidationError(ref, "instruction",
				"INSTRUCTION step requires instruction payload only", ErrMissingPayload)
		}
		if strings.TrimSpace(step.Instruction.Text) == "" {
			return NewValidationError(ref, "instruction.text", "instruction text is required", ErrEmptyText)
		}
	}

	return nil
}

// validateMeasurement проверяет параметры измерения.
func validateMeasurement(ref string, m *domain.MeasurementSpec) error {
	if strings.TrimSpace(m.ParameterName) == "" {
		return NewValidationError(ref, "measurement.parameter_name",
			"parameter name is required", ErrEmptyParameter)
	}
	if isNotFinite(m.Min) || isNotFinite(m.Max) {
		return NewValidationError(ref, "measurement.min",
			"bounds must be finite numbers", ErrInvalidBounds)
	}
	if m.Min > m.Max {
		return NewValidationError(ref, "measurement.min",
			fmt.Sprintf("min %g is greater than max %g", m.Min, m.Max), ErrInvalidBounds)
	}
	return nil
}

func isNotFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func stepRef(step *domain.Step, index int) string {
	if step.ID != uuid.Nil {
		return step.ID.String()
	}
	return "#" + strconv.Itoa(index+1)
}
