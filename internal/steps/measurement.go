package steps

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// MeasurementEvaluator обрабатывает измерительные шаги
// (напряжение, ток, сопротивление, частота).
type MeasurementEvaluator struct{}

// NewMeasurementEvaluator создаёт MeasurementEvaluator.
func NewMeasurementEvaluator() *MeasurementEvaluator {
	return &MeasurementEvaluator{}
}

// Kinds возвращает измерительные виды.
func (e *MeasurementEvaluator) Kinds() []domain.StepKind {
	return []domain.StepKind{
		domain.StepKindVoltage,
		domain.StepKindCurrent,
		domain.StepKindResistance,
		domain.StepKindFrequency,
	}
}

// Evaluate парсит число и сравнивает его с допуском (границы включительно).
// Пустой ввод, не-число, NaN и бесконечность отклоняются с ErrInvalidInput.
func (e *MeasurementEvaluator) Evaluate(step *domain.Step, raw string) (*domain.StepResult, error) {
	m := step.Measurement
	if m == nil {
		return nil, fmt.Errorf("%w: %s step %s", ErrPayloadMismatch, step.Kind, step.ID)
	}

	value, err := ParseMeasurement(raw)
	if err != nil {
		return nil, err
	}

	res := newResult(step, raw)
	res.Measurement = &domain.MeasurementOutcome{
		Value: value,
		Unit:  m.Unit,
		Min:   m.Min,
		Max:   m.Max,
	}
	res.Passed = m.Contains(value)
	return res, nil
}

// ParseMeasurement парсит измеренное значение.
func ParseMeasurement(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: measured value is required", ErrInvalidInput)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a finite number", ErrInvalidInput, raw)
	}
	return v, nil
}
