package steps

import (
	"fmt"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// InstructionEvaluator обрабатывает шаги-инструкции.
// Отправка шага означает подтверждение; ввод не анализируется.
type InstructionEvaluator struct{}

// NewInstructionEvaluator создаёт InstructionEvaluator.
func NewInstructionEvaluator() *InstructionEvaluator {
	return &InstructionEvaluator{}
}

// Kinds возвращает INSTRUCTION.
func (e *InstructionEvaluator) Kinds() []domain.StepKind {
	return []domain.StepKind{domain.StepKindInstruction}
}

// Evaluate всегда возвращает подтверждённый результат.
func (e *InstructionEvaluator) Evaluate(step *domain.Step, raw string) (*domain.StepResult, error) {
	if step.Instruction == nil {
		return nil, fmt.Errorf("%w: %s step %s", ErrPayloadMismatch, step.Kind, step.ID)
	}

	res := newResult(step, raw)
	res.Instruction = &domain.InstructionOutcome{Acknowledged: true}
	res.Passed = true
	return res, nil
}
