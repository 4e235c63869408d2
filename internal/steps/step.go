package steps

import (
	"errors"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Ошибки шагов.
var (
	// ErrEvaluatorNotFound — для вида шага не зарегистрирован обработчик.
	ErrEvaluatorNotFound = errors.New("step evaluator not found")

	// ErrInvalidInput — ввод оператора не подходит для вида шага
	// (не число, пустой ответ). Результат не записывается.
	ErrInvalidInput = errors.New("invalid step input")

	// ErrPayloadMismatch — шаг не содержит параметров своего вида.
	ErrPayloadMismatch = errors.New("step payload does not match kind")
)

// Evaluator — обработчик ввода для одного вида шага.
//
// Каждый вид (измерения, вопрос, инструкция) реализует этот интерфейс.
type Evaluator interface {
	// Kinds возвращает виды шагов, которые обслуживает обработчик.
	Kinds() []domain.StepKind

	// Evaluate превращает ввод оператора в результат шага.
	// Возвращает ErrInvalidInput, если ввод не может быть принят.
	//
	// Заполняются StepID, Kind, Label, outcome, Passed и RawInput;
	// ID, SessionID и CreatedAt устанавливает вызывающий.
	Evaluate(step *domain.Step, raw string) (*domain.StepResult, error)
}

// newResult создаёт результат с общими полями шага.
func newResult(step *domain.Step, raw string) *domain.StepResult {
	return &domain.StepResult{
		StepID:   step.ID,
		Kind:     step.Kind,
		Label:    step.Label(),
		RawInput: raw,
	}
}
