package steps

import (
	"fmt"
	"strings"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// truthyTokens — ответы, означающие "да", без учёта регистра.
// Любой другой непустой ответ — "нет".
var truthyTokens = map[string]bool{
	"true": true,
	"1":    true,
	"yes":  true,
}

// QuestionEvaluator обрабатывает шаги-вопросы.
type QuestionEvaluator struct{}

// NewQuestionEvaluator создаёт QuestionEvaluator.
func NewQuestionEvaluator() *QuestionEvaluator {
	return &QuestionEvaluator{}
}

// Kinds возвращает QUESTION.
func (e *QuestionEvaluator) Kinds() []domain.StepKind {
	return []domain.StepKind{domain.StepKindQuestion}
}

// Evaluate приводит ответ к bool и сравнивает с ожидаемым.
func (e *QuestionEvaluator) Evaluate(step *domain.Step, raw string) (*domain.StepResult, error) {
	q := step.Question
	if q == nil {
		return nil, fmt.Errorf("%w: %s step %s", ErrPayloadMismatch, step.Kind, step.ID)
	}

	answer, err := ParseAnswer(raw)
	if err != nil {
		return nil, err
	}

	res := newResult(step, raw)
	res.Question = &domain.QuestionOutcome{
		Answer:         answer,
		RequiredAnswer: q.RequiredAnswer,
	}
	res.Passed = answer == q.RequiredAnswer
	return res, nil
}

// ParseAnswer приводит ответ оператора к bool. Регистр не учитывается.
// Пустой ответ отклоняется с ErrInvalidInput.
func ParseAnswer(raw string) (bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}
	return truthyTokens[strings.ToLower(s)], nil
}
