package engine

import "errors"

// Ошибки валидации TestConfig.
var (
	// ErrEmptyName — процедура без названия.
	ErrEmptyName = errors.New("test config has empty name")

	// ErrUnknownStepKind — неизвестный вид шага.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrMissingPayload — поле варианта не соответствует виду шага.
	ErrMissingPayload = errors.New("step payload does not match kind")

	// ErrEmptyParameter — измерительный шаг без имени параметра.
	ErrEmptyParameter = errors.New("measurement step has empty parameter name")

	// ErrInvalidBounds — min больше max или границы не конечны.
	ErrInvalidBounds = errors.New("measurement bounds are invalid")

	// ErrEmptyText — вопрос или инструкция без текста.
	ErrEmptyText = errors.New("step has empty text")

	// ErrDuplicateStepID — несколько шагов с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")
)

// Ошибки порядка шагов.
var (
	// ErrReorderMismatch — список ID при переупорядочивании не совпадает с шагами процедуры.
	ErrReorderMismatch = errors.New("reorder list does not match config steps")

	// ErrUnknownStep — шаг с таким ID не принадлежит процедуре.
	ErrUnknownStep = errors.New("step does not belong to config")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StepID  string // ID шага (или его позиция), где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StepID != "" {
		return "step " + e.StepID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stepID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StepID:  stepID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
