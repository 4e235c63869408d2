// Package steps содержит обработчики ввода оператора для видов шагов.
//
// # Интерфейс Evaluator
//
//	type Evaluator interface {
//	    Kinds() []domain.StepKind
//	    Evaluate(step *domain.Step, raw string) (*domain.StepResult, error)
//	}
//
// # Registry
//
//	registry := steps.DefaultRegistry()
//	res, err := registry.Evaluate(step, "5.02")
//	if errors.Is(err, steps.ErrInvalidInput) {
//	    // ввод отклонён, ничего не записываем
//	}
//
// # Виды шагов
//
// ## Измерения (measurement.go)
//
// VOLTAGE, CURRENT, RESISTANCE, FREQUENCY. Ввод — число с точкой;
// Passed = Min <= value <= Max. Некорректное число — ErrInvalidInput.
//
// ## Вопрос (question.go)
//
// "Да" — одно из "true", "1", "yes" без учёта регистра; любой другой
// непустой ответ — "нет". Passed = (ответ == RequiredAnswer).
//
// ## Инструкция (instruction.go)
//
// Отправка означает подтверждение: Acknowledged = true, Passed = true.
//
// # Файлы пакета
//
//   - step.go        — интерфейс Evaluator, ошибки
//   - registry.go    — Registry для получения Evaluator по виду
//   - measurement.go — MeasurementEvaluator
//   - question.go    — QuestionEvaluator
//   - instruction.go — InstructionEvaluator
package steps
