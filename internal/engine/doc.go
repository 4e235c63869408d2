// Package engine содержит правила выполнения тестовых процедур.
//
// Включает:
//   - parser.go   — нормализация и валидация TestConfig
//   - order.go    — переупорядочивание и перемещение шагов
//   - progress.go — следующий шаг, прогресс и итог сессии
//
// Все функции пакета чистые: они получают процедуру и записанные
// результаты и ничего не сохраняют. Хранение и побочные эффекты
// находятся в пакете execution.
//
// Выполненность шага определяется по ссылке StepResult.StepID на шаг,
// а не по совпадению текста.
package engine
