package domain

// Verdict — итог тестовой сессии.
//
// Жизненный цикл:
//
//	INCOMPLETE → PASSED
//	           ↘ FAILED
//
// Итог вычисляется при завершении сессии и может быть пересчитан
// после исправления результатов.
type Verdict string

const (
	// VerdictIncomplete — сессия ещё не завершена (значение по умолчанию).
	VerdictIncomplete Verdict = "INCOMPLETE"

	// VerdictPassed — все шаги выполнены и пройдены.
	VerdictPassed Verdict = "PASSED"

	// VerdictFailed — есть непройденные или невыполненные шаги.
	VerdictFailed Verdict = "FAILED"
)

// IsFinal возвращает true, если итог уже определён.
func (v Verdict) IsFinal() bool {
	switch v {
	case VerdictPassed, VerdictFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление Verdict.
func (v Verdict) String() string {
	return string(v)
}

// ParseVerdict парсит строку в Verdict.
func ParseVerdict(s string) Verdict {
	switch s {
	case "PASSED":
		return VerdictPassed
	case "FAILED":
		return VerdictFailed
	default:
		return VerdictIncomplete
	}
}
