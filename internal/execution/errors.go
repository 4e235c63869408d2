package execution

import (
	"errors"

	"github.com/shaiso/ModuleTrack/internal/steps"
)

// Ошибки выполнения тестов.
var (
	// ErrInvalidInput — ввод оператора отклонён; результат не записан.
	ErrInvalidInput = steps.ErrInvalidInput

	// ErrPCBNotFound — плата не найдена.
	ErrPCBNotFound = errors.New("pcb not found")

	// ErrNoTestConfig — у партии платы нет тестовой процедуры.
	ErrNoTestConfig = errors.New("batch has no test config")

	// ErrStepNotFound — шаг не принадлежит процедуре сессии.
	ErrStepNotFound = errors.New("step not found in test config")

	// ErrSessionNotFound — сессия не найдена.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionFinalized — сессия уже завершена техником.
	ErrSessionFinalized = errors.New("session already completed")

	// ErrSessionAbandoned — сессия брошена и освобождена sweeper'ом.
	ErrSessionAbandoned = errors.New("session abandoned")

	// ErrSessionNotFinalized — сессия ещё не завершена техником (нельзя подписать).
	ErrSessionNotFinalized = errors.New("session is not completed")

	// ErrAlreadySignedOff — сессия уже подписана QA.
	ErrAlreadySignedOff = errors.New("session already signed off")
)
