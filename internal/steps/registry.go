package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Registry — реестр обработчиков шагов по виду.
//
// Позволяет регистрировать и получать Evaluator по виду шага.
// Потокобезопасен.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[domain.StepKind]Evaluator
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[domain.StepKind]Evaluator),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными видами шагов.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewMeasurementEvaluator())
	r.Register(NewQuestionEvaluator())
	r.Register(NewInstructionEvaluator())

	return r
}

// Register регистрирует обработчик для всех его видов.
// Существующие обработчики этих видов перезаписываются.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range e.Kinds() {
		r.evaluators[k] = e
	}
}

// Get возвращает обработчик по виду.
// Возвращает ErrEvaluatorNotFound, если обработчик не найден.
func (r *Registry) Get(kind domain.StepKind) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.evaluators[kind]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrEvaluatorNotFound, kind)
	}
	return e, nil
}

// Has проверяет, зарегистрирован ли обработчик вида.
func (r *Registry) Has(kind domain.StepKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.evaluators[kind]
	return exists
}

// Kinds возвращает отсортированный список зарегистрированных видов.
func (r *Registry) Kinds() []domain.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.StepKind, 0, len(r.evaluators))
	for k := range r.evaluators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Unregister удаляет обработчик вида.
func (r *Registry) Unregister(kind domain.StepKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.evaluators, kind)
}

// Evaluate находит обработчик по виду шага и вычисляет результат.
func (r *Registry) Evaluate(step *domain.Step, raw string) (*domain.StepResult, error) {
	e, err := r.Get(step.Kind)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(step, raw)
}
