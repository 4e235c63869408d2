package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// TestConfig — тестовая процедура (набор упорядоченных шагов).
//
// Процедура назначается партии (Batch.TestConfigID); все платы партии
// проходят одну и ту же процедуру. Во время выполнения процедура
// только читается.
type TestConfig struct {
	// ID — уникальный идентификатор процедуры.
	ID uuid.UUID `json:"id"`

	// Name — название. Уникально без учёта регистра.
	Name string `json:"name"`

	// Description — описание процедуры.
	Description string `json:"description,omitempty"`

	// Steps — шаги процедуры, отсортированные по (Order, CreatedAt).
	Steps []Step `json:"steps"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SortSteps сортирует шаги по (Order, CreatedAt).
func (c *TestConfig) SortSteps() {
	sort.SliceStable(c.Steps, func(i, j int) bool {
		if c.Steps[i].Order != c.Steps[j].Order {
			return c.Steps[i].Order < c.Steps[j].Order
		}
		return c.Steps[i].CreatedAt.Before(c.Steps[j].CreatedAt)
	})
}

// Step возвращает шаг процедуры по ID.
func (c *TestConfig) Step(id uuid.UUID) (*Step, bool) {
	for i := range c.Steps {
		if c.Steps[i].ID == id {
			return &c.Steps[i], true
		}
	}
	return nil, false
}

// CountByKind возвращает количество шагов каждого вида.
func (c *TestConfig) CountByKind() map[StepKind]int {
	counts := make(map[StepKind]int, len(AllStepKinds))
	for _, s := range c.Steps {
		counts[s.Kind]++
	}
	return counts
}
