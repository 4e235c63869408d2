package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Direction — направление перемещения шага.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Reorder выставляет шагам порядок 1..n согласно списку ids.
// Список должен содержать каждый шаг процедуры ровно один раз.
func Reorder(cfg *domain.TestConfig, ids []uuid.UUID) error {
	if len(ids) != len(cfg.Steps) {
		return fmt.Errorf("%w: got %d ids for %d steps", ErrReorderMismatch, len(ids), len(cfg.Steps))
	}

	pos := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		if _, ok := cfg.Step(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStep, id)
		}
		if _, dup := pos[id]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrReorderMismatch, id)
		}
		pos[id] = i + 1
	}

	for i := range cfg.Steps {
		order, ok := pos[cfg.Steps[i].ID]
		if !ok {
			return fmt.Errorf("%w: step %s not listed", ErrReorderMismatch, cfg.Steps[i].ID)
		}
		cfg.Steps[i].Order = order
	}

	cfg.SortSteps()
	return nil
}

// MoveStep меняет шаг местами с соседним в направлении dir.
// Возвращает false, если шаг уже на границе (первый при up, последний при down).
// Порядок всех шагов после перемещения нормализуется в 1..n.
func MoveStep(cfg *domain.TestConfig, stepID uuid.UUID, dir Direction) (bool, error) {
	cfg.SortSteps()

	idx := -1
	for i := range cfg.Steps {
		if cfg.Steps[i].ID == stepID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}

	var target int
	switch dir {
	case DirectionUp:
		target = idx - 1
	case DirectionDown:
		target = idx + 1
	default:
		return false, fmt.Errorf("unknown direction %q", dir)
	}

	if target < 0 || target >= len(cfg.Steps) {
		return false, nil
	}

	cfg.Steps[idx], cfg.Steps[target] = cfg.Steps[target], cfg.Steps[idx]
	for i := range cfg.Steps {
		cfg.Steps[i].Order = i + 1
	}
	return true, nil
}
