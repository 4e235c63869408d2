package engine

import (
	"github.com/google/uuid"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// Progress — прогресс сессии по процедуре.
// Только для индикации; итог определяется DetermineVerdict.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Fraction  float64 `json:"fraction"`
}

// Done возвращает true, если выполнены все шаги.
func (p Progress) Done() bool {
	return p.Completed >= p.Total
}

// KindSummary — статистика результатов по одному виду шага.
type KindSummary struct {
	Kind       domain.StepKind `json:"kind"`
	Configured int             `json:"configured"`
	Recorded   int             `json:"recorded"`
	Passed     int             `json:"passed"`
}

// CompletedSteps возвращает множество шагов, для которых записан
// хотя бы один результат. Повторные результаты одного шага
// не увеличивают множество.
func CompletedSteps(results []domain.StepResult) map[uuid.UUID]bool {
	done := make(map[uuid.UUID]bool, len(results))
	for i := range results {
		if results[i].StepID != uuid.Nil {
			done[results[i].StepID] = true
		}
	}
	return done
}

// NextStep возвращает первый по порядку шаг процедуры без результата.
// Nil означает, что все шаги выполнены.
func NextStep(cfg *domain.TestConfig, results []domain.StepResult) *domain.Step {
	done := CompletedSteps(results)

	ordered := orderedSteps(cfg)
	for i := range ordered {
		if !done[ordered[i].ID] {
			step := ordered[i]
			return &step
		}
	}
	return nil
}

// ComputeProgress вычисляет прогресс: число выполненных шагов процедуры
// к общему числу шагов. Для пустой процедуры Fraction = 0.
func ComputeProgress(cfg *domain.TestConfig, results []domain.StepResult) Progress {
	done := CompletedSteps(results)

	p := Progress{Total: len(cfg.Steps)}
	for _, s := range cfg.Steps {
		if done[s.ID] {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Fraction = float64(p.Completed) / float64(p.Total)
	}
	return p
}

// DetermineVerdict вычисляет итог сессии.
//
// PASSED, если одновременно:
//   - каждый записанный результат засчитан (Satisfied);
//   - для каждого вида шага число выполненных шагов процедуры
//     равно числу шагов этого вида в процедуре.
//
// Иначе FAILED. Частичного зачёта нет.
func DetermineVerdict(cfg *domain.TestConfig, results []domain.StepResult) domain.Verdict {
	for i := range results {
		if !results[i].Satisfied() {
			return domain.VerdictFailed
		}
	}

	configured := cfg.CountByKind()
	completed := completedByKind(cfg, results)

	for _, kind := range domain.AllStepKinds {
		if completed[kind] != configured[kind] {
			return domain.VerdictFailed
		}
	}
	return domain.VerdictPassed
}

// Summarize возвращает статистику по видам шагов в порядке domain.AllStepKinds.
// Виды, которых нет ни в процедуре, ни в результатах, пропускаются.
func Summarize(cfg *domain.TestConfig, results []domain.StepResult) []KindSummary {
	byKind := make(map[domain.StepKind]*KindSummary, len(domain.AllStepKinds))
	get := func(k domain.StepKind) *KindSummary {
		s, ok := byKind[k]
		if !ok {
			s = &KindSummary{Kind: k}
			byKind[k] = s
		}
		return s
	}

	for k, n := range cfg.CountByKind() {
		get(k).Configured = n
	}
	for i := range results {
		s := get(results[i].Kind)
		s.Recorded++
		if results[i].Satisfied() {
			s.Passed++
		}
	}

	summary := make([]KindSummary, 0, len(byKind))
	for _, k := range domain.AllStepKinds {
		if s, ok := byKind[k]; ok {
			summary = append(summary, *s)
		}
	}
	return summary
}

// completedByKind считает выполненные шаги процедуры по видам.
// Вид берётся из шага процедуры, результаты удалённых шагов не учитываются.
func completedByKind(cfg *domain.TestConfig, results []domain.StepResult) map[domain.StepKind]int {
	done := CompletedSteps(results)
	counts := make(map[domain.StepKind]int, len(domain.AllStepKinds))
	for _, s := range cfg.Steps {
		if done[s.ID] {
			counts[s.Kind]++
		}
	}
	return counts
}

func orderedSteps(cfg *domain.TestConfig) []domain.Step {
	c := domain.TestConfig{Steps: make([]domain.Step, len(cfg.Steps))}
	copy(c.Steps, cfg.Steps)
	c.SortSteps()
	return c.Steps
}
