package engine

import "github.com/shaiso/Conveyor/internal/domain"

// Stage — стадия плана выполнения: непустой набор шагов, которые
// могут стартовать одновременно. Шаги запускаются в порядке
// объявления, но порядок их завершения не определён.
type Stage struct {
	// Index — позиция стадии в плане (с нуля).
	Index int

	// Steps — шаги стадии.
	Steps []domain.Step
}

// ExecutionPlan — план выполнения пайплайна.
//
// Стадии выполняются строго по порядку: стадия N+1 не стартует,
// пока все шаги стадии N не достигли терминального состояния.
type ExecutionPlan struct {
	// Stages — упорядоченный список стадий.
	Stages []Stage
}

// TotalSteps возвращает общее количество шагов плана.
func (p *ExecutionPlan) TotalSteps() int {
	total := 0
	for i := range p.Stages {
		total += len(p.Stages[i].Steps)
	}
	return total
}

// StepNames возвращает имена всех шагов в порядке плана.
func (p *ExecutionPlan) StepNames() []string {
	names := make([]string, 0, p.TotalSteps())
	for i := range p.Stages {
		for j := range p.Stages[i].Steps {
			names = append(names, p.Stages[i].Steps[j].Name)
		}
	}
	return names
}
