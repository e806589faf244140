package engine

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Resolve строит план выполнения из списка шагов пайплайна.
//
// Каждый элемент списка становится стадией: одиночный шаг — стадией
// из одного шага, параллельная группа — стадией из нескольких.
//
// Валидация (ValidationError):
//   - пустой список шагов, пустое имя или модуль шага
//   - дубликат имени шага
//   - dependsOn на несуществующий шаг
//   - зависимость, образующая цикл с порядком стадий: ребро на
//     шаг той же или более поздней стадии. Зависимость "вперёд"
//     отклоняется, а не переупорядочивается — план должен быть
//     статически определим до запуска первого шага.
//
// Resolve детерминирован: одинаковый вход даёт одинаковый план.
func Resolve(items []domain.StepItem) (*ExecutionPlan, error) {
	if len(items) == 0 {
		return nil, NewValidationError("", "steps", "pipeline has no steps", ErrEmptySteps)
	}

	plan := &ExecutionPlan{
		Stages: make([]Stage, 0, len(items)),
	}

	// Первый проход: раскладываем шаги по стадиям и проверяем имена.
	stageOf := make(map[string]int)
	for i := range items {
		item := &items[i]

		steps := item.Steps()
		if item.IsParallel() && len(steps) == 0 {
			return nil, NewValidationError("", "parallel",
				fmt.Sprintf("parallel group at position %d has no steps", i), ErrEmptyParallelGroup)
		}

		for j := range steps {
			step := &steps[j]

			if step.Name == "" {
				return nil, NewValidationError("", "name",
					fmt.Sprintf("step at stage %d has empty name", i), ErrEmptyStepName)
			}
			if step.Module == "" {
				return nil, NewValidationError(step.Name, "module",
					fmt.Sprintf("step %s has empty module", step.Name), ErrEmptyModule)
			}
			if _, exists := stageOf[step.Name]; exists {
				return nil, NewValidationError(step.Name, "name",
					fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
			}
			stageOf[step.Name] = i
		}

		plan.Stages = append(plan.Stages, Stage{Index: i, Steps: steps})
	}

	// Второй проход: проверяем рёбра dependsOn против порядка стадий.
	// Ребро валидно только на шаг строго более ранней стадии; любое
	// другое — back-edge в объединённом графе (порядок стадий ∪
	// dependsOn), то есть цикл.
	for i := range plan.Stages {
		for j := range plan.Stages[i].Steps {
			step := &plan.Stages[i].Steps[j]

			for _, dep := range step.DependsOn {
				if dep == step.Name {
					return nil, NewValidationError(step.Name, "dependsOn",
						fmt.Sprintf("step %s depends on itself", step.Name), ErrSelfDependency)
				}

				depStage, exists := stageOf[dep]
				if !exists {
					return nil, NewValidationError(step.Name, "dependsOn",
						fmt.Sprintf("depends on unknown step: %s", dep), ErrMissingDependency)
				}

				if depStage >= i {
					return nil, NewValidationError(step.Name, "dependsOn",
						fmt.Sprintf("dependency %s is not satisfied by an earlier stage", dep),
						ErrCyclicDependency)
				}
			}
		}
	}

	return plan, nil
}
