package domain

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline — определение пайплайна.
//
// Pipeline описывает автоматизацию: упорядоченный список шагов
// (возможно сгруппированных для параллельного выполнения), расписание
// и входные параметры. Определение неизменяемо во время выполнения —
// engine работает со снимком, меняет определения только хранилище.
type Pipeline struct {
	// ID — уникальный идентификатор пайплайна.
	ID string `yaml:"id" json:"id"`

	// Name — человекочитаемое имя пайплайна.
	Name string `yaml:"name" json:"name"`

	// Steps — упорядоченный список шагов. Порядок объявления задаёт
	// последовательность стадий выполнения.
	Steps []StepItem `yaml:"steps" json:"steps"`

	// Schedule — cron-выражение для автоматического запуска.
	// Пустая строка — пайплайн запускается только вручную.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// SchedulePaused — расписание приостановлено.
	// Планировщик пропускает такой пайплайн на каждом тике.
	SchedulePaused bool `yaml:"schedulePaused,omitempty" json:"schedulePaused,omitempty"`

	// Env — имя набора переменных окружения (см. store.Variables).
	// Переменные набора переопределяют глобальные.
	Env string `yaml:"env,omitempty" json:"env,omitempty"`

	// KeepWorkDir — не удалять рабочую директорию после выполнения.
	// Директория переиспользуется между запусками.
	KeepWorkDir bool `yaml:"keepWorkDir,omitempty" json:"keepWorkDir,omitempty"`

	// Inputs — типизированные входные параметры запуска.
	// Ключ — имя параметра, значение — его определение.
	Inputs map[string]InputDef `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// InputDef — определение входного параметра пайплайна.
type InputDef struct {
	// Type — тип параметра: "string", "number", "boolean", "object".
	Type string `yaml:"type" json:"type"`

	// Required — обязательный ли параметр.
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Default — значение по умолчанию.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`

	// Description — описание параметра.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// StepItem — элемент списка шагов: либо одиночный шаг, либо
// параллельная группа. Ровно одно из полей заполнено.
//
// В YAML одиночный шаг записывается как обычный mapping, параллельная
// группа — как mapping с единственным ключом "parallel":
//
//	steps:
//	  - name: checkout
//	    module: git
//	  - parallel:
//	      - name: build
//	        module: shell
//	      - name: lint
//	        module: shell
type StepItem struct {
	// Step — одиночный шаг (nil для параллельной группы).
	Step *Step `json:"step,omitempty"`

	// Parallel — шаги параллельной группы (nil для одиночного шага).
	Parallel []Step `json:"parallel,omitempty"`
}

// IsParallel возвращает true, если элемент — параллельная группа.
func (si *StepItem) IsParallel() bool {
	return si.Step == nil
}

// Steps возвращает шаги элемента: один для одиночного шага,
// все шаги группы для параллельной.
func (si *StepItem) Steps() []Step {
	if si.Step != nil {
		return []Step{*si.Step}
	}
	return si.Parallel
}

// parallelProbe — вспомогательная структура для распознавания
// параллельной группы при разборе YAML.
type parallelProbe struct {
	Parallel []Step `yaml:"parallel"`
}

// UnmarshalYAML разбирает StepItem из YAML.
// Mapping с ключом "parallel" — группа, любой другой mapping — шаг.
func (si *StepItem) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("step item must be a mapping, got %v", node.Kind)
	}

	if len(node.Content) >= 2 && node.Content[0].Value == "parallel" {
		var probe parallelProbe
		if err := node.Decode(&probe); err != nil {
			return fmt.Errorf("parse parallel group: %w", err)
		}
		si.Parallel = probe.Parallel
		return nil
	}

	var step Step
	if err := node.Decode(&step); err != nil {
		return fmt.Errorf("parse step: %w", err)
	}
	si.Step = &step
	return nil
}

// MarshalYAML сериализует StepItem обратно в YAML.
func (si StepItem) MarshalYAML() (any, error) {
	if si.Step != nil {
		return si.Step, nil
	}
	return parallelProbe{Parallel: si.Parallel}, nil
}

// Step — один шаг пайплайна.
type Step struct {
	// Name — уникальное в рамках пайплайна имя шага.
	// Используется в dependsOn и для адресации результата.
	Name string `yaml:"name" json:"name"`

	// Module — имя модуля, выполняющего шаг (shell, http, s3, ...).
	Module string `yaml:"module" json:"module"`

	// Params — параметры модуля. Engine их не интерпретирует,
	// только выполняет подстановку значений из окружения.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`

	// DependsOn — имена шагов, которые должны успешно завершиться
	// до запуска этого шага.
	DependsOn []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
}

// TotalSteps возвращает общее количество шагов пайплайна.
func (p *Pipeline) TotalSteps() int {
	total := 0
	for i := range p.Steps {
		total += len(p.Steps[i].Steps())
	}
	return total
}
