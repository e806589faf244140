package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	running → success
//	        ↘ fail
//	        ↘ cancelled
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess — run успешно завершён.
	RunStatusSuccess RunStatus = "success"

	// RunStatusFail — run завершился с ошибкой шага.
	RunStatusFail RunStatus = "fail"

	// RunStatusCancelled — run остановлен пользователем.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFail, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus — статус выполнения шага.
type StepStatus string

const (
	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "running"

	// StepStatusSuccess — шаг успешно завершён.
	StepStatusSuccess StepStatus = "success"

	// StepStatusFail — шаг завершился с ошибкой.
	StepStatusFail StepStatus = "fail"
)

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSuccess || s == StepStatusFail
}
