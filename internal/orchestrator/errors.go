package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrPipelineNotFound — пайплайн не найден в хранилище.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrRunAlreadyActive — у пайплайна уже есть запуск в полёте.
	ErrRunAlreadyActive = errors.New("pipeline run already active")

	// ErrNoActiveRun — у пайплайна нет запуска в полёте.
	ErrNoActiveRun = errors.New("no active run for pipeline")

	// ErrRunCancelled — запуск остановлен пользователем.
	ErrRunCancelled = errors.New("run cancelled")
)

// StepError — ошибка шага с его именем.
// Оборачивает ошибку модуля (или загрузки модуля), чтобы
// вызывающий видел, какой именованный шаг упал и почему.
type StepError struct {
	Step string
	Err  error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return "step " + e.Step + ": " + e.Err.Error()
}

// Unwrap возвращает базовую ошибку.
func (e *StepError) Unwrap() error {
	return e.Err
}
