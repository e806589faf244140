package domain

import "time"

// Run — запись о выполнении пайплайна.
//
// Создаётся оркестратором при старте run, финализируется ровно один
// раз при завершении (в любом терминальном статусе). Хранится через
// Persistence Port (internal/repo).
type Run struct {
	// ID — идентификатор записи в хранилище.
	ID int64 `json:"id"`

	// PipelineID — идентификатор пайплайна.
	PipelineID string `json:"pipeline_id"`

	// RunID — идентификатор запуска: "<unix-millis>-<uuid8>".
	// Монотонно возрастает по времени старта, уникален.
	RunID string `json:"run_id"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Log — накопленный текст лога запуска.
	Log string `json:"log,omitempty"`

	// DurationMs — длительность выполнения в миллисекундах.
	// 0, пока run не завершён.
	DurationMs int64 `json:"duration_ms"`

	// StartedAt — время старта.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока run выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IsFinished возвращает true, если run завершён.
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// StepRecord — запись о выполнении одного шага.
//
// Создаётся при старте шага, финализируется при его завершении.
// Для шагов, которые не запускались (упала предыдущая стадия),
// записи не существует.
type StepRecord struct {
	// ID — идентификатор записи в хранилище.
	ID int64 `json:"id"`

	// RunID — ссылка на запись run (Run.ID).
	RunID int64 `json:"run_id"`

	// StepName — имя шага.
	StepName string `json:"step_name"`

	// Module — имя модуля шага.
	Module string `json:"module"`

	// Status — статус выполнения шага.
	Status StepStatus `json:"status"`

	// Result — сериализованный результат шага (JSON).
	Result string `json:"result,omitempty"`

	// Error — текст ошибки, если шаг упал.
	Error string `json:"error,omitempty"`

	// StartedAt — время старта шага.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока шаг выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
