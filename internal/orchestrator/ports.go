package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// History — порт персистентности истории запусков.
//
// Оркестратор записывает старт/финиш запуска и каждого шага.
// Реализации: internal/repo (PostgreSQL и in-memory).
type History interface {
	// StartRun создаёт запись о запуске. Возвращает её идентификатор.
	StartRun(ctx context.Context, pipelineID, runID string) (int64, error)

	// FinishRun финализирует запись о запуске: терминальный статус,
	// накопленный лог и длительность. Вызывается ровно один раз.
	FinishRun(ctx context.Context, recordID int64, status domain.RunStatus, logText string, duration time.Duration) error

	// StartStep создаёт запись о старте шага.
	StartStep(ctx context.Context, recordID int64, stepName, moduleName string) (int64, error)

	// FinishStep финализирует запись шага: статус, сериализуемый
	// результат (для успешных) или текст ошибки.
	FinishStep(ctx context.Context, stepRecordID int64, status domain.StepStatus, result any, errText string) error
}

// PipelineSource — источник определений пайплайнов.
// Реализация: internal/store.
type PipelineSource interface {
	// ListPipelines возвращает все известные пайплайны.
	ListPipelines(ctx context.Context) ([]domain.Pipeline, error)

	// LoadPipeline возвращает пайплайн по ID.
	// nil, nil — пайплайн не существует.
	LoadPipeline(ctx context.Context, id string) (*domain.Pipeline, error)
}
