package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// MemoryHistory — история запусков в памяти процесса.
//
// Используется одноразовыми запусками из CLI (без PostgreSQL)
// и тестами. Потокобезопасна.
type MemoryHistory struct {
	mu     sync.RWMutex
	nextID int64
	runs   []*domain.Run
	steps  []*domain.StepRecord
}

// NewMemoryHistory создаёт пустую историю.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// StartRun создаёт запись о запуске в статусе running.
func (h *MemoryHistory) StartRun(_ context.Context, pipelineID, runID string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.runs = append(h.runs, &domain.Run{
		ID:         h.nextID,
		PipelineID: pipelineID,
		RunID:      runID,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
	})
	return h.nextID, nil
}

// FinishRun финализирует запись о запуске.
func (h *MemoryHistory) FinishRun(_ context.Context, recordID int64, status domain.RunStatus, logText string, duration time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, run := range h.runs {
		if run.ID == recordID {
			now := time.Now()
			run.Status = status
			run.Log = logText
			run.DurationMs = duration.Milliseconds()
			run.FinishedAt = &now
			return nil
		}
	}
	return fmt.Errorf("finish run %d: %w", recordID, ErrNotFound)
}

// StartStep создаёт запись о старте шага.
func (h *MemoryHistory) StartStep(_ context.Context, recordID int64, stepName, moduleName string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	h.steps = append(h.steps, &domain.StepRecord{
		ID:        h.nextID,
		RunID:     recordID,
		StepName:  stepName,
		Module:    moduleName,
		Status:    domain.StepStatusRunning,
		StartedAt: time.Now(),
	})
	return h.nextID, nil
}

// FinishStep финализирует запись шага.
func (h *MemoryHistory) FinishStep(_ context.Context, stepRecordID int64, status domain.StepStatus, result any, errText string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rec := range h.steps {
		if rec.ID == stepRecordID {
			now := time.Now()
			rec.Status = status
			rec.Error = errText
			rec.FinishedAt = &now
			if result != nil {
				data, err := json.Marshal(result)
				if err != nil {
					data, _ = json.Marshal(fmt.Sprintf("%v", result))
				}
				rec.Result = string(data)
			}
			return nil
		}
	}
	return fmt.Errorf("finish step %d: %w", stepRecordID, ErrNotFound)
}

// Runs возвращает копии всех записей запусков.
func (h *MemoryHistory) Runs() []domain.Run {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.Run, len(h.runs))
	for i, run := range h.runs {
		out[i] = *run
	}
	return out
}

// Steps возвращает копии записей шагов одного запуска.
func (h *MemoryHistory) Steps(recordID int64) []domain.StepRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []domain.StepRecord
	for _, rec := range h.steps {
		if rec.RunID == recordID {
			out = append(out, *rec)
		}
	}
	return out
}
