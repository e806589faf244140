package runctx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LogSink — приёмник строк лога запуска.
// Вызывается синхронно из RunContext.Log.
type LogSink func(msg string, ts time.Time)

// RunContext — изменяемое состояние одного запуска пайплайна.
//
// Содержит рабочую директорию, слитое окружение, результаты
// завершённых шагов и токен отмены. Результаты append-only с
// уникальными ключами, поэтому конкурентные шаги одной стадии
// не конфликтуют по записи.
type RunContext struct {
	// RunID — идентификатор запуска.
	RunID string

	// PipelineID — идентификатор пайплайна.
	PipelineID string

	// WorkDir — рабочая директория запуска.
	// Эксклюзивно принадлежит этому запуску.
	WorkDir string

	// Env — слитое окружение: глобальные переменные < набор
	// окружения < входные параметры запуска.
	Env map[string]string

	// StartedAt — время старта запуска.
	StartedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	results map[string]any
	logBuf  strings.Builder
	sink    LogSink
}

// Context возвращает контекст отмены запуска.
// Модули обязаны кооперативно проверять его в долгих операциях.
func (rc *RunContext) Context() context.Context {
	return rc.ctx
}

// Cancel сигнализирует отмену запуска.
// Все шаги в полёте должны заметить её и завершиться.
func (rc *RunContext) Cancel() {
	rc.cancel()
}

// Cancelled возвращает true, если запуск отменён.
func (rc *RunContext) Cancelled() bool {
	return rc.ctx.Err() != nil
}

// SetResult записывает результат успешно завершённого шага.
// Ключ — имя шага; запись возможна ровно один раз.
func (rc *RunContext) SetResult(step string, result any) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, exists := rc.results[step]; exists {
		return fmt.Errorf("%w: %s", ErrResultExists, step)
	}
	rc.results[step] = result
	return nil
}

// Result возвращает результат шага по имени.
func (rc *RunContext) Result(step string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	result, ok := rc.results[step]
	return result, ok
}

// Results возвращает копию всех записанных результатов.
func (rc *RunContext) Results() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	out := make(map[string]any, len(rc.results))
	for k, v := range rc.results {
		out[k] = v
	}
	return out
}

// Log добавляет строку в лог запуска и передаёт её в sink
// (оркестратор публикует её как log-событие).
func (rc *RunContext) Log(msg string) {
	now := time.Now()

	rc.mu.Lock()
	rc.logBuf.WriteString(now.UTC().Format(time.RFC3339))
	rc.logBuf.WriteString(" ")
	rc.logBuf.WriteString(msg)
	rc.logBuf.WriteString("\n")
	sink := rc.sink
	rc.mu.Unlock()

	if sink != nil {
		sink(msg, now)
	}
}

// Logf — Log с форматированием.
func (rc *RunContext) Logf(format string, args ...any) {
	rc.Log(fmt.Sprintf(format, args...))
}

// LogText возвращает накопленный текст лога.
func (rc *RunContext) LogText() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.logBuf.String()
}
