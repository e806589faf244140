// Package bus — внутрипроцессный publish/subscribe для событий
// жизненного цикла запусков.
//
// Оркестратор и планировщик публикуют события; внешние транспорты
// (WebSocket-ретранслятор) подписываются и раздают их дальше.
// Bus создаётся один раз при старте процесса и передаётся явно —
// никакого глобального состояния.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind — вид события.
type Kind string

// Виды событий. Формы payload фиксированы контрактом событийного
// потока: start{runId,totalSteps}, step-start{runId,step},
// step-end{runId,step,stepIndex,totalSteps,success,error?},
// log{runId,msg,ts}, end{runId,success}; системные события
// *:changed идут без payload.
const (
	KindStart     Kind = "start"
	KindStepStart Kind = "step-start"
	KindStepEnd   Kind = "step-end"
	KindLog       Kind = "log"
	KindEnd       Kind = "end"

	KindPipelinesChanged Kind = "pipelines:changed"
	KindModulesChanged   Kind = "modules:changed"
	KindVariablesChanged Kind = "variables:changed"
)

// Event — одно событие. Сериализуется в один JSON-объект на событие.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Kind — вид события.
	Kind Kind `json:"kind"`

	// PipelineID — идентификатор пайплайна.
	// Пустой для системных событий *:changed.
	PipelineID string `json:"pipelineId,omitempty"`

	// Payload — полезная нагрузка события.
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// Listener — подписчик шины.
// Вызывается синхронно в контексте публикующего.
type Listener func(Event)

// listenerEntry — зарегистрированный подписчик с порядковым номером.
type listenerEntry struct {
	id int
	fn Listener
}

// Bus — шина событий.
//
// Доставка синхронная, подписчикам в порядке подписки. Паника или
// ошибка одного подписчика не мешает остальным и не протекает в
// оркестратор. Publish безопасен при конкурентных вызовах из
// нескольких запусков и планировщика.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners []listenerEntry
	logger    *slog.Logger
}

// New создаёт новую шину.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe регистрирует подписчика.
// Возвращает функцию отписки.
func (b *Bus) Subscribe(l Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: l})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.listeners {
			if b.listeners[i].id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish доставляет событие всем подписчикам в порядке подписки.
// Заполняет ID и Timestamp, если они не заданы.
func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	snapshot := make([]listenerEntry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.RUnlock()

	for _, entry := range snapshot {
		b.deliver(entry, e)
	}
}

// deliver вызывает одного подписчика, изолируя его панику.
func (b *Bus) deliver(entry listenerEntry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"kind", e.Kind,
				"pipeline_id", e.PipelineID,
				"panic", r,
			)
		}
	}()
	entry.fn(e)
}

// ListenerCount возвращает количество подписчиков.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
