package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const (
	// defaultTickInterval — период тика планировщика.
	defaultTickInterval = 60 * time.Second

	// defaultDueWindow — окно поиска срабатываний. Чуть шире периода
	// тика: дрожание тикера не должно терять срабатывания на границе
	// минуты.
	defaultDueWindow = 70 * time.Second

	// defaultTriggerCap — ёмкость множества ключей срабатываний.
	defaultTriggerCap = 100
)

// Runner — порт запуска пайплайнов. Реализуется оркестратором.
type Runner interface {
	// RunPipeline запускает пайплайн по ID и блокирует до завершения.
	RunPipeline(ctx context.Context, id string, inputs map[string]any) (*orchestrator.RunOutcome, error)
}

// triggerKey — ключ срабатывания: пайплайн и момент расписания.
// Один ключ — максимум один запуск, сколько бы тиков его ни увидели.
type triggerKey struct {
	pipelineID string
	instant    int64
}

// triggerSet — множество ключей срабатываний с ограниченной
// ёмкостью. При переполнении вытесняется старейший по вставке ключ.
// Не потокобезопасно: используется только из тика.
type triggerSet struct {
	cap   int
	keys  map[string]map[int64]struct{}
	order []triggerKey
}

func newTriggerSet(capacity int) *triggerSet {
	return &triggerSet{
		cap:  capacity,
		keys: make(map[string]map[int64]struct{}),
	}
}

// Add добавляет ключ. false — ключ уже был.
func (ts *triggerSet) Add(k triggerKey) bool {
	if _, ok := ts.keys[k.pipelineID][k.instant]; ok {
		return false
	}

	if len(ts.order) >= ts.cap {
		oldest := ts.order[0]
		ts.order = ts.order[1:]
		delete(ts.keys[oldest.pipelineID], oldest.instant)
		if len(ts.keys[oldest.pipelineID]) == 0 {
			delete(ts.keys, oldest.pipelineID)
		}
	}

	if ts.keys[k.pipelineID] == nil {
		ts.keys[k.pipelineID] = make(map[int64]struct{})
	}
	ts.keys[k.pipelineID][k.instant] = struct{}{}
	ts.order = append(ts.order, k)
	return true
}

// Len возвращает количество ключей в множестве.
func (ts *triggerSet) Len() int {
	return len(ts.order)
}

// Scheduler запускает пайплайны по cron-расписаниям.
type Scheduler struct {
	source   orchestrator.PipelineSource
	runner   Runner
	logger   *slog.Logger
	interval time.Duration
	window   time.Duration

	triggered *triggerSet
	ticking   atomic.Bool
}

// Config — конфигурация Scheduler.
type Config struct {
	// Source — источник определений пайплайнов.
	Source orchestrator.PipelineSource

	// Runner — исполнитель запусков.
	Runner Runner

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger

	// TickInterval — период тика (default: 60s). Тесты ставят меньше.
	TickInterval time.Duration

	// DueWindow — окно поиска срабатываний (default: 70s).
	DueWindow time.Duration

	// TriggerCap — ёмкость множества ключей срабатываний
	// (default: 100).
	TriggerCap int
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	window := cfg.DueWindow
	if window <= 0 {
		window = defaultDueWindow
	}
	capacity := cfg.TriggerCap
	if capacity <= 0 {
		capacity = defaultTriggerCap
	}

	return &Scheduler{
		source:    cfg.Source,
		runner:    cfg.Runner,
		logger:    logger,
		interval:  interval,
		window:    window,
		triggered: newTriggerSet(capacity),
	}
}

// Start тикает до отмены ctx. Блокирует вызывающего.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval, "window", s.window)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			if !s.ticking.CompareAndSwap(false, true) {
				// Предыдущий тик ещё идёт.
				telemetry.SchedulerSkippedTicks.Inc()
				s.logger.Warn("scheduler tick skipped, previous tick still running")
				continue
			}
			go func() {
				defer s.ticking.Store(false)
				s.Tick(ctx, now)
			}()
		}
	}
}

// Tick выполняет один тик: находит пайплайны, чьё расписание
// сработало в пределах окна, и запускает их.
//
// Запуски fire-and-forget: тик не ждёт завершения пайплайнов.
// Ошибки одного пайплайна не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	telemetry.SchedulerTicks.Inc()

	pipelines, err := s.source.ListPipelines(ctx)
	if err != nil {
		s.logger.Error("scheduler failed to list pipelines", "error", err)
		return
	}

	triggered := 0
	for i := range pipelines {
		if s.evaluate(ctx, &pipelines[i], now) {
			triggered++
		}
	}

	if triggered > 0 {
		s.logger.Info("scheduler tick completed",
			"pipelines", len(pipelines),
			"triggered", triggered,
		)
	}
}

// evaluate проверяет расписание одного пайплайна.
// Возвращает true, если запуск был создан.
func (s *Scheduler) evaluate(ctx context.Context, p *domain.Pipeline, now time.Time) bool {
	if p.Schedule == "" || p.SchedulePaused {
		return false
	}

	due, found, err := MostRecent(p.Schedule, now, s.window)
	if err != nil {
		// Невалидное выражение: пайплайн пропускается, тик живёт.
		s.logger.Error("invalid schedule, skipping pipeline",
			"pipeline_id", p.ID,
			"schedule", p.Schedule,
			"error", err,
		)
		return false
	}
	if !found {
		return false
	}

	key := triggerKey{pipelineID: p.ID, instant: due.Unix()}
	if !s.triggered.Add(key) {
		// Этот момент уже запускался.
		return false
	}

	telemetry.SchedulerTriggers.Inc()
	s.logger.Info("schedule triggered",
		"pipeline_id", p.ID,
		"schedule", p.Schedule,
		"instant", due.UTC().Format(time.RFC3339),
	)

	go func(id string) {
		if _, err := s.runner.RunPipeline(ctx, id, nil); err != nil {
			s.logger.Error("scheduled run failed",
				"pipeline_id", id,
				"error", err,
			)
		}
	}(p.ID)

	return true
}
