package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/bus"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// RunOutcome — итог выполнения запуска.
type RunOutcome struct {
	// Success — запуск завершился успешно.
	Success bool

	// Duration — длительность запуска.
	Duration time.Duration

	// RunID — идентификатор запуска.
	RunID string

	// WorkDir — рабочая директория запуска. Существует после
	// завершения только при KeepWorkDir.
	WorkDir string
}

// Orchestrator выполняет пайплайны.
type Orchestrator struct {
	source  PipelineSource
	history History
	loader  module.Loader
	builder *runctx.Builder
	bus     *bus.Bus
	logger  *slog.Logger

	// active — запуски в полёте (pipelineID → состояние).
	// На пайплайн допускается один запуск одновременно.
	mu     sync.RWMutex
	active map[string]*activeRun
}

// activeRun — запуск в полёте.
type activeRun struct {
	runID string
	rc    *runctx.RunContext
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Source — источник определений пайплайнов.
	Source PipelineSource

	// History — порт персистентности истории.
	History History

	// Loader — загрузчик модулей.
	Loader module.Loader

	// Builder — сборщик контекста выполнения.
	Builder *runctx.Builder

	// Bus — шина событий.
	Bus *bus.Bus

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		source:  cfg.Source,
		history: cfg.History,
		loader:  cfg.Loader,
		builder: cfg.Builder,
		bus:     cfg.Bus,
		logger:  logger,
		active:  make(map[string]*activeRun),
	}
}

// NewRunID генерирует идентификатор запуска: unix-миллисекунды плюс
// короткий uuid-суффикс. Сортируется по времени старта, уникален
// даже при стартах в одну миллисекунду.
func NewRunID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// RunPipeline загружает пайплайн по ID и выполняет его.
func (o *Orchestrator) RunPipeline(ctx context.Context, id string, inputs map[string]any) (*RunOutcome, error) {
	p, err := o.source.LoadPipeline(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, id)
	}
	return o.Execute(ctx, p, inputs)
}

// StopPipeline сигнализирует отмену запуску пайплайна в полёте.
// Все шаги в полёте обязаны заметить отмену; run финализируется
// со статусом cancelled.
func (o *Orchestrator) StopPipeline(id string) error {
	o.mu.RLock()
	run, exists := o.active[id]
	o.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrNoActiveRun, id)
	}

	o.logger.Info("stopping pipeline run",
		"pipeline_id", id,
		"run_id", run.runID,
	)
	run.rc.Cancel()
	return nil
}

// ActiveRuns возвращает идентификаторы запусков в полёте
// (pipelineID → runID).
func (o *Orchestrator) ActiveRuns() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]string, len(o.active))
	for pipelineID, run := range o.active {
		out[pipelineID] = run.runID
	}
	return out
}

// Execute выполняет один запуск пайплайна.
//
// Машина состояний: Pending → Running → {Success | Failed | Cancelled}.
// План резолвится и контекст собирается до Running; ValidationError
// отклоняет запуск до публикации каких-либо событий. На любом
// терминальном переходе запись запуска финализируется, событие end
// публикуется, рабочая директория освобождается (кроме KeepWorkDir).
//
// Возвращает RunOutcome всегда, когда запуск дошёл до Running;
// err не nil при fail (StepError с именем упавшего шага) и при
// cancelled (ErrRunCancelled).
func (o *Orchestrator) Execute(ctx context.Context, p *domain.Pipeline, inputs map[string]any) (*RunOutcome, error) {
	plan, err := engine.Resolve(p.Steps)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	runID := NewRunID()
	logger := telemetry.WithRunID(telemetry.WithPipelineID(o.logger, p.ID), runID)

	rc, teardown, err := o.builder.Build(ctx, p, runID, inputs)
	if err != nil {
		return nil, fmt.Errorf("build run context: %w", err)
	}

	if err := o.addActive(p.ID, &activeRun{runID: runID, rc: rc}); err != nil {
		teardown()
		return nil, err
	}
	defer o.removeActive(p.ID)
	defer teardown()

	rc.SetLogSink(func(msg string, ts time.Time) {
		o.bus.Publish(bus.Event{
			Kind:       bus.KindLog,
			PipelineID: p.ID,
			Payload: map[string]any{
				"runId": runID,
				"msg":   msg,
				"ts":    ts.UnixMilli(),
			},
		})
	})

	recordID, err := o.history.StartRun(ctx, p.ID, runID)
	if err != nil {
		return nil, fmt.Errorf("start run record: %w", err)
	}

	totalSteps := plan.TotalSteps()
	logger.Info("run started",
		"stages", len(plan.Stages),
		"steps", totalSteps,
	)
	o.bus.Publish(bus.Event{
		Kind:       bus.KindStart,
		PipelineID: p.ID,
		Payload: map[string]any{
			"runId":      runID,
			"totalSteps": totalSteps,
		},
	})

	status, firstErr := o.runStages(rc, recordID, plan, logger)

	duration := time.Since(rc.StartedAt)

	// Финализация записи не зависит от отмены: ни один запуск
	// не остаётся висеть в running из-за отменённого контекста.
	if err := o.history.FinishRun(context.WithoutCancel(ctx), recordID, status, rc.LogText(), duration); err != nil {
		logger.Error("failed to finalize run record", "error", err)
	}

	telemetry.RunsTotal.WithLabelValues(string(status)).Inc()
	telemetry.RunDuration.Observe(duration.Seconds())

	o.bus.Publish(bus.Event{
		Kind:       bus.KindEnd,
		PipelineID: p.ID,
		Payload: map[string]any{
			"runId":   runID,
			"success": status == domain.RunStatusSuccess,
		},
	})

	logger.Info("run finished",
		"status", status,
		"duration", duration,
	)

	outcome := &RunOutcome{
		Success:  status == domain.RunStatusSuccess,
		Duration: duration,
		RunID:    runID,
		WorkDir:  rc.WorkDir,
	}

	switch status {
	case domain.RunStatusCancelled:
		return outcome, ErrRunCancelled
	case domain.RunStatusFail:
		return outcome, firstErr
	default:
		return outcome, nil
	}
}

// runStages выполняет стадии плана по порядку.
// Возвращает терминальный статус запуска и первую ошибку шага.
func (o *Orchestrator) runStages(rc *runctx.RunContext, recordID int64, plan *engine.ExecutionPlan, logger *slog.Logger) (domain.RunStatus, error) {
	totalSteps := plan.TotalSteps()
	baseIndex := 0

	for i := range plan.Stages {
		stage := &plan.Stages[i]

		if rc.Cancelled() {
			return domain.RunStatusCancelled, nil
		}

		stageErr := o.runStage(rc, recordID, stage, baseIndex, totalSteps, logger)
		baseIndex += len(stage.Steps)

		if stageErr != nil {
			// Отмена отличается от падения шага: run финализируется
			// как cancelled, не fail.
			if rc.Cancelled() || errors.Is(stageErr, module.ErrCancelled) {
				return domain.RunStatusCancelled, nil
			}
			return domain.RunStatusFail, stageErr
		}
	}

	if rc.Cancelled() {
		return domain.RunStatusCancelled, nil
	}
	return domain.RunStatusSuccess, nil
}

// runStage конкурентно выполняет все шаги стадии и ждёт их
// завершения. Шаги стартуют в порядке объявления; порядок
// завершения не определён. Возвращает ошибку первого (в порядке
// запуска) упавшего шага — соседи по стадии при этом дорабатывают,
// их результаты записываются.
func (o *Orchestrator) runStage(rc *runctx.RunContext, recordID int64, stage *engine.Stage, baseIndex, totalSteps int, logger *slog.Logger) error {
	if len(stage.Steps) == 1 {
		return o.runStep(rc, recordID, &stage.Steps[0], baseIndex, totalSteps, logger)
	}

	errs := make([]error, len(stage.Steps))
	var wg sync.WaitGroup

	for i := range stage.Steps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = o.runStep(rc, recordID, &stage.Steps[i], baseIndex+i, totalSteps, logger)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runStep выполняет один шаг: запись старта, событие step-start,
// загрузка и вызов модуля, запись финиша, событие step-end, и для
// успешного шага — запись результата под его именем (write-once).
func (o *Orchestrator) runStep(rc *runctx.RunContext, recordID int64, step *domain.Step, stepIndex, totalSteps int, logger *slog.Logger) error {
	stepLogger := telemetry.WithStepName(logger, step.Name)
	// Модули достают логгер шага из контекста через
	// telemetry.FromContext.
	ctx := telemetry.WithLogger(rc.Context(), stepLogger)
	startedAt := time.Now()

	stepRecordID, err := o.history.StartStep(ctx, recordID, step.Name, step.Module)
	if err != nil {
		// Сбой записи истории не роняет запуск.
		stepLogger.Error("failed to record step start", "error", err)
	}

	stepLogger.Debug("step started", "module", step.Module)
	o.bus.Publish(bus.Event{
		Kind:       bus.KindStepStart,
		PipelineID: rc.PipelineID,
		Payload: map[string]any{
			"runId": rc.RunID,
			"step":  step.Name,
		},
	})

	result, runErr := o.invoke(ctx, rc, step)

	stepStatus := domain.StepStatusSuccess
	errText := ""
	if runErr != nil {
		stepStatus = domain.StepStatusFail
		errText = runErr.Error()
	}

	if stepRecordID != 0 {
		if err := o.history.FinishStep(context.WithoutCancel(ctx), stepRecordID, stepStatus, result, errText); err != nil {
			stepLogger.Error("failed to finalize step record", "error", err)
		}
	}

	telemetry.StepsTotal.WithLabelValues(step.Module, string(stepStatus)).Inc()
	telemetry.StepDuration.WithLabelValues(step.Module).Observe(time.Since(startedAt).Seconds())

	payload := map[string]any{
		"runId":      rc.RunID,
		"step":       step.Name,
		"stepIndex":  stepIndex,
		"totalSteps": totalSteps,
		"success":    runErr == nil,
	}
	if errText != "" {
		payload["error"] = errText
	}
	o.bus.Publish(bus.Event{
		Kind:       bus.KindStepEnd,
		PipelineID: rc.PipelineID,
		Payload:    payload,
	})

	if runErr != nil {
		stepLogger.Warn("step failed", "error", runErr)
		return &StepError{Step: step.Name, Err: runErr}
	}

	if err := rc.SetResult(step.Name, result); err != nil {
		return &StepError{Step: step.Name, Err: err}
	}

	stepLogger.Debug("step finished", "duration", time.Since(startedAt))
	return nil
}

// invoke загружает модуль шага и выполняет его.
// ErrModuleNotFound и ErrModuleLoad роняют только этот шаг.
func (o *Orchestrator) invoke(ctx context.Context, rc *runctx.RunContext, step *domain.Step) (any, error) {
	mod, err := o.loader.Load(step.Module)
	if err != nil {
		return nil, err
	}

	params := runctx.ExpandParams(step.Params, rc.Env)
	return mod.Run(ctx, rc, params)
}

// addActive регистрирует запуск в полёте.
func (o *Orchestrator) addActive(pipelineID string, run *activeRun) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[pipelineID]; exists {
		return fmt.Errorf("%w: %s", ErrRunAlreadyActive, pipelineID)
	}
	o.active[pipelineID] = run
	return nil
}

// removeActive снимает запуск с учёта.
func (o *Orchestrator) removeActive(pipelineID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, pipelineID)
}
