package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/bus"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// --- Фейки портов ---

// fakeHistory — in-memory запись истории для тестов.
type fakeHistory struct {
	mu      sync.Mutex
	nextID  int64
	runs    map[int64]*domain.Run
	steps   map[int64]*domain.StepRecord
	stepLog []string // имена шагов в порядке StartStep
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		runs:  make(map[int64]*domain.Run),
		steps: make(map[int64]*domain.StepRecord),
	}
}

func (h *fakeHistory) StartRun(_ context.Context, pipelineID, runID string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.runs[h.nextID] = &domain.Run{
		ID:         h.nextID,
		PipelineID: pipelineID,
		RunID:      runID,
		Status:     domain.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	return h.nextID, nil
}

func (h *fakeHistory) FinishRun(_ context.Context, recordID int64, status domain.RunStatus, logText string, duration time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	run, ok := h.runs[recordID]
	if !ok {
		return fmt.Errorf("run record %d not found", recordID)
	}
	run.Status = status
	run.Log = logText
	run.DurationMs = duration.Milliseconds()
	return nil
}

func (h *fakeHistory) StartStep(_ context.Context, recordID int64, stepName, moduleName string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.steps[h.nextID] = &domain.StepRecord{
		ID:       h.nextID,
		RunID:    recordID,
		StepName: stepName,
		Module:   moduleName,
		Status:   domain.StepStatusRunning,
	}
	h.stepLog = append(h.stepLog, stepName)
	return h.nextID, nil
}

func (h *fakeHistory) FinishStep(_ context.Context, stepRecordID int64, status domain.StepStatus, _ any, errText string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.steps[stepRecordID]
	if !ok {
		return fmt.Errorf("step record %d not found", stepRecordID)
	}
	rec.Status = status
	rec.Error = errText
	return nil
}

func (h *fakeHistory) stepRecord(name string) *domain.StepRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.steps {
		if rec.StepName == name {
			return rec
		}
	}
	return nil
}

func (h *fakeHistory) singleRun(t *testing.T) *domain.Run {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.runs) != 1 {
		t.Fatalf("expected exactly 1 run record, got %d", len(h.runs))
	}
	for _, run := range h.runs {
		return run
	}
	return nil
}

// funcModule — тестовый модуль из функции.
type funcModule struct {
	name string
	fn   func(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error)
}

func (m *funcModule) Name() string { return m.name }

func (m *funcModule) Run(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	return m.fn(ctx, rc, params)
}

func okModule(name string, result any) module.Module {
	return &funcModule{name: name, fn: func(context.Context, *runctx.RunContext, map[string]any) (any, error) {
		return result, nil
	}}
}

// eventRecorder собирает события шины потокобезопасно.
type eventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *eventRecorder) record(e bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []bus.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]bus.Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// testEnv — собранный оркестратор с фейками.
type testEnv struct {
	orch    *Orchestrator
	history *fakeHistory
	reg     *module.Registry
	events  *eventRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	history := newFakeHistory()
	reg := module.NewRegistry()
	b := bus.New(nil)
	rec := &eventRecorder{}
	b.Subscribe(rec.record)

	orch := New(Config{
		History: history,
		Loader:  reg,
		Builder: runctx.NewBuilder(runctx.Config{BaseDir: t.TempDir()}),
		Bus:     b,
	})

	return &testEnv{orch: orch, history: history, reg: reg, events: rec}
}

func pipelineOf(items ...domain.StepItem) *domain.Pipeline {
	return &domain.Pipeline{ID: "test-pipeline", Name: "Test", Steps: items}
}

func single(name, mod string, deps ...string) domain.StepItem {
	return domain.StepItem{Step: &domain.Step{Name: name, Module: mod, DependsOn: deps}}
}

// --- Тесты ---

func TestExecute_Success(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(okModule("git", "cloned"))
	env.reg.Register(okModule("shell", 0))

	p := pipelineOf(
		single("checkout", "git"),
		single("build", "shell", "checkout"),
	)

	outcome, err := env.orch.Execute(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !outcome.Success {
		t.Error("outcome should be successful")
	}
	if outcome.RunID == "" {
		t.Error("outcome should carry run ID")
	}

	run := env.history.singleRun(t)
	if run.Status != domain.RunStatusSuccess {
		t.Errorf("expected success status, got %s", run.Status)
	}

	// Ровно одна запись результата на успешно завершённый шаг.
	for _, step := range []string{"checkout", "build"} {
		rec := env.history.stepRecord(step)
		if rec == nil {
			t.Fatalf("step record for %s should exist", step)
		}
		if rec.Status != domain.StepStatusSuccess {
			t.Errorf("step %s: expected success, got %s", step, rec.Status)
		}
	}

	wantKinds := []bus.Kind{bus.KindStart, bus.KindStepStart, bus.KindStepEnd, bus.KindStepStart, bus.KindStepEnd, bus.KindEnd}
	got := env.events.kinds()
	if len(got) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d: %v", len(wantKinds), len(got), got)
	}
	for i := range wantKinds {
		if got[i] != wantKinds[i] {
			t.Errorf("event %d: expected %s, got %s", i, wantKinds[i], got[i])
		}
	}
}

func TestExecute_StepLoggerInContext(t *testing.T) {
	env := newTestEnv(t)

	var got *slog.Logger
	env.reg.Register(&funcModule{name: "shell", fn: func(ctx context.Context, _ *runctx.RunContext, _ map[string]any) (any, error) {
		got = telemetry.FromContext(ctx)
		return nil, nil
	}})

	p := pipelineOf(single("build", "shell"))
	if _, err := env.orch.Execute(context.Background(), p, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Модуль получает логгер шага, а не глобальный по умолчанию.
	if got == nil || got == slog.Default() {
		t.Error("module should see the step logger in its context")
	}
}

func TestExecute_FailureStopsLaterStages(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(&funcModule{name: "broken", fn: func(context.Context, *runctx.RunContext, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}})
	env.reg.Register(okModule("shell", "ok"))

	p := pipelineOf(
		single("a", "broken"),
		single("b", "shell", "a"),
	)

	outcome, err := env.orch.Execute(context.Background(), p, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if outcome == nil || outcome.Success {
		t.Error("outcome should report failure")
	}

	// Ошибка называет упавший шаг.
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Step != "a" {
		t.Errorf("error should reference step a, got %q", stepErr.Step)
	}

	run := env.history.singleRun(t)
	if run.Status != domain.RunStatusFail {
		t.Errorf("expected fail status, got %s", run.Status)
	}

	// b не стартовал: записи шага нет.
	if env.history.stepRecord("b") != nil {
		t.Error("step b should never start after stage failure")
	}
}

func TestExecute_ParallelStage(t *testing.T) {
	env := newTestEnv(t)

	// Оба шага должны быть в полёте одновременно: каждый ждёт
	// старта другого.
	cStarted := make(chan struct{})
	dStarted := make(chan struct{})

	env.reg.Register(&funcModule{name: "modc", fn: func(ctx context.Context, _ *runctx.RunContext, _ map[string]any) (any, error) {
		close(cStarted)
		select {
		case <-dStarted:
			return "c-done", nil
		case <-time.After(5 * time.Second):
			return nil, errors.New("d never started")
		}
	}})
	env.reg.Register(&funcModule{name: "modd", fn: func(ctx context.Context, _ *runctx.RunContext, _ map[string]any) (any, error) {
		close(dStarted)
		select {
		case <-cStarted:
			return "d-done", nil
		case <-time.After(5 * time.Second):
			return nil, errors.New("c never started")
		}
	}})

	p := pipelineOf(domain.StepItem{Parallel: []domain.Step{
		{Name: "c", Module: "modc"},
		{Name: "d", Module: "modd"},
	}})

	outcome, err := env.orch.Execute(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Success {
		t.Error("parallel stage should succeed")
	}

	// Оба step-start опубликованы до любого step-end.
	kinds := env.events.kinds()
	firstEnd := -1
	starts := 0
	for i, k := range kinds {
		if k == bus.KindStepEnd && firstEnd == -1 {
			firstEnd = i
		}
		if k == bus.KindStepStart && firstEnd == -1 {
			starts++
		}
	}
	if starts != 2 {
		t.Errorf("expected both step-start events before any step-end, got %v", kinds)
	}
}

func TestExecute_ParallelSiblingFinishesAfterFailure(t *testing.T) {
	env := newTestEnv(t)

	siblingDone := make(chan struct{})
	env.reg.Register(&funcModule{name: "failing", fn: func(context.Context, *runctx.RunContext, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}})
	env.reg.Register(&funcModule{name: "slow", fn: func(context.Context, *runctx.RunContext, map[string]any) (any, error) {
		defer close(siblingDone)
		time.Sleep(50 * time.Millisecond)
		return "slow-result", nil
	}})

	p := pipelineOf(
		domain.StepItem{Parallel: []domain.Step{
			{Name: "bad", Module: "failing"},
			{Name: "good", Module: "slow"},
		}},
		single("after", "slow"),
	)

	_, err := env.orch.Execute(context.Background(), p, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	// Сосед по стадии доработал, его результат записан.
	select {
	case <-siblingDone:
	default:
		t.Error("sibling should have finished before run finalization")
	}
	rec := env.history.stepRecord("good")
	if rec == nil || rec.Status != domain.StepStatusSuccess {
		t.Error("sibling result should be recorded")
	}

	// Следующая стадия не стартовала.
	if env.history.stepRecord("after") != nil {
		t.Error("next stage should not start after failure")
	}
}

func TestExecute_ModuleNotFound(t *testing.T) {
	env := newTestEnv(t)

	p := pipelineOf(single("a", "missing-module"))

	_, err := env.orch.Execute(context.Background(), p, nil)
	if !errors.Is(err, module.ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "a" {
		t.Errorf("module errors fail the owning step, got %v", err)
	}

	run := env.history.singleRun(t)
	if run.Status != domain.RunStatusFail {
		t.Errorf("expected fail status, got %s", run.Status)
	}
}

func TestExecute_ValidationErrorBeforeAnyEvent(t *testing.T) {
	env := newTestEnv(t)

	p := pipelineOf(single("a", "shell", "nope"))

	_, err := env.orch.Execute(context.Background(), p, nil)
	if !errors.Is(err, engine.ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}

	if len(env.events.kinds()) != 0 {
		t.Errorf("no events should be published for invalid pipeline, got %v", env.events.kinds())
	}
	if len(env.history.runs) != 0 {
		t.Error("no run record should be created for invalid pipeline")
	}
}

func TestExecute_StopPipelineCancelsRun(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{})
	env.reg.Register(&funcModule{name: "blocking", fn: func(ctx context.Context, _ *runctx.RunContext, _ map[string]any) (any, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", module.ErrCancelled, ctx.Err())
		case <-time.After(5 * time.Second):
			return "never", nil
		}
	}})

	p := pipelineOf(
		single("long", "blocking"),
		single("after", "blocking"),
	)

	type result struct {
		outcome *RunOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := env.orch.Execute(context.Background(), p, nil)
		done <- result{outcome, err}
	}()

	<-started
	if err := env.orch.StopPipeline("test-pipeline"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	res := <-done
	if !errors.Is(res.err, ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", res.err)
	}

	// Статус cancelled, не fail.
	run := env.history.singleRun(t)
	if run.Status != domain.RunStatusCancelled {
		t.Errorf("expected cancelled status, got %s", run.Status)
	}

	// Следующая стадия не стартовала.
	if env.history.stepRecord("after") != nil {
		t.Error("no stage should start after cancellation")
	}

	// После завершения запуск снят с учёта.
	if err := env.orch.StopPipeline("test-pipeline"); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("expected ErrNoActiveRun after run finished, got %v", err)
	}
}

func TestExecute_SecondRunOfSamePipelineRejected(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{})
	release := make(chan struct{})
	env.reg.Register(&funcModule{name: "gate", fn: func(ctx context.Context, _ *runctx.RunContext, _ map[string]any) (any, error) {
		close(started)
		<-release
		return nil, nil
	}})

	p := pipelineOf(single("a", "gate"))

	go func() {
		_, _ = env.orch.Execute(context.Background(), p, nil)
	}()
	<-started

	_, err := env.orch.Execute(context.Background(), p, nil)
	if !errors.Is(err, ErrRunAlreadyActive) {
		t.Errorf("expected ErrRunAlreadyActive, got %v", err)
	}
	close(release)
}

func TestExecute_ResultsVisibleToLaterSteps(t *testing.T) {
	env := newTestEnv(t)
	env.reg.Register(okModule("producer", map[string]any{"version": "1.2.3"}))

	var seen any
	env.reg.Register(&funcModule{name: "consumer", fn: func(_ context.Context, rc *runctx.RunContext, _ map[string]any) (any, error) {
		seen, _ = rc.Result("first")
		return nil, nil
	}})

	p := pipelineOf(
		single("first", "producer"),
		single("second", "consumer", "first"),
	)

	if _, err := env.orch.Execute(context.Background(), p, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, ok := seen.(map[string]any)
	if !ok || m["version"] != "1.2.3" {
		t.Errorf("later step should see earlier result, got %v", seen)
	}
}

func TestRunPipeline_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.orch.source = sourceFunc(func(context.Context, string) (*domain.Pipeline, error) {
		return nil, nil
	})

	_, err := env.orch.RunPipeline(context.Background(), "ghost", nil)
	if !errors.Is(err, ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

// sourceFunc — PipelineSource из одной функции загрузки.
type sourceFunc func(ctx context.Context, id string) (*domain.Pipeline, error)

func (f sourceFunc) ListPipelines(context.Context) ([]domain.Pipeline, error) { return nil, nil }

func (f sourceFunc) LoadPipeline(ctx context.Context, id string) (*domain.Pipeline, error) {
	return f(ctx, id)
}

func TestNewRunID_MonotonicIsh(t *testing.T) {
	a := NewRunID()
	time.Sleep(2 * time.Millisecond)
	b := NewRunID()

	if a == b {
		t.Error("run IDs should be unique")
	}
	if !(a < b) {
		t.Errorf("run IDs should sort by start time: %s vs %s", a, b)
	}
}
