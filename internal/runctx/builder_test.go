package runctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// fakeVars — тестовый источник переменных.
type fakeVars struct {
	global map[string]string
	envs   map[string]map[string]string
}

func (f *fakeVars) GlobalVariables() map[string]string {
	return f.global
}

func (f *fakeVars) EnvironmentVariables(name string) (map[string]string, error) {
	set, ok := f.envs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnvSet, name)
	}
	return set, nil
}

func newTestBuilder(t *testing.T, vars VariableSource) *Builder {
	t.Helper()
	return NewBuilder(Config{
		BaseDir: t.TempDir(),
		Vars:    vars,
	})
}

func TestBuild_EnvMergePrecedence(t *testing.T) {
	vars := &fakeVars{
		global: map[string]string{"A": "global", "B": "global", "C": "global"},
		envs: map[string]map[string]string{
			"staging": {"B": "env", "C": "env"},
		},
	}

	b := newTestBuilder(t, vars)
	p := &domain.Pipeline{ID: "p1", Env: "staging"}

	rc, cleanup, err := b.Build(context.Background(), p, "run-1", map[string]any{"C": "input"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	// Глобальные < набор окружения < входные параметры.
	if rc.Env["A"] != "global" {
		t.Errorf("A: expected global, got %q", rc.Env["A"])
	}
	if rc.Env["B"] != "env" {
		t.Errorf("B: expected env, got %q", rc.Env["B"])
	}
	if rc.Env["C"] != "input" {
		t.Errorf("C: expected input, got %q", rc.Env["C"])
	}
}

func TestBuild_UnknownEnvSet(t *testing.T) {
	b := newTestBuilder(t, &fakeVars{})
	p := &domain.Pipeline{ID: "p1", Env: "nope"}

	_, _, err := b.Build(context.Background(), p, "run-1", nil)
	if !errors.Is(err, ErrUnknownEnvSet) {
		t.Errorf("expected ErrUnknownEnvSet, got %v", err)
	}
}

func TestBuild_RequiredInput(t *testing.T) {
	b := newTestBuilder(t, nil)
	p := &domain.Pipeline{
		ID: "p1",
		Inputs: map[string]domain.InputDef{
			"target": {Type: "string", Required: true},
		},
	}

	_, _, err := b.Build(context.Background(), p, "run-1", nil)
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestBuild_InputTypeMismatch(t *testing.T) {
	b := newTestBuilder(t, nil)
	p := &domain.Pipeline{
		ID: "p1",
		Inputs: map[string]domain.InputDef{
			"replicas": {Type: "number"},
		},
	}

	_, _, err := b.Build(context.Background(), p, "run-1", map[string]any{"replicas": "many"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuild_InputCoercion(t *testing.T) {
	b := newTestBuilder(t, nil)
	p := &domain.Pipeline{
		ID: "p1",
		Inputs: map[string]domain.InputDef{
			"replicas": {Type: "number"},
			"dry_run":  {Type: "boolean"},
			"target":   {Type: "string"},
		},
	}

	inputs := map[string]any{
		"replicas": "3",
		"dry_run":  "true",
		"target":   "staging",
	}
	rc, cleanup, err := b.Build(context.Background(), p, "run-1", inputs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if rc.Env["replicas"] != "3" {
		t.Errorf("replicas: expected 3, got %q", rc.Env["replicas"])
	}
	if rc.Env["dry_run"] != "true" {
		t.Errorf("dry_run: expected true, got %q", rc.Env["dry_run"])
	}
	if rc.Env["target"] != "staging" {
		t.Errorf("target: expected staging, got %q", rc.Env["target"])
	}
}

func TestBuild_InputDefault(t *testing.T) {
	b := newTestBuilder(t, nil)
	p := &domain.Pipeline{
		ID: "p1",
		Inputs: map[string]domain.InputDef{
			"region": {Type: "string", Default: "eu-west-1"},
		},
	}

	rc, cleanup, err := b.Build(context.Background(), p, "run-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if rc.Env["region"] != "eu-west-1" {
		t.Errorf("expected default in env, got %q", rc.Env["region"])
	}
}

func TestBuild_WorkDirCleanup(t *testing.T) {
	b := newTestBuilder(t, nil)
	p := &domain.Pipeline{ID: "p1"}

	rc, cleanup, err := b.Build(context.Background(), p, "run-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(rc.WorkDir); err != nil {
		t.Fatalf("work dir should exist: %v", err)
	}

	cleanup()

	if _, err := os.Stat(rc.WorkDir); !os.IsNotExist(err) {
		t.Error("work dir should be removed after cleanup")
	}
}

func TestBuild_KeepWorkDir(t *testing.T) {
	base := t.TempDir()
	b := NewBuilder(Config{BaseDir: base})
	p := &domain.Pipeline{ID: "p1", KeepWorkDir: true}

	rc, cleanup, err := b.Build(context.Background(), p, "run-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	marker := filepath.Join(rc.WorkDir, "marker")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cleanup()

	if _, err := os.Stat(marker); err != nil {
		t.Error("keepWorkDir directory should survive cleanup")
	}

	// Повторный запуск переиспользует ту же директорию.
	rc2, cleanup2, err := b.Build(context.Background(), p, "run-2", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup2()

	if rc2.WorkDir != rc.WorkDir {
		t.Errorf("expected reused work dir, got %q and %q", rc.WorkDir, rc2.WorkDir)
	}
}

func TestRunContext_ResultsWriteOnce(t *testing.T) {
	b := newTestBuilder(t, nil)
	rc, cleanup, err := b.Build(context.Background(), &domain.Pipeline{ID: "p1"}, "run-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if err := rc.SetResult("a", 42); err != nil {
		t.Fatalf("first write should succeed: %v", err)
	}
	if err := rc.SetResult("a", 43); !errors.Is(err, ErrResultExists) {
		t.Errorf("expected ErrResultExists, got %v", err)
	}

	got, ok := rc.Result("a")
	if !ok || got != 42 {
		t.Errorf("expected 42, got %v", got)
	}
	if _, ok := rc.Result("never-ran"); ok {
		t.Error("result for step that never ran should be absent")
	}
}

func TestRunContext_Cancel(t *testing.T) {
	b := newTestBuilder(t, nil)
	rc, cleanup, err := b.Build(context.Background(), &domain.Pipeline{ID: "p1"}, "run-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if rc.Cancelled() {
		t.Fatal("fresh context should not be cancelled")
	}

	rc.Cancel()

	if !rc.Cancelled() {
		t.Error("context should be cancelled")
	}
	select {
	case <-rc.Context().Done():
	default:
		t.Error("Context().Done() should be closed")
	}
}

func TestRunContext_Log(t *testing.T) {
	b := newTestBuilder(t, nil)
	rc, cleanup, err := b.Build(context.Background(), &domain.Pipeline{ID: "p1"}, "run-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	var sunk []string
	rc.SetLogSink(func(msg string, _ time.Time) {
		sunk = append(sunk, msg)
	})

	rc.Log("hello")
	rc.Logf("step %s done", "a")

	if len(sunk) != 2 || sunk[0] != "hello" || sunk[1] != "step a done" {
		t.Errorf("unexpected sink messages: %v", sunk)
	}
	if !strings.Contains(rc.LogText(), "hello") || !strings.Contains(rc.LogText(), "step a done") {
		t.Errorf("log text should accumulate messages, got %q", rc.LogText())
	}
}

func TestExpandParams(t *testing.T) {
	env := map[string]string{"HOST": "db.local", "PORT": "5432"}

	params := map[string]any{
		"url":   "postgres://${HOST}:${PORT}/app",
		"count": 3,
		"nested": map[string]any{
			"host": "$HOST",
		},
		"list":    []any{"${HOST}", 1},
		"unknown": "${NOPE}",
	}

	got := ExpandParams(params, env)

	if got["url"] != "postgres://db.local:5432/app" {
		t.Errorf("url: got %q", got["url"])
	}
	if got["count"] != 3 {
		t.Errorf("count should pass through, got %v", got["count"])
	}
	if got["nested"].(map[string]any)["host"] != "db.local" {
		t.Errorf("nested: got %v", got["nested"])
	}
	if got["list"].([]any)[0] != "db.local" {
		t.Errorf("list: got %v", got["list"])
	}
	if got["unknown"] != "" {
		t.Errorf("unknown names expand to empty string, got %q", got["unknown"])
	}
}
