package runctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// VariableSource — источник переменных для окружения запуска.
// Реализуется хранилищем определений (internal/store).
type VariableSource interface {
	// GlobalVariables возвращает глобальные переменные.
	GlobalVariables() map[string]string

	// EnvironmentVariables возвращает именованный набор переменных.
	// Ошибка, если набор не существует.
	EnvironmentVariables(name string) (map[string]string, error)
}

// Builder собирает RunContext для запуска пайплайна.
type Builder struct {
	baseDir string
	vars    VariableSource
	logger  *slog.Logger
}

// Config — конфигурация Builder.
type Config struct {
	// BaseDir — корень для рабочих директорий запусков.
	// По умолчанию: <tmp>/conveyor.
	BaseDir string

	// Vars — источник переменных. Может быть nil.
	Vars VariableSource

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// NewBuilder создаёт новый Builder.
func NewBuilder(cfg Config) *Builder {
	baseDir := cfg.BaseDir
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "conveyor")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		baseDir: baseDir,
		vars:    cfg.Vars,
		logger:  logger,
	}
}

// Build собирает RunContext для одного запуска.
//
// Выделяет рабочую директорию (свежую на запуск; при KeepWorkDir —
// переиспользуемую и никогда не удаляемую автоматически), сливает
// окружение (глобальные переменные < набор окружения < входные
// параметры) и создаёт токен отмены, привязанный только к этому
// запуску.
//
// Возвращает teardown-функцию, освобождающую директорию. Вызывающий
// обязан выполнить её на каждом пути выхода: успех, ошибка, отмена.
func (b *Builder) Build(parent context.Context, p *domain.Pipeline, runID string, inputs map[string]any) (*RunContext, func(), error) {
	resolved, err := resolveInputs(p.Inputs, inputs)
	if err != nil {
		return nil, nil, err
	}

	env, err := b.mergeEnv(p, resolved)
	if err != nil {
		return nil, nil, err
	}

	workDir, teardown, err := b.allocateWorkDir(p, runID)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(parent)

	rc := &RunContext{
		RunID:      runID,
		PipelineID: p.ID,
		WorkDir:    workDir,
		Env:        env,
		StartedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		results:    make(map[string]any),
	}

	cleanup := func() {
		cancel()
		teardown()
	}

	return rc, cleanup, nil
}

// SetLogSink устанавливает приёмник лога запуска.
// Вызывается оркестратором до старта первого шага.
func (rc *RunContext) SetLogSink(sink LogSink) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.sink = sink
}

// allocateWorkDir выделяет рабочую директорию запуска.
func (b *Builder) allocateWorkDir(p *domain.Pipeline, runID string) (string, func(), error) {
	if p.KeepWorkDir {
		// Переиспользуемая директория, не удаляется никогда.
		dir := filepath.Join(b.baseDir, p.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create work dir: %w", err)
		}
		return dir, func() {}, nil
	}

	dir := filepath.Join(b.baseDir, p.ID+"-"+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}

	teardown := func() {
		if err := os.RemoveAll(dir); err != nil {
			b.logger.Warn("failed to remove work dir",
				"pipeline_id", p.ID,
				"run_id", runID,
				"dir", dir,
				"error", err,
			)
		}
	}
	return dir, teardown, nil
}

// mergeEnv сливает окружение запуска.
// Поздние источники переопределяют ранние:
// глобальные < набор окружения < входные параметры.
func (b *Builder) mergeEnv(p *domain.Pipeline, inputs map[string]any) (map[string]string, error) {
	env := make(map[string]string)

	if b.vars != nil {
		for k, v := range b.vars.GlobalVariables() {
			env[k] = v
		}

		if p.Env != "" {
			set, err := b.vars.EnvironmentVariables(p.Env)
			if err != nil {
				return nil, fmt.Errorf("environment %q: %w", p.Env, err)
			}
			for k, v := range set {
				env[k] = v
			}
		}
	}

	for k, v := range inputs {
		env[k] = fmt.Sprintf("%v", v)
	}

	return env, nil
}

// resolveInputs валидирует входные параметры и применяет значения
// по умолчанию из определений пайплайна.
func resolveInputs(defs map[string]domain.InputDef, inputs map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(inputs))
	for k, v := range inputs {
		resolved[k] = v
	}

	for name, def := range defs {
		if v, ok := resolved[name]; ok {
			coerced, err := coerceInput(def.Type, v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
			}
			resolved[name] = coerced
			continue
		}
		if def.Default != nil {
			resolved[name] = def.Default
			continue
		}
		if def.Required {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
	}

	return resolved, nil
}

// coerceInput проверяет значение против объявленного типа параметра.
// Строковые значения приводятся к числу и булеву (CLI передаёт все
// входы строками); прочие несоответствия — ошибка.
func coerceInput(typ string, v any) (any, error) {
	switch typ {
	case "", "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)
	case "number":
		switch n := v.(type) {
		case int, int64, float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("expected number, got %q", n)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected number, got %T", v)
	case "boolean":
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", v)
	case "object":
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object, got %T", v)
	default:
		return nil, fmt.Errorf("unknown input type %q", typ)
	}
}
