package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const (
	// ModuleShell — имя shell модуля.
	ModuleShell = "shell"

	defaultShellTimeout = 10 * time.Minute
	maxShellOutput      = 1 * 1024 * 1024 // 1 MB
)

// ShellModule — модуль выполнения shell-команды.
//
// Команда выполняется через `sh -c` в рабочей директории запуска,
// окружение запуска доступно как переменные окружения процесса.
//
// Параметры:
//
//	command:     строка команды (обязательный)
//	env:         дополнительные переменные окружения
//	timeout_sec: таймаут выполнения (по умолчанию 10 минут)
//
// Результат:
//
//	{"output": "...", "exit_code": 0}
type ShellModule struct{}

// NewShellModule создаёт новый ShellModule.
func NewShellModule() *ShellModule {
	return &ShellModule{}
}

// Name возвращает имя модуля.
func (m *ShellModule) Name() string {
	return ModuleShell
}

// Run выполняет команду.
func (m *ShellModule) Run(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	command := ParamString(params, "command")
	if command == "" {
		return nil, fmt.Errorf("%w: %s: command is required", module.ErrInvalidParams, ModuleShell)
	}

	timeout := defaultShellTimeout
	if sec := ParamInt(params, "timeout_sec"); sec > 0 {
		timeout = time.Duration(sec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = rc.WorkDir
	cmd.Env = m.buildEnv(rc, params)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	rc.Logf("shell: %s", command)

	startedAt := time.Now()
	err := cmd.Run()
	output := truncate(out.String(), maxShellOutput)

	// ProcessState пуст, если процесс не стартовал.
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	telemetry.FromContext(ctx).Debug("command finished",
		"exit_code", exitCode,
		"duration", time.Since(startedAt),
	)

	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, fmt.Errorf("%w: %v", module.ErrCancelled, ctx.Err())
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("command exited with code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(output))
		}
		return nil, fmt.Errorf("run command: %w", err)
	}

	return map[string]any{
		"output":    output,
		"exit_code": 0,
	}, nil
}

// buildEnv сливает окружение процесса: ОС < запуск < параметры шага.
func (m *ShellModule) buildEnv(rc *runctx.RunContext, params map[string]any) []string {
	env := os.Environ()
	for k, v := range rc.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range ParamStringMap(params, "env") {
		env = append(env, k+"="+v)
	}
	return env
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
