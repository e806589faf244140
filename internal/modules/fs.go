package modules

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// ModuleFS — имя fs модуля.
const ModuleFS = "fs"

// FSModule — модуль файловых операций внутри рабочей директории.
//
// Пути относительные и разрешаются от WorkDir запуска; выход за её
// пределы (".." и абсолютные пути) отклоняется.
//
// Параметры:
//
//	op:      read | write | copy | mkdir (обязательный)
//	path:    путь (обязательный)
//	dest:    путь назначения (copy)
//	content: содержимое (write)
//
// Результат read: {"content": "..."},
// остальных операций: {"path": "..."}.
type FSModule struct{}

// NewFSModule создаёт новый FSModule.
func NewFSModule() *FSModule {
	return &FSModule{}
}

// Name возвращает имя модуля.
func (m *FSModule) Name() string {
	return ModuleFS
}

// Run выполняет файловую операцию.
func (m *FSModule) Run(_ context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	op := ParamString(params, "op")
	path := ParamString(params, "path")
	if op == "" || path == "" {
		return nil, fmt.Errorf("%w: %s: op and path are required", module.ErrInvalidParams, ModuleFS)
	}

	abs, err := resolveInWorkDir(rc.WorkDir, path)
	if err != nil {
		return nil, err
	}

	switch op {
	case "read":
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return map[string]any{"content": string(data)}, nil

	case "write":
		content := ParamString(params, "content")
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		return map[string]any{"path": path}, nil

	case "copy":
		dest := ParamString(params, "dest")
		if dest == "" {
			return nil, fmt.Errorf("%w: %s: dest is required for copy", module.ErrInvalidParams, ModuleFS)
		}
		absDest, err := resolveInWorkDir(rc.WorkDir, dest)
		if err != nil {
			return nil, err
		}
		if err := copyFile(abs, absDest); err != nil {
			return nil, fmt.Errorf("copy %s to %s: %w", path, dest, err)
		}
		return map[string]any{"path": dest}, nil

	case "mkdir":
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", path, err)
		}
		return map[string]any{"path": path}, nil

	default:
		return nil, fmt.Errorf("%w: %s: unknown op %q", module.ErrInvalidParams, ModuleFS, op)
	}
}

// resolveInWorkDir разрешает относительный путь внутри workDir.
func resolveInWorkDir(workDir, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s: absolute path %q not allowed", module.ErrInvalidParams, ModuleFS, path)
	}
	abs := filepath.Join(workDir, path)
	rel, err := filepath.Rel(workDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s: path %q escapes work dir", module.ErrInvalidParams, ModuleFS, path)
	}
	return abs, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
