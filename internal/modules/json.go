package modules

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Conveyor/internal/module"
	"github.com/shaiso/Conveyor/internal/runctx"
)

// ModuleJSON — имя json модуля.
const ModuleJSON = "json"

// JSONModule — модуль выборки из результата предыдущего шага.
//
// Параметры:
//
//	from: имя шага, чей результат читается (обязательный)
//	path: путь через точку, например "body.items.0.id"
//	      (пустой путь возвращает результат целиком)
//
// Элемент пути — ключ map или индекс слайса.
type JSONModule struct{}

// NewJSONModule создаёт новый JSONModule.
func NewJSONModule() *JSONModule {
	return &JSONModule{}
}

// Name возвращает имя модуля.
func (m *JSONModule) Name() string {
	return ModuleJSON
}

// Run извлекает значение по пути.
func (m *JSONModule) Run(_ context.Context, rc *runctx.RunContext, params map[string]any) (any, error) {
	from := ParamString(params, "from")
	if from == "" {
		return nil, fmt.Errorf("%w: %s: from is required", module.ErrInvalidParams, ModuleJSON)
	}

	result, ok := rc.Result(from)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no result for step %q", module.ErrInvalidParams, ModuleJSON, from)
	}

	path := ParamString(params, "path")
	if path == "" {
		return result, nil
	}

	value, err := lookupPath(result, path)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", from, err)
	}
	return value, nil
}

// lookupPath проходит по значению по сегментам пути.
func lookupPath(value any, path string) (any, error) {
	current := value
	for _, seg := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("path %q: key %q not found", path, seg)
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("path %q: %q is not an index", path, seg)
			}
			if idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("path %q: index %d out of range", path, idx)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("path %q: cannot descend into %T at %q", path, current, seg)
		}
	}
	return current, nil
}
