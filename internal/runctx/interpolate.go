package runctx

import "os"

// ExpandParams выполняет подстановку значений окружения запуска в
// параметры шага. Подстановка распознаёт ${NAME} и $NAME в строковых
// значениях (рекурсивно в map и слайсах); неизвестные имена
// заменяются пустой строкой.
//
// Это простая подстановка значений, не язык шаблонов: выражения,
// условия и вызовы функций не поддерживаются.
func ExpandParams(params map[string]any, env map[string]string) map[string]any {
	if params == nil {
		return nil
	}

	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = expandValue(v, env)
	}
	return out
}

func expandValue(v any, env map[string]string) any {
	switch val := v.(type) {
	case string:
		return os.Expand(val, func(name string) string {
			return env[name]
		})
	case map[string]any:
		return ExpandParams(val, env)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item, env)
		}
		return out
	default:
		return v
	}
}
