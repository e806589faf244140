package runctx

import "errors"

// Ошибки контекста выполнения.
var (
	// ErrResultExists — результат с таким именем шага уже записан.
	// Результаты write-once: шаг не может перезаписать чужой ключ.
	ErrResultExists = errors.New("step result already recorded")

	// ErrMissingInput — обязательный входной параметр не передан.
	ErrMissingInput = errors.New("required input missing")

	// ErrInvalidInput — значение входного параметра не соответствует
	// объявленному типу.
	ErrInvalidInput = errors.New("invalid input value")

	// ErrUnknownEnvSet — пайплайн ссылается на несуществующий
	// набор переменных окружения.
	ErrUnknownEnvSet = errors.New("unknown environment set")
)
