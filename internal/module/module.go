// Package module определяет контракт модуля шага и загрузчик,
// разрешающий имя модуля в реализацию.
//
// Движок зависит только от этого контракта: ему безразлично, встроен
// модуль статически или зарегистрирован пользователем через явный
// Reload. Встроенные модули живут в internal/modules.
package module

import (
	"context"

	"github.com/shaiso/Conveyor/internal/runctx"
)

// Module — единица работы пайплайна (shell-команда, HTTP-запрос,
// загрузка в S3 и т.д.).
//
// Модули, выполняющие долгий I/O (процессы, сеть), обязаны
// кооперативно наблюдать ctx и прерывать работу в полёте, возвращая
// ошибку, оборачивающую ErrCancelled, а не общую ошибку I/O.
// Движок не прерывает модуль принудительно: игнорирование ctx —
// нарушение контракта.
type Module interface {
	// Name возвращает имя модуля.
	Name() string

	// Run выполняет шаг и возвращает его результат.
	//
	// rc даёт доступ к рабочей директории, окружению, результатам
	// предыдущих шагов и логу запуска. params — параметры шага
	// с уже выполненной подстановкой значений.
	Run(ctx context.Context, rc *runctx.RunContext, params map[string]any) (any, error)
}

// Loader разрешает имя модуля в реализацию.
//
// Горячая перезагрузка пользовательских модулей — забота Loader,
// не движка: Registry предоставляет явный Reload.
type Loader interface {
	// Load возвращает модуль по имени.
	// ErrModuleNotFound, если имя неизвестно; ErrModuleLoad, если
	// модуль есть, но не удовлетворяет контракту.
	Load(name string) (Module, error)
}
