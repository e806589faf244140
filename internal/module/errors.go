package module

import "errors"

// Ошибки загрузки и выполнения модулей.
var (
	// ErrModuleNotFound — модуль с таким именем не зарегистрирован.
	ErrModuleNotFound = errors.New("module not found")

	// ErrModuleLoad — модуль зарегистрирован, но не удовлетворяет
	// контракту (фабрика вернула ошибку или nil).
	ErrModuleLoad = errors.New("module load failed")

	// ErrCancelled — выполнение прервано по запросу пользователя.
	// Модули оборачивают эту ошибку, чтобы отмена отличалась от
	// обычного сбоя и run финализировался как cancelled, не fail.
	ErrCancelled = errors.New("cancelled by user")

	// ErrInvalidParams — невалидные параметры шага.
	ErrInvalidParams = errors.New("invalid step params")
)
