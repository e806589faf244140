package repo

import "errors"

// Ошибки репозитория.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("record not found")
)
