package store

import "errors"

// Ошибки хранилища определений.
var (
	// ErrPipelineNotFound — пайплайн с таким ID не найден.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrDuplicatePipelineID — два файла объявляют один ID.
	ErrDuplicatePipelineID = errors.New("duplicate pipeline id")

	// ErrInvalidDefinition — определение не прошло проверку схемой.
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
)
