package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates the caller supplied unusable input and should fix it.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a concurrent write held the evaluation; the caller may retry.
	ErrConflict = errors.New("concurrent evaluation write")
	// ErrPersistence indicates the result store failed.
	ErrPersistence = errors.New("persistence failure")

	// ErrUserNotFound indicates the evaluated user does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrTemplateNotFound indicates the graded template does not exist.
	ErrTemplateNotFound = fmt.Errorf("template %w", ErrNotFound)
	// ErrEvaluationNotFound indicates the evaluation record does not exist.
	ErrEvaluationNotFound = fmt.Errorf("evaluation %w", ErrNotFound)
)
