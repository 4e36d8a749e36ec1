// Package apperr holds the sentinel errors shared across layers.
// Callers wrap them with fmt.Errorf("...: %w", ...) and match with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnsupported   = errors.New("unsupported media type")
	ErrTooLarge      = errors.New("payload too large")
)
