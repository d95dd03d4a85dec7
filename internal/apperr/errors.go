// Package apperr holds the sentinel errors shared across the indexing engine.
// Callers match them with errors.Is; every layer wraps them with context.
package apperr

import "errors"

var (
	// ErrMalformedClassData reports bytes that do not parse as a class file.
	ErrMalformedClassData = errors.New("malformed class data")
	// ErrAlreadyCompleted reports use of an index builder after Complete.
	ErrAlreadyCompleted = errors.New("index builder already completed")
	// ErrUnsupportedVersion reports an index artifact with an unknown major version.
	ErrUnsupportedVersion = errors.New("unsupported index version")
	// ErrCorruptIndex reports an internally inconsistent index artifact.
	ErrCorruptIndex = errors.New("corrupt index")

	ErrNotFound = errors.New("not found")
	ErrNoIndex  = errors.New("no index loaded")
)
