package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrEmptyIdentifier is returned when a write is attempted without a job identifier.
	ErrEmptyIdentifier = errors.New("job identifier is required")
)
