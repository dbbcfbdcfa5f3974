package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedRecord indicates a metadata record is missing required
	// fields or carries values outside their enums. The record is skipped;
	// processing of other records continues.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrIndexUnavailable indicates the memory index or metadata store
	// cannot be read. Searches degrade to an empty result.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrInvalidQueryOptions indicates search options outside their valid
	// ranges. This is the only search condition surfaced to callers.
	ErrInvalidQueryOptions = errors.New("invalid query options")
)
